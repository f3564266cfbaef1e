package retrieval

import (
	"context"
	"errors"
	"testing"

	"llm-gateway-platform/internal/vector"
)

func TestMergeAndSortQueryResultsEmpty(t *testing.T) {
	merged := MergeAndSortQueryResults(nil, 5, false)

	if merged.IDs == nil || merged.Distances == nil || merged.Documents == nil || merged.Metadatas == nil {
		t.Fatal("expected non-nil empty arrays")
	}
	if len(merged.Documents) != 0 {
		t.Errorf("expected no documents, got %v", merged.Documents)
	}
}

func TestMergeAndSortQueryResultsAscending(t *testing.T) {
	results := []*Result{
		{
			IDs:       []string{"a", "b"},
			Distances: []float64{0.1, 0.9},
			Documents: []string{"a", "b"},
			Metadatas: []map[string]interface{}{{}, {}},
		},
		{
			IDs:       []string{"c"},
			Distances: []float64{0.5},
			Documents: []string{"c"},
			Metadatas: []map[string]interface{}{{}},
		},
	}

	merged := MergeAndSortQueryResults(results, 2, false)

	if len(merged.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(merged.Documents))
	}
	if merged.Documents[0] != "a" || merged.Documents[1] != "c" {
		t.Errorf("expected [a c], got %v", merged.Documents)
	}
	if merged.IDs[0] != "a" || merged.IDs[1] != "c" {
		t.Errorf("expected ids [a c], got %v", merged.IDs)
	}
	if merged.Distances[0] != 0.1 || merged.Distances[1] != 0.5 {
		t.Errorf("expected distances [0.1 0.5], got %v", merged.Distances)
	}
}

func TestMergeAndSortQueryResultsDescending(t *testing.T) {
	results := []*Result{
		{
			IDs:       []string{"a", "b"},
			Distances: []float64{0.1, 0.9},
			Documents: []string{"a", "b"},
			Metadatas: []map[string]interface{}{{}, {}},
		},
		{
			IDs:       []string{"c"},
			Distances: []float64{0.5},
			Documents: []string{"c"},
			Metadatas: []map[string]interface{}{{}},
		},
	}

	merged := MergeAndSortQueryResults(results, 2, true)

	if merged.Documents[0] != "b" || merged.Documents[1] != "c" {
		t.Errorf("expected [b c], got %v", merged.Documents)
	}
	if merged.Distances[0] != 0.9 || merged.Distances[1] != 0.5 {
		t.Errorf("expected distances [0.9 0.5], got %v", merged.Distances)
	}
}

func TestMergeAndSortQueryResultsKeepsArraysAligned(t *testing.T) {
	results := []*Result{
		{
			IDs:       []string{"x", "y"},
			Distances: []float64{0.3, 0.7},
			Documents: []string{"x", "y"},
			Metadatas: []map[string]interface{}{{"id": "x"}, {"id": "y"}},
		},
	}

	merged := MergeAndSortQueryResults(results, 10, true)

	if len(merged.IDs) != len(merged.Documents) || len(merged.Distances) != len(merged.Documents) || len(merged.Documents) != len(merged.Metadatas) {
		t.Fatal("merged arrays are not index-aligned")
	}
	for i, doc := range merged.Documents {
		if merged.Metadatas[i]["id"] != doc {
			t.Errorf("metadata %d detached from document %q", i, doc)
		}
		if merged.IDs[i] != doc {
			t.Errorf("id %d detached from document %q", i, doc)
		}
	}
}

func TestQueryCollectionSkipsFailingCollections(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()

	items := []vector.Item{
		{ID: "1", Text: "alpha", Vector: []float32{1, 0}, Metadata: map[string]interface{}{}},
	}
	if err := store.Insert(ctx, "good", items); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// "missing" does not exist and "" must be skipped outright.
	merged := QueryCollection(ctx, store, "memory", []string{"good", "missing", ""}, []float32{1, 0}, 4)

	if len(merged.Documents) != 1 || merged.Documents[0] != "alpha" {
		t.Errorf("expected surviving result from good collection, got %v", merged.Documents)
	}
}

type staticEmbedder struct {
	vectors map[string][]float32
}

func (e *staticEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vectors[text]
	}
	return out, nil
}

func (e *staticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vectors[text], nil
}

type staticReranker struct {
	scores map[string]float64
	err    error
}

func (r *staticReranker) Predict(ctx context.Context, query string, documents []string) ([]float64, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]float64, len(documents))
	for i, doc := range documents {
		out[i] = r.scores[doc]
	}
	return out, nil
}

func TestQueryDocHybrid(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()

	items := []vector.Item{
		{ID: "1", Text: "the cat sat on the mat", Vector: []float32{1, 0}, Metadata: map[string]interface{}{"id": "1"}},
		{ID: "2", Text: "dogs chase cars", Vector: []float32{0, 1}, Metadata: map[string]interface{}{"id": "2"}},
		{ID: "3", Text: "cat videos online", Vector: []float32{0.9, 0.1}, Metadata: map[string]interface{}{"id": "3"}},
	}
	if err := store.Insert(ctx, "docs", items); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	embedder := &staticEmbedder{vectors: map[string][]float32{"cat": {1, 0}}}
	reranker := &staticReranker{scores: map[string]float64{
		"the cat sat on the mat": 0.9,
		"cat videos online":      0.8,
		"dogs chase cars":        0.1,
	}}

	result, err := QueryDocHybrid(ctx, store, "docs", "cat", embedder, 2, reranker, 0)
	if err != nil {
		t.Fatalf("QueryDocHybrid failed: %v", err)
	}

	if len(result.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(result.Documents))
	}
	if result.Documents[0] != "the cat sat on the mat" {
		t.Errorf("expected best reranked document first, got %q", result.Documents[0])
	}
	if result.IDs[0] != "1" {
		t.Errorf("expected chunk id carried through, got %q", result.IDs[0])
	}
	if result.Metadatas[0]["score"] != 0.9 {
		t.Errorf("expected score stamped into metadata, got %v", result.Metadatas[0]["score"])
	}
}

func TestQueryDocHybridLeavesStoredMetadataUntouched(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()

	if err := store.Insert(ctx, "docs", []vector.Item{
		{ID: "1", Text: "alpha text", Vector: []float32{1, 0}, Metadata: map[string]interface{}{"name": "alpha"}},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	embedder := &staticEmbedder{vectors: map[string][]float32{"alpha": {1, 0}}}
	reranker := &staticReranker{scores: map[string]float64{"alpha text": 0.9}}

	result, err := QueryDocHybrid(ctx, store, "docs", "alpha", embedder, 2, reranker, 0)
	if err != nil {
		t.Fatalf("QueryDocHybrid failed: %v", err)
	}
	if len(result.Metadatas) == 0 || result.Metadatas[0]["score"] != 0.9 {
		t.Fatalf("expected score on the result metadata, got %v", result.Metadatas)
	}

	stored, err := store.Get(ctx, "docs")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if score, ok := stored.Metadatas[0]["score"]; ok {
		t.Errorf("stored chunk metadata picked up a score from a read-only query: %v", score)
	}
	if stored.Metadatas[0]["name"] != "alpha" {
		t.Errorf("stored chunk metadata changed: %v", stored.Metadatas[0])
	}
}

func TestQueryDocHybridRelevanceThreshold(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()

	items := []vector.Item{
		{ID: "1", Text: "relevant text", Vector: []float32{1, 0}, Metadata: map[string]interface{}{}},
		{ID: "2", Text: "irrelevant text", Vector: []float32{0, 1}, Metadata: map[string]interface{}{}},
	}
	if err := store.Insert(ctx, "docs", items); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	embedder := &staticEmbedder{vectors: map[string][]float32{"relevant": {1, 0}}}
	reranker := &staticReranker{scores: map[string]float64{
		"relevant text":   0.9,
		"irrelevant text": 0.2,
	}}

	result, err := QueryDocHybrid(ctx, store, "docs", "relevant", embedder, 4, reranker, 0.5)
	if err != nil {
		t.Fatalf("QueryDocHybrid failed: %v", err)
	}

	for _, doc := range result.Documents {
		if doc == "irrelevant text" {
			t.Error("expected sub-threshold document to be filtered out")
		}
	}
	if len(result.Documents) == 0 {
		t.Error("expected relevant document to survive the threshold")
	}
}

func TestQueryCollectionHybridAllFail(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()

	embedder := &staticEmbedder{vectors: map[string][]float32{}}
	reranker := &staticReranker{err: errors.New("reranker down")}

	if err := store.Insert(ctx, "docs", []vector.Item{
		{ID: "1", Text: "text", Vector: []float32{1}, Metadata: map[string]interface{}{}},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	_, err := QueryCollectionHybrid(ctx, store, "memory", []string{"docs"}, "query", embedder, 4, reranker, 0)
	if !errors.Is(err, ErrHybridSearchFailed) {
		t.Fatalf("expected ErrHybridSearchFailed, got %v", err)
	}
}

func TestQueryCollectionHybridPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()

	if err := store.Insert(ctx, "good", []vector.Item{
		{ID: "1", Text: "alpha text", Vector: []float32{1, 0}, Metadata: map[string]interface{}{}},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	embedder := &staticEmbedder{vectors: map[string][]float32{
		"alpha":      {1, 0},
		"alpha text": {1, 0},
	}}
	reranker := &staticReranker{scores: map[string]float64{"alpha text": 0.7}}

	result, err := QueryCollectionHybrid(ctx, store, "memory", []string{"good", "missing"}, "alpha", embedder, 4, reranker, 0)
	if err != nil {
		t.Fatalf("expected partial success, got %v", err)
	}
	if len(result.Documents) == 0 {
		t.Error("expected results from the surviving collection")
	}
}
