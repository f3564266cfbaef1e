package services

import (
	"context"
	"errors"
	"testing"

	"llm-gateway-platform/internal/vector"
	"llm-gateway-platform/utils"
)

type fakeEmbedder struct {
	calls int
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1}
	}
	return vectors, nil
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *fakeEmbedder) Engine() string { return "ollama" }
func (e *fakeEmbedder) Model() string  { return "test-model" }

func newTestIngest(store vector.Store) (*IngestService, *fakeEmbedder) {
	embedder := &fakeEmbedder{}
	splitter := &CharacterSplitter{ChunkSize: 50, ChunkOverlap: 5}
	return NewIngestService(store, embedder, splitter), embedder
}

func TestSaveDocsInsertsChunks(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()
	svc, embedder := newTestIngest(store)

	docs := []Document{{
		PageContent: "line one\nline two with more words to make this longer than one chunk of fifty characters total",
		Metadata:    map[string]interface{}{"page": 1},
	}}

	err := svc.SaveDocs(ctx, docs, IngestOptions{
		CollectionName: "col",
		Metadata:       map[string]interface{}{"hash": "abc", "name": "doc.txt"},
		Split:          true,
	})
	if err != nil {
		t.Fatalf("SaveDocs failed: %v", err)
	}

	stored, err := store.Get(ctx, "col")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(stored.IDs) == 0 {
		t.Fatal("expected stored chunks")
	}
	if embedder.calls != 1 {
		t.Errorf("expected a single batched embed call, got %d", embedder.calls)
	}

	for i, doc := range stored.Documents {
		for _, r := range doc {
			if r == '\n' {
				t.Errorf("chunk %d still contains newline", i)
			}
		}
	}
	first := stored.Metadatas[0]
	if first["hash"] != "abc" || first["name"] != "doc.txt" {
		t.Errorf("expected request metadata stamped on chunks, got %v", first)
	}
	if _, ok := first["embedding_config"].(string); !ok {
		t.Errorf("expected embedding_config stamped as JSON string, got %v", first["embedding_config"])
	}
	if _, ok := first["start_index"]; !ok {
		t.Error("expected start_index from splitter")
	}
}

func TestSaveDocsDuplicateHash(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()
	svc, embedder := newTestIngest(store)

	docs := []Document{{PageContent: "some content", Metadata: map[string]interface{}{}}}
	opts := IngestOptions{
		CollectionName: "col",
		Metadata:       map[string]interface{}{"hash": "samehash"},
		Split:          true,
		Add:            true,
	}

	if err := svc.SaveDocs(ctx, docs, opts); err != nil {
		t.Fatalf("first SaveDocs failed: %v", err)
	}
	before, _ := store.Get(ctx, "col")
	callsBefore := embedder.calls

	err := svc.SaveDocs(ctx, docs, opts)
	if !errors.Is(err, utils.ErrDuplicateContent) {
		t.Fatalf("expected ErrDuplicateContent, got %v", err)
	}

	after, _ := store.Get(ctx, "col")
	if len(after.IDs) != len(before.IDs) {
		t.Error("duplicate ingest must not insert anything")
	}
	if embedder.calls != callsBefore {
		t.Error("duplicate ingest must not call the embedder")
	}
}

func TestSaveDocsEmptyContent(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()
	svc, _ := newTestIngest(store)

	docs := []Document{{PageContent: "   \n  ", Metadata: map[string]interface{}{}}}

	err := svc.SaveDocs(ctx, docs, IngestOptions{CollectionName: "col", Split: true})
	if !errors.Is(err, utils.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestSaveDocsSkipsExistingCollection(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()
	svc, _ := newTestIngest(store)

	if err := store.Insert(ctx, "col", []vector.Item{
		{ID: "1", Text: "old", Vector: []float32{1}, Metadata: map[string]interface{}{"hash": "old"}},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	docs := []Document{{PageContent: "new content", Metadata: map[string]interface{}{}}}
	err := svc.SaveDocs(ctx, docs, IngestOptions{
		CollectionName: "col",
		Metadata:       map[string]interface{}{"hash": "new"},
		Split:          true,
	})
	if err != nil {
		t.Fatalf("SaveDocs failed: %v", err)
	}

	stored, _ := store.Get(ctx, "col")
	if len(stored.IDs) != 1 || stored.Documents[0] != "old" {
		t.Errorf("expected existing collection untouched, got %v", stored.Documents)
	}
}

func TestSaveDocsOverwriteReplacesCollection(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()
	svc, _ := newTestIngest(store)

	if err := store.Insert(ctx, "col", []vector.Item{
		{ID: "1", Text: "old", Vector: []float32{1}, Metadata: map[string]interface{}{"hash": "old"}},
	}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	docs := []Document{{PageContent: "replacement content", Metadata: map[string]interface{}{}}}
	err := svc.SaveDocs(ctx, docs, IngestOptions{
		CollectionName: "col",
		Metadata:       map[string]interface{}{"hash": "new"},
		Overwrite:      true,
		Split:          true,
	})
	if err != nil {
		t.Fatalf("SaveDocs failed: %v", err)
	}

	stored, _ := store.Get(ctx, "col")
	for _, doc := range stored.Documents {
		if doc == "old" {
			t.Error("expected old content removed on overwrite")
		}
	}
	if len(stored.IDs) == 0 {
		t.Error("expected new content inserted")
	}
}

func TestSaveDocsWithoutSplitStoresWhole(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()
	svc, _ := newTestIngest(store)

	docs := []Document{{PageContent: "keep me whole", Metadata: map[string]interface{}{}}}
	err := svc.SaveDocs(ctx, docs, IngestOptions{CollectionName: "col", Split: false})
	if err != nil {
		t.Fatalf("SaveDocs failed: %v", err)
	}

	stored, _ := store.Get(ctx, "col")
	if len(stored.IDs) != 1 || stored.Documents[0] != "keep me whole" {
		t.Errorf("expected one whole document, got %v", stored.Documents)
	}
}
