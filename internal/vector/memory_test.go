package vector

import (
	"context"
	"math"
	"testing"
)

func TestMemoryStoreSearchOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	items := []Item{
		{ID: "a", Text: "off axis", Vector: []float32{0, 1}, Metadata: map[string]interface{}{"hash": "h1"}},
		{ID: "b", Text: "aligned", Vector: []float32{1, 0}, Metadata: map[string]interface{}{"hash": "h2"}},
		{ID: "c", Text: "diagonal", Vector: []float32{1, 1}, Metadata: map[string]interface{}{"hash": "h3"}},
	}
	if err := store.Insert(ctx, "docs", items); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := store.Search(ctx, "docs", [][]float32{{1, 0}}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(result.IDs) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.IDs))
	}
	if result.IDs[0] != "b" || result.IDs[1] != "c" {
		t.Errorf("expected order [b c], got %v", result.IDs)
	}
	if result.Distances[0] < result.Distances[1] {
		t.Errorf("expected descending similarity, got %v", result.Distances)
	}
	if result.Documents[0] != "aligned" {
		t.Errorf("expected top document 'aligned', got %q", result.Documents[0])
	}
}

func TestMemoryStoreSearchMissingCollection(t *testing.T) {
	store := NewMemoryStore()

	if _, err := store.Search(context.Background(), "missing", [][]float32{{1}}, 5); err == nil {
		t.Fatal("expected error for missing collection")
	}
}

func TestMemoryStoreQueryFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	items := []Item{
		{ID: "1", Text: "one", Vector: []float32{1}, Metadata: map[string]interface{}{"hash": "abc", "source": "x"}},
		{ID: "2", Text: "two", Vector: []float32{1}, Metadata: map[string]interface{}{"hash": "def", "source": "x"}},
	}
	if err := store.Insert(ctx, "docs", items); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := store.Query(ctx, "docs", map[string]interface{}{"hash": "abc"}, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(result.IDs) != 1 || result.IDs[0] != "1" {
		t.Errorf("expected only item 1, got %v", result.IDs)
	}

	result, err = store.Query(ctx, "docs", map[string]interface{}{"hash": "nope"}, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(result.IDs) != 0 {
		t.Errorf("expected no matches, got %v", result.IDs)
	}
}

func TestMemoryStoreQueryMissingCollectionIsEmpty(t *testing.T) {
	store := NewMemoryStore()

	result, err := store.Query(context.Background(), "missing", map[string]interface{}{"hash": "abc"}, 0)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(result.IDs) != 0 {
		t.Errorf("expected empty result, got %v", result.IDs)
	}
}

func TestMemoryStoreUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Insert(ctx, "docs", []Item{{ID: "1", Text: "old", Vector: []float32{1}}}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Upsert(ctx, "docs", []Item{{ID: "1", Text: "new", Vector: []float32{1}}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	result, err := store.Get(ctx, "docs")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(result.IDs) != 1 {
		t.Fatalf("expected 1 item after upsert, got %d", len(result.IDs))
	}
	if result.Documents[0] != "new" {
		t.Errorf("expected replaced text 'new', got %q", result.Documents[0])
	}
}

func TestMemoryStoreDeleteByFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	items := []Item{
		{ID: "1", Text: "one", Vector: []float32{1}, Metadata: map[string]interface{}{"hash": "abc"}},
		{ID: "2", Text: "two", Vector: []float32{1}, Metadata: map[string]interface{}{"hash": "def"}},
	}
	if err := store.Insert(ctx, "docs", items); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.Delete(ctx, "docs", nil, map[string]interface{}{"hash": "abc"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	result, err := store.Get(ctx, "docs")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(result.IDs) != 1 || result.IDs[0] != "2" {
		t.Errorf("expected only item 2 to remain, got %v", result.IDs)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: expected 1, got %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: expected 0, got %f", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Errorf("zero vector: expected 0, got %f", got)
	}
	if got := CosineSimilarity([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched lengths: expected 0, got %f", got)
	}
}
