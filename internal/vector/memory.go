package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory Store used as the dev default
// and in tests. Search scores are cosine similarities, higher is better,
// matching the qdrant/milvus ordering convention.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]Item),
	}
}

func (s *MemoryStore) HasCollection(ctx context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.collections[collection]
	return ok, nil
}

func (s *MemoryStore) DeleteCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collection)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, collection string, vectors [][]float32, limit int) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", collection)
	}

	result := &SearchResult{}
	for _, query := range vectors {
		type scored struct {
			item  Item
			score float64
		}
		ranked := make([]scored, 0, len(items))
		for _, item := range items {
			ranked = append(ranked, scored{item: item, score: CosineSimilarity(query, item.Vector)})
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].score > ranked[j].score
		})

		n := len(ranked)
		if limit > 0 && limit < n {
			n = limit
		}
		for _, r := range ranked[:n] {
			result.IDs = append(result.IDs, r.item.ID)
			result.Distances = append(result.Distances, r.score)
			result.Documents = append(result.Documents, r.item.Text)
			result.Metadatas = append(result.Metadatas, r.item.Metadata)
		}
	}

	return result, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filter map[string]interface{}, limit int) (*GetResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, ok := s.collections[collection]
	if !ok {
		return &GetResult{}, nil
	}

	result := &GetResult{}
	for _, item := range items {
		if !matchesFilter(item.Metadata, filter) {
			continue
		}
		result.IDs = append(result.IDs, item.ID)
		result.Documents = append(result.Documents, item.Text)
		result.Metadatas = append(result.Metadatas, item.Metadata)
		if limit > 0 && len(result.IDs) >= limit {
			break
		}
	}

	return result, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection string) (*GetResult, error) {
	return s.Query(ctx, collection, nil, 0)
}

func (s *MemoryStore) Insert(ctx context.Context, collection string, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[collection] = append(s.collections[collection], items...)
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.collections[collection]
	for _, item := range items {
		replaced := false
		for i := range existing {
			if existing[i].ID == item.ID {
				existing[i] = item
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, item)
		}
	}
	s.collections[collection] = existing
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection string, ids []string, filter map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.collections[collection]
	if !ok {
		return nil
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	kept := items[:0]
	for _, item := range items {
		remove := idSet[item.ID] || (len(filter) > 0 && matchesFilter(item.Metadata, filter))
		if !remove {
			kept = append(kept, item)
		}
	}
	s.collections[collection] = kept
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections = make(map[string][]Item)
	return nil
}

func matchesFilter(metadata map[string]interface{}, filter map[string]interface{}) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between a and b,
// or 0 when either vector is zero-length or zero-norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
