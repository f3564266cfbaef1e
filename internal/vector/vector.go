// Package vector abstracts the vector database behind a single Store
// interface with parallel-array results, so the retrieval pipeline stays
// independent of the configured backend.
package vector

import (
	"context"
	"fmt"

	"llm-gateway-platform/internal/config"
)

// Item is one embedded chunk as stored in a collection.
type Item struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Vector   []float32              `json:"vector"`
	Metadata map[string]interface{} `json:"metadata"`
}

// SearchResult holds similarity search output as parallel arrays,
// index-aligned per chunk. Distances follow the backend's native
// similarity ordering.
type SearchResult struct {
	IDs       []string                 `json:"ids"`
	Distances []float64                `json:"distances"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

// GetResult holds non-scored reads (full scans, filtered queries) as
// parallel arrays.
type GetResult struct {
	IDs       []string                 `json:"ids"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

// Store is the closed contract every vector backend implements.
// Filters are flat equality matches over item metadata keys.
type Store interface {
	HasCollection(ctx context.Context, collection string) (bool, error)
	DeleteCollection(ctx context.Context, collection string) error

	// Search returns up to limit nearest items per query vector, flattened
	// into one result in query order.
	Search(ctx context.Context, collection string, vectors [][]float32, limit int) (*SearchResult, error)

	// Query returns items whose metadata matches the filter exactly.
	// limit <= 0 means no limit.
	Query(ctx context.Context, collection string, filter map[string]interface{}, limit int) (*GetResult, error)

	// Get returns every item in the collection.
	Get(ctx context.Context, collection string) (*GetResult, error)

	Insert(ctx context.Context, collection string, items []Item) error
	Upsert(ctx context.Context, collection string, items []Item) error

	// Delete removes items by id and/or metadata filter.
	Delete(ctx context.Context, collection string, ids []string, filter map[string]interface{}) error

	// Reset drops every collection.
	Reset(ctx context.Context) error
}

// New returns the Store for the configured dialect. An unknown dialect is
// a configuration error.
func New(cfg *config.Config) (Store, error) {
	switch cfg.VectorDB {
	case "chroma":
		return NewChromaStore(cfg.ChromaURL), nil
	case "qdrant":
		return NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey), nil
	case "milvus":
		return NewMilvusStore(context.Background(), cfg.MilvusURI, cfg.VectorDim)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported vector store dialect: %s", cfg.VectorDB)
	}
}
