package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChromaStore talks to a Chroma server over its REST API.
//
// Chroma reports cosine distances in ascending order (smaller is more
// similar), which is the opposite of the other backends here. The merge
// layer accounts for that; this client returns distances untouched.
type ChromaStore struct {
	baseURL    string
	httpClient *http.Client
}

func NewChromaStore(baseURL string) *ChromaStore {
	return &ChromaStore{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type chromaCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *ChromaStore) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chroma request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma request failed with status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode chroma response: %w", err)
		}
	}
	return nil
}

func (s *ChromaStore) getCollection(ctx context.Context, collection string) (*chromaCollection, error) {
	var col chromaCollection
	if err := s.doJSON(ctx, http.MethodGet, "/api/v1/collections/"+collection, nil, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

func (s *ChromaStore) ensureCollection(ctx context.Context, collection string) (*chromaCollection, error) {
	var col chromaCollection
	body := map[string]interface{}{
		"name":          collection,
		"get_or_create": true,
		"metadata":      map[string]interface{}{"hnsw:space": "cosine"},
	}
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections", body, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

func (s *ChromaStore) HasCollection(ctx context.Context, collection string) (bool, error) {
	if _, err := s.getCollection(ctx, collection); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *ChromaStore) DeleteCollection(ctx context.Context, collection string) error {
	return s.doJSON(ctx, http.MethodDelete, "/api/v1/collections/"+collection, nil, nil)
}

func (s *ChromaStore) Search(ctx context.Context, collection string, vectors [][]float32, limit int) (*SearchResult, error) {
	col, err := s.getCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"query_embeddings": vectors,
		"n_results":        limit,
		"include":          []string{"documents", "metadatas", "distances"},
	}

	var raw struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Documents [][]string                 `json:"documents"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
	}
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+col.ID+"/query", body, &raw); err != nil {
		return nil, err
	}

	result := &SearchResult{}
	for q := range raw.IDs {
		result.IDs = append(result.IDs, raw.IDs[q]...)
		result.Distances = append(result.Distances, raw.Distances[q]...)
		result.Documents = append(result.Documents, raw.Documents[q]...)
		result.Metadatas = append(result.Metadatas, raw.Metadatas[q]...)
	}
	return result, nil
}

func (s *ChromaStore) Query(ctx context.Context, collection string, filter map[string]interface{}, limit int) (*GetResult, error) {
	col, err := s.getCollection(ctx, collection)
	if err != nil {
		return &GetResult{}, nil
	}

	body := map[string]interface{}{
		"include": []string{"documents", "metadatas"},
	}
	if len(filter) > 0 {
		body["where"] = filter
	}
	if limit > 0 {
		body["limit"] = limit
	}

	var raw struct {
		IDs       []string                 `json:"ids"`
		Documents []string                 `json:"documents"`
		Metadatas []map[string]interface{} `json:"metadatas"`
	}
	if err := s.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+col.ID+"/get", body, &raw); err != nil {
		return nil, err
	}

	return &GetResult{
		IDs:       raw.IDs,
		Documents: raw.Documents,
		Metadatas: raw.Metadatas,
	}, nil
}

func (s *ChromaStore) Get(ctx context.Context, collection string) (*GetResult, error) {
	return s.Query(ctx, collection, nil, 0)
}

func (s *ChromaStore) Insert(ctx context.Context, collection string, items []Item) error {
	return s.write(ctx, collection, items, "add")
}

func (s *ChromaStore) Upsert(ctx context.Context, collection string, items []Item) error {
	return s.write(ctx, collection, items, "upsert")
}

func (s *ChromaStore) write(ctx context.Context, collection string, items []Item, op string) error {
	col, err := s.ensureCollection(ctx, collection)
	if err != nil {
		return err
	}

	ids := make([]string, len(items))
	embeddings := make([][]float32, len(items))
	documents := make([]string, len(items))
	metadatas := make([]map[string]interface{}, len(items))
	for i, item := range items {
		ids[i] = item.ID
		embeddings[i] = item.Vector
		documents[i] = item.Text
		metadatas[i] = item.Metadata
	}

	body := map[string]interface{}{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	return s.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+col.ID+"/"+op, body, nil)
}

func (s *ChromaStore) Delete(ctx context.Context, collection string, ids []string, filter map[string]interface{}) error {
	col, err := s.getCollection(ctx, collection)
	if err != nil {
		return err
	}

	body := map[string]interface{}{}
	if len(ids) > 0 {
		body["ids"] = ids
	}
	if len(filter) > 0 {
		body["where"] = filter
	}
	return s.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+col.ID+"/delete", body, nil)
}

func (s *ChromaStore) Reset(ctx context.Context) error {
	return s.doJSON(ctx, http.MethodPost, "/api/v1/reset", nil, nil)
}
