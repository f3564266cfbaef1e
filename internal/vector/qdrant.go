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

// QdrantStore talks to a Qdrant server over its REST API. Points carry a
// {text, metadata} payload and collections use cosine distance, so search
// scores are similarities (higher is better).
type QdrantStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewQdrantStore(baseURL, apiKey string) *QdrantStore {
	return &QdrantStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
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
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed with status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return nil
}

// qdrantFilter builds an exact-match filter over payload metadata keys.
func qdrantFilter(filter map[string]interface{}) map[string]interface{} {
	must := make([]map[string]interface{}, 0, len(filter))
	for key, value := range filter {
		must = append(must, map[string]interface{}{
			"key":   "metadata." + key,
			"match": map[string]interface{}{"value": value},
		})
	}
	return map[string]interface{}{"must": must}
}

type qdrantPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score,omitempty"`
	Payload map[string]interface{} `json:"payload"`
}

func pointText(p qdrantPoint) string {
	if text, ok := p.Payload["text"].(string); ok {
		return text
	}
	return ""
}

func pointMetadata(p qdrantPoint) map[string]interface{} {
	if metadata, ok := p.Payload["metadata"].(map[string]interface{}); ok {
		return metadata
	}
	return map[string]interface{}{}
}

func (s *QdrantStore) HasCollection(ctx context.Context, collection string) (bool, error) {
	var resp struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodGet, "/collections/"+collection+"/exists", nil, &resp); err != nil {
		return false, err
	}
	return resp.Result.Exists, nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, collection string) error {
	return s.doJSON(ctx, http.MethodDelete, "/collections/"+collection, nil, nil)
}

func (s *QdrantStore) ensureCollection(ctx context.Context, collection string, dim int) error {
	exists, err := s.HasCollection(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	return s.doJSON(ctx, http.MethodPut, "/collections/"+collection, body, nil)
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vectors [][]float32, limit int) (*SearchResult, error) {
	result := &SearchResult{}
	for _, vector := range vectors {
		body := map[string]interface{}{
			"vector":       vector,
			"limit":        limit,
			"with_payload": true,
		}

		var resp struct {
			Result []qdrantPoint `json:"result"`
		}
		if err := s.doJSON(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body, &resp); err != nil {
			return nil, err
		}

		for _, p := range resp.Result {
			result.IDs = append(result.IDs, fmt.Sprintf("%v", p.ID))
			result.Distances = append(result.Distances, p.Score)
			result.Documents = append(result.Documents, pointText(p))
			result.Metadatas = append(result.Metadatas, pointMetadata(p))
		}
	}
	return result, nil
}

func (s *QdrantStore) Query(ctx context.Context, collection string, filter map[string]interface{}, limit int) (*GetResult, error) {
	exists, err := s.HasCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &GetResult{}, nil
	}

	if limit <= 0 {
		limit = 10000
	}

	result := &GetResult{}
	var offset interface{}
	for {
		body := map[string]interface{}{
			"limit":        limit,
			"with_payload": true,
		}
		if len(filter) > 0 {
			body["filter"] = qdrantFilter(filter)
		}
		if offset != nil {
			body["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points         []qdrantPoint `json:"points"`
				NextPageOffset interface{}   `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.doJSON(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body, &resp); err != nil {
			return nil, err
		}

		for _, p := range resp.Result.Points {
			result.IDs = append(result.IDs, fmt.Sprintf("%v", p.ID))
			result.Documents = append(result.Documents, pointText(p))
			result.Metadatas = append(result.Metadatas, pointMetadata(p))
		}

		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	return result, nil
}

func (s *QdrantStore) Get(ctx context.Context, collection string) (*GetResult, error) {
	return s.Query(ctx, collection, nil, 0)
}

func (s *QdrantStore) Insert(ctx context.Context, collection string, items []Item) error {
	return s.Upsert(ctx, collection, items)
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, collection, len(items[0].Vector)); err != nil {
		return err
	}

	points := make([]map[string]interface{}, len(items))
	for i, item := range items {
		points[i] = map[string]interface{}{
			"id":     item.ID,
			"vector": item.Vector,
			"payload": map[string]interface{}{
				"text":     item.Text,
				"metadata": item.Metadata,
			},
		}
	}

	body := map[string]interface{}{"points": points}
	return s.doJSON(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", body, nil)
}

func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string, filter map[string]interface{}) error {
	if len(ids) > 0 {
		body := map[string]interface{}{"points": ids}
		if err := s.doJSON(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil); err != nil {
			return err
		}
	}
	if len(filter) > 0 {
		body := map[string]interface{}{"filter": qdrantFilter(filter)}
		if err := s.doJSON(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", body, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *QdrantStore) Reset(ctx context.Context) error {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return err
	}

	for _, col := range resp.Result.Collections {
		if err := s.DeleteCollection(ctx, col.Name); err != nil {
			return err
		}
	}
	return nil
}
