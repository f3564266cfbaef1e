package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"llm-gateway-platform/internal/vector"
)

// Reranker scores documents against a query. Higher is more relevant.
type Reranker interface {
	Predict(ctx context.Context, query string, documents []string) ([]float64, error)
}

// HTTPReranker calls a cross-encoder reranking server.
type HTTPReranker struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewHTTPReranker(baseURL, model string) *HTTPReranker {
	return &HTTPReranker{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (r *HTTPReranker) Predict(ctx context.Context, query string, documents []string) ([]float64, error) {
	body := map[string]interface{}{
		"query": query,
		"texts": documents,
	}
	if r.model != "" {
		body["model"] = r.model
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank server returned status %d: %s", resp.StatusCode, string(raw))
	}

	var ranked []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ranked); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	scores := make([]float64, len(documents))
	for _, entry := range ranked {
		if entry.Index >= 0 && entry.Index < len(scores) {
			scores[entry.Index] = entry.Score
		}
	}
	return scores, nil
}

// QueryEmbedder is the slice of the embedding client the cosine fallback
// needs.
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CosineReranker scores documents by cosine similarity between the query
// embedding and each document embedding. It is the fallback when no
// cross-encoder server is configured.
type CosineReranker struct {
	embedder QueryEmbedder
}

func NewCosineReranker(embedder QueryEmbedder) *CosineReranker {
	return &CosineReranker{embedder: embedder}
}

func (r *CosineReranker) Predict(ctx context.Context, query string, documents []string) ([]float64, error) {
	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	docVecs, err := r.embedder.Embed(ctx, documents)
	if err != nil {
		return nil, err
	}
	if len(docVecs) != len(documents) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(docVecs), len(documents))
	}

	scores := make([]float64, len(documents))
	for i, vec := range docVecs {
		scores[i] = vector.CosineSimilarity(queryVec, vec)
	}
	return scores, nil
}

// Rerank scores candidates against the query, drops those below rScore
// when rScore is positive, orders the rest best first, truncates to topN,
// and stamps each surviving metadata with its score. The stamp goes on a
// copy; the candidates' own metadata maps are never written to.
func Rerank(ctx context.Context, reranker Reranker, query string, candidates []Candidate, rScore float64, topN int) (*Result, error) {
	if len(candidates) == 0 {
		return &Result{
			IDs:       []string{},
			Distances: []float64{},
			Documents: []string{},
			Metadatas: []map[string]interface{}{},
		}, nil
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Document
	}

	scores, err := reranker.Predict(ctx, query, documents)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("reranker returned %d scores for %d documents", len(scores), len(candidates))
	}

	type scored struct {
		candidate Candidate
		score     float64
	}
	kept := make([]scored, 0, len(candidates))
	for i, c := range candidates {
		if rScore > 0 && scores[i] < rScore {
			continue
		}
		kept = append(kept, scored{candidate: c, score: scores[i]})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})
	if topN > 0 && topN < len(kept) {
		kept = kept[:topN]
	}

	result := &Result{
		IDs:       make([]string, len(kept)),
		Distances: make([]float64, len(kept)),
		Documents: make([]string, len(kept)),
		Metadatas: make([]map[string]interface{}, len(kept)),
	}
	for i, s := range kept {
		metadata := make(map[string]interface{}, len(s.candidate.Metadata)+1)
		for key, value := range s.candidate.Metadata {
			metadata[key] = value
		}
		metadata["score"] = s.score

		result.IDs[i] = s.candidate.ID
		result.Distances[i] = s.score
		result.Documents[i] = s.candidate.Document
		result.Metadatas[i] = metadata
	}
	return result, nil
}
