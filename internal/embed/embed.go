// Package embed resolves the configured embedding engine and wraps every
// remote call with batching, rate limiting, and a circuit breaker.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"llm-gateway-platform/internal/logger"
)

// Embedder turns texts into vectors. Implementations preserve input order.
type Embedder interface {
	// Embed returns one vector per input text, index-aligned.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Engine and Model identify the resolved backend for metadata stamping.
	Engine() string
	Model() string
}

// Client calls an embedding server over HTTP. The wire format depends on
// the engine: "" targets a text-embeddings-inference style /embed endpoint,
// "ollama" targets /api/embed, and "openai" targets /embeddings.
type Client struct {
	engine      string
	model       string
	baseURL     string
	apiKey      string
	batchSize   int
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
}

// New resolves the engine name to a ready Client. An unknown engine is a
// configuration error.
func New(engine, model, baseURL, apiKey string, batchSize int) (*Client, error) {
	switch engine {
	case "", "ollama", "openai":
	default:
		return nil, fmt.Errorf("unknown embedding engine: %s", engine)
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmbeddingAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		engine:    engine,
		model:     model,
		baseURL:   baseURL,
		apiKey:    apiKey,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		breaker:     breaker,
		rateLimiter: rate.NewLimiter(rate.Limit(10), 20),
	}, nil
}

func (c *Client) Engine() string { return c.engine }
func (c *Client) Model() string  { return c.model }

// Embed splits texts into batches of at most batchSize, embeds each batch
// in one request, and concatenates the results in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding server returned %d vectors for %d inputs", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding server returned no vector")
	}
	return vectors[0], nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		switch c.engine {
		case "ollama":
			return c.embedOllama(ctx, texts)
		case "openai":
			return c.embedOpenAI(ctx, texts)
		default:
			return c.embedLocal(ctx, texts)
		}
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("embedding server returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode embedding response: %w", err)
	}
	return nil
}

func (c *Client) embedLocal(ctx context.Context, texts []string) ([][]float32, error) {
	body := map[string]interface{}{"inputs": texts}

	var vectors [][]float32
	if err := c.post(ctx, "/embed", body, &vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *Client) embedOllama(ctx context.Context, texts []string) ([][]float32, error) {
	body := map[string]interface{}{
		"model": c.model,
		"input": texts,
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.post(ctx, "/api/embed", body, &resp); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

func (c *Client) embedOpenAI(ctx context.Context, texts []string) ([][]float32, error) {
	body := map[string]interface{}{
		"model": c.model,
		"input": texts,
	}

	var resp struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/embeddings", body, &resp); err != nil {
		return nil, err
	}

	// The API may return entries out of order; the index field is canonical.
	sort.Slice(resp.Data, func(i, j int) bool {
		return resp.Data[i].Index < resp.Data[j].Index
	})

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
