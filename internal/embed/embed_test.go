package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedBatchesAndPreservesOrder(t *testing.T) {
	var calls int
	var batchSizes []int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req struct {
			Inputs []string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		calls++
		batchSizes = append(batchSizes, len(req.Inputs))

		// Encode the input's ordinal into the vector so order is checkable.
		vectors := make([][]float32, len(req.Inputs))
		for i, input := range req.Inputs {
			var n float32
			fmt.Sscanf(input, "text-%f", &n)
			vectors[i] = []float32{n}
		}
		json.NewEncoder(w).Encode(vectors)
	}))
	defer server.Close()

	client, err := New("", "test-model", server.URL, "", 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	vectors, err := client.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if calls != 3 {
		t.Errorf("expected 3 batch calls, got %d", calls)
	}
	if len(batchSizes) != 3 || batchSizes[0] != 10 || batchSizes[1] != 10 || batchSizes[2] != 5 {
		t.Errorf("expected batch sizes [10 10 5], got %v", batchSizes)
	}
	if len(vectors) != 25 {
		t.Fatalf("expected 25 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != 1 || v[0] != float32(i) {
			t.Errorf("vector %d out of order: %v", i, v)
		}
	}
}

func TestEmbedOllamaFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("expected model nomic-embed-text, got %s", req.Model)
		}

		vectors := make([][]float32, len(req.Input))
		for i := range req.Input {
			vectors[i] = []float32{0.1, 0.2}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"embeddings": vectors})
	}))
	defer server.Close()

	client, err := New("ollama", "nomic-embed-text", server.URL, "", 100)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	vectors, err := client.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
}

func TestEmbedOpenAIReordersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("expected bearer auth header, got %q", auth)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"index": 1, "embedding": []float32{2}},
				{"index": 0, "embedding": []float32{1}},
			},
		})
	}))
	defer server.Close()

	client, err := New("openai", "text-embedding-3-small", server.URL, "sk-test", 100)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	vectors, err := client.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Errorf("expected vectors reordered by index, got %v", vectors)
	}
}

func TestEmbedServerErrorReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := New("", "test-model", server.URL, "", 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	vectors, err := client.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error from failing server")
	}
	if vectors != nil {
		t.Errorf("expected nil vectors on error, got %v", vectors)
	}
}

func TestEmbedUnknownEngine(t *testing.T) {
	if _, err := New("cohere", "x", "http://localhost", "", 10); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	client, err := New("", "test-model", "http://localhost:9", "", 10)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	vectors, err := client.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected empty result, got %v", vectors)
	}
}
