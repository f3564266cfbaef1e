// Package retrieval implements the document query pipeline: plain vector
// search, hybrid BM25 plus vector search with rank fusion and reranking,
// and merging of results across collections.
package retrieval

import (
	"context"
	"errors"
	"sort"

	"llm-gateway-platform/internal/logger"
	"llm-gateway-platform/internal/vector"
)

// ErrHybridSearchFailed is returned when hybrid search produced nothing
// usable for any requested collection. Callers fall back to plain search.
var ErrHybridSearchFailed = errors.New("hybrid search failed for all collections")

// Result holds one query's retrieval output as index-aligned arrays.
// Distances carry the backend's native similarity ordering for plain
// search and reranker scores for hybrid search.
type Result struct {
	IDs       []string                 `json:"ids"`
	Distances []float64                `json:"distances"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

func emptyResult() *Result {
	return &Result{
		IDs:       []string{},
		Distances: []float64{},
		Documents: []string{},
		Metadatas: []map[string]interface{}{},
	}
}

// QueryDoc runs a plain vector search against one collection.
func QueryDoc(ctx context.Context, store vector.Store, collection string, queryVector []float32, k int) (*Result, error) {
	searched, err := store.Search(ctx, collection, [][]float32{queryVector}, k)
	if err != nil {
		return nil, err
	}

	result := emptyResult()
	result.IDs = append(result.IDs, searched.IDs...)
	result.Distances = append(result.Distances, searched.Distances...)
	result.Documents = append(result.Documents, searched.Documents...)
	result.Metadatas = append(result.Metadatas, searched.Metadatas...)
	return result, nil
}

// QueryDocHybrid runs hybrid retrieval against one collection: a BM25
// pass over the full collection and a vector pass are fused with equal
// weights, then the union is reranked, filtered by rScore, and truncated
// to k. Duplicate contents across the two passes are kept; reranking
// scores them identically so duplicates never change the ordering.
func QueryDocHybrid(ctx context.Context, store vector.Store, collection, query string, embedder QueryEmbedder, k int, reranker Reranker, rScore float64) (*Result, error) {
	all, err := store.Get(ctx, collection)
	if err != nil {
		return nil, err
	}

	bm25Index := NewBM25(all.Documents)
	bm25List := make([]Candidate, 0, k)
	for _, idx := range bm25Index.TopN(query, k) {
		bm25List = append(bm25List, Candidate{
			ID:       all.IDs[idx],
			Document: all.Documents[idx],
			Metadata: all.Metadatas[idx],
		})
	}

	queryVector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	searched, err := store.Search(ctx, collection, [][]float32{queryVector}, k)
	if err != nil {
		return nil, err
	}
	vectorList := make([]Candidate, 0, len(searched.Documents))
	for i := range searched.Documents {
		vectorList = append(vectorList, Candidate{
			ID:       searched.IDs[i],
			Document: searched.Documents[i],
			Metadata: searched.Metadatas[i],
		})
	}

	fused := EnsembleRank([][]Candidate{bm25List, vectorList}, []float64{0.5, 0.5})
	return Rerank(ctx, reranker, query, fused, rScore, k)
}

// MergeAndSortQueryResults concatenates per-collection results, orders
// the combined tuples by distance, and truncates to k. reverse selects
// descending order, used by backends whose scores grow with similarity.
func MergeAndSortQueryResults(results []*Result, k int, reverse bool) *Result {
	type triple struct {
		id       string
		distance float64
		document string
		metadata map[string]interface{}
	}

	var combined []triple
	for _, r := range results {
		if r == nil {
			continue
		}
		for i := range r.Documents {
			combined = append(combined, triple{
				id:       r.IDs[i],
				distance: r.Distances[i],
				document: r.Documents[i],
				metadata: r.Metadatas[i],
			})
		}
	}

	sort.SliceStable(combined, func(i, j int) bool {
		if reverse {
			return combined[i].distance > combined[j].distance
		}
		return combined[i].distance < combined[j].distance
	})
	if k > 0 && k < len(combined) {
		combined = combined[:k]
	}

	merged := emptyResult()
	for _, t := range combined {
		merged.IDs = append(merged.IDs, t.id)
		merged.Distances = append(merged.Distances, t.distance)
		merged.Documents = append(merged.Documents, t.document)
		merged.Metadatas = append(merged.Metadatas, t.metadata)
	}
	return merged
}

// sortDescending reports whether merged results for the given dialect
// should be ordered largest first. Chroma reports distances, everything
// else reports similarities.
func sortDescending(dialect string) bool {
	return dialect != "chroma"
}

// QueryCollection runs a plain vector search across multiple collections
// and merges the results. Empty collection names are skipped; a failing
// collection is logged and skipped rather than failing the whole query.
func QueryCollection(ctx context.Context, store vector.Store, dialect string, collections []string, queryVector []float32, k int) *Result {
	var results []*Result
	for _, collection := range collections {
		if collection == "" {
			continue
		}
		result, err := QueryDoc(ctx, store, collection, queryVector, k)
		if err != nil {
			logger.Error("Vector search failed for collection", "collection", collection, "error", err)
			continue
		}
		results = append(results, result)
	}
	return MergeAndSortQueryResults(results, k, sortDescending(dialect))
}

// QueryCollectionHybrid runs hybrid retrieval across multiple collections
// and merges the results. It returns ErrHybridSearchFailed only when every
// collection failed, so callers can fall back to plain vector search.
func QueryCollectionHybrid(ctx context.Context, store vector.Store, dialect string, collections []string, query string, embedder QueryEmbedder, k int, reranker Reranker, rScore float64) (*Result, error) {
	var results []*Result
	anySucceeded := false
	for _, collection := range collections {
		if collection == "" {
			continue
		}
		result, err := QueryDocHybrid(ctx, store, collection, query, embedder, k, reranker, rScore)
		if err != nil {
			logger.Error("Hybrid search failed for collection", "collection", collection, "error", err)
			continue
		}
		anySucceeded = true
		results = append(results, result)
	}
	if !anySucceeded {
		return nil, ErrHybridSearchFailed
	}
	return MergeAndSortQueryResults(results, k, sortDescending(dialect)), nil
}
