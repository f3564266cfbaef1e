package retrieval

import (
	"math"
	"sort"
	"strings"
)

const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// BM25 is an Okapi BM25 index built in memory over one collection's
// documents. Queries are cheap; the index is rebuilt per request because
// collections mutate between queries.
type BM25 struct {
	docFreqs  []map[string]int
	idf       map[string]float64
	docLens   []float64
	avgDocLen float64
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// NewBM25 indexes the given documents.
func NewBM25(documents []string) *BM25 {
	b := &BM25{
		docFreqs: make([]map[string]int, len(documents)),
		idf:      make(map[string]float64),
		docLens:  make([]float64, len(documents)),
	}

	termDocCount := make(map[string]int)
	var totalLen float64
	for i, doc := range documents {
		tokens := tokenize(doc)
		b.docLens[i] = float64(len(tokens))
		totalLen += b.docLens[i]

		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		b.docFreqs[i] = freqs
		for tok := range freqs {
			termDocCount[tok]++
		}
	}
	if len(documents) > 0 {
		b.avgDocLen = totalLen / float64(len(documents))
	}

	// Negative idf terms (present in most documents) are floored to a
	// fraction of the average idf, following Okapi convention.
	n := float64(len(documents))
	var idfSum float64
	var negative []string
	for tok, df := range termDocCount {
		idf := math.Log((n - float64(df) + 0.5) / (float64(df) + 0.5))
		b.idf[tok] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, tok)
		}
	}
	if len(b.idf) > 0 {
		floor := bm25Epsilon * idfSum / float64(len(b.idf))
		for _, tok := range negative {
			b.idf[tok] = floor
		}
	}

	return b
}

// Scores returns the BM25 score of the query against every indexed
// document, index-aligned with the corpus.
func (b *BM25) Scores(query string) []float64 {
	scores := make([]float64, len(b.docFreqs))
	for _, tok := range tokenize(query) {
		idf, ok := b.idf[tok]
		if !ok {
			continue
		}
		for i, freqs := range b.docFreqs {
			tf := float64(freqs[tok])
			if tf == 0 {
				continue
			}
			norm := tf + bm25K1*(1-bm25B+bm25B*b.docLens[i]/b.avgDocLen)
			scores[i] += idf * tf * (bm25K1 + 1) / norm
		}
	}
	return scores
}

// TopN returns the indices of the n best-scoring documents for the query,
// in descending score order.
func (b *BM25) TopN(query string, n int) []int {
	scores := b.Scores(query)

	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return scores[indices[i]] > scores[indices[j]]
	})

	if n > 0 && n < len(indices) {
		indices = indices[:n]
	}
	return indices
}
