package retrieval

import "testing"

func TestBM25RanksTermMatchesFirst(t *testing.T) {
	docs := []string{
		"the quick brown fox",
		"lazy dogs sleep all day",
		"the fox jumps over the fence",
		"completely unrelated content here",
	}
	index := NewBM25(docs)

	top := index.TopN("fox", 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 indices, got %d", len(top))
	}
	for _, idx := range top {
		if idx != 0 && idx != 2 {
			t.Errorf("expected only fox documents in top results, got index %d", idx)
		}
	}
}

func TestBM25ScoresZeroForUnknownTerms(t *testing.T) {
	index := NewBM25([]string{"alpha beta", "gamma delta"})

	scores := index.Scores("zeta")
	for i, score := range scores {
		if score != 0 {
			t.Errorf("document %d: expected zero score for unknown term, got %f", i, score)
		}
	}
}

func TestBM25TopNTruncates(t *testing.T) {
	docs := []string{"a b", "a c", "a d", "a e"}
	index := NewBM25(docs)

	if got := len(index.TopN("a", 2)); got != 2 {
		t.Errorf("expected 2 results, got %d", got)
	}
	if got := len(index.TopN("a", 0)); got != 4 {
		t.Errorf("expected all results when n is 0, got %d", got)
	}
}

func TestBM25EmptyCorpus(t *testing.T) {
	index := NewBM25(nil)

	if got := len(index.TopN("anything", 5)); got != 0 {
		t.Errorf("expected no results for empty corpus, got %d", got)
	}
}
