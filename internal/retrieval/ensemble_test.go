package retrieval

import "testing"

func TestEnsembleRankKeepsDuplicates(t *testing.T) {
	shared := Candidate{Document: "shared", Metadata: map[string]interface{}{}}
	listA := []Candidate{shared, {Document: "only-a"}}
	listB := []Candidate{shared, {Document: "only-b"}}

	fused := EnsembleRank([][]Candidate{listA, listB}, []float64{0.5, 0.5})

	if len(fused) != 4 {
		t.Fatalf("expected all 4 entries preserved, got %d", len(fused))
	}

	sharedCount := 0
	for _, c := range fused {
		if c.Document == "shared" {
			sharedCount++
		}
	}
	if sharedCount != 2 {
		t.Errorf("expected duplicate content kept from both lists, got %d copies", sharedCount)
	}
}

func TestEnsembleRankOrdersByFusedScore(t *testing.T) {
	listA := []Candidate{{Document: "a1"}, {Document: "a2"}}
	listB := []Candidate{{Document: "b1"}}

	fused := EnsembleRank([][]Candidate{listA, listB}, []float64{0.5, 0.5})

	// Rank-1 entries from both lists share the same score, so stable
	// ordering keeps listA's first. The rank-2 entry comes last.
	if fused[0].Document != "a1" || fused[1].Document != "b1" {
		t.Errorf("expected rank-1 entries first, got %v %v", fused[0].Document, fused[1].Document)
	}
	if fused[2].Document != "a2" {
		t.Errorf("expected rank-2 entry last, got %v", fused[2].Document)
	}
}

func TestEnsembleRankWeights(t *testing.T) {
	listA := []Candidate{{Document: "light"}}
	listB := []Candidate{{Document: "heavy"}}

	fused := EnsembleRank([][]Candidate{listA, listB}, []float64{0.1, 0.9})

	if fused[0].Document != "heavy" {
		t.Errorf("expected heavier-weighted list first, got %q", fused[0].Document)
	}
}
