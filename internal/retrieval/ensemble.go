package retrieval

import "sort"

// rrfConstant dampens the influence of rank position in reciprocal rank
// fusion. 60 is the value from the original Cormack et al. formulation.
const rrfConstant = 60

// Candidate is one retrieved document with its metadata, before scoring.
type Candidate struct {
	ID       string
	Document string
	Metadata map[string]interface{}
}

// EnsembleRank fuses multiple ranked candidate lists with weighted
// reciprocal rank fusion. Every entry of every list survives into the
// output; duplicate contents are not collapsed. The result is ordered by
// fused score, best first.
func EnsembleRank(lists [][]Candidate, weights []float64) []Candidate {
	type fused struct {
		candidate Candidate
		score     float64
	}

	var entries []fused
	for listIdx, list := range lists {
		weight := 1.0
		if listIdx < len(weights) {
			weight = weights[listIdx]
		}
		for rank, candidate := range list {
			entries = append(entries, fused{
				candidate: candidate,
				score:     weight / float64(rank+1+rrfConstant),
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	result := make([]Candidate, len(entries))
	for i, e := range entries {
		result[i] = e.candidate
	}
	return result
}
