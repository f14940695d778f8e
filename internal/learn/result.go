package learn

import (
	"sort"

	"tangled/internal/tpg"
)

// EvaluationResult accumulates the scores of a policy over its evaluations.
type EvaluationResult struct {
	Sum   float64 `json:"sum"`
	Count uint64  `json:"count"`
}

// Result is the mean score, 0 for an empty result.
func (r EvaluationResult) Result() float64 {
	if r.Count == 0 {
		return 0
	}
	return r.Sum / float64(r.Count)
}

func (r EvaluationResult) Add(o EvaluationResult) EvaluationResult {
	return EvaluationResult{Sum: r.Sum + o.Sum, Count: r.Count + o.Count}
}

// RootResult pairs a root with its evaluation. Order is the rank of the root
// in the graph's root list when the evaluation started and breaks score ties.
type RootResult struct {
	Root   *tpg.Vertex
	Result EvaluationResult
	Order  int
}

func (r RootResult) Score() float64 { return r.Result.Result() }

// sortResults orders results by ascending score, then by Order.
func sortResults(results []RootResult) {
	sort.SliceStable(results, func(i, j int) bool {
		si, sj := results[i].Score(), results[j].Score()
		if si != sj {
			return si < sj
		}
		return results[i].Order < results[j].Order
	})
}

// Best returns the last, highest scored result.
func Best(results []RootResult) (RootResult, bool) {
	if len(results) == 0 {
		return RootResult{}, false
	}
	return results[len(results)-1], true
}
