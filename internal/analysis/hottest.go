package analysis

import (
	"sort"

	"github.com/getsentry/hotspot/internal/aggregate"
)

// HotFunction is a function of one process ranked among the functions of
// several processes.
type HotFunction struct {
	ProcessKey uint64
	Module     string
	Function   aggregate.Function
	// Total is the root total of the function's process.
	Total uint64
}

// Hottest returns the n functions with the most self hits across results.
// Ties are ordered by process, then by function id.
func Hottest(results []*Result, n int) []HotFunction {
	if n <= 0 {
		return nil
	}
	var candidates []HotFunction
	for _, r := range results {
		for _, f := range r.Aggregates.TopFunctions(n) {
			m, _ := r.Aggregates.Module(f.ModuleID)
			candidates = append(candidates, HotFunction{
				ProcessKey: r.Process.Key,
				Module:     m.Name,
				Function:   f,
				Total:      r.Aggregates.Total,
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Function.Hits.Self != b.Function.Hits.Self {
			return a.Function.Hits.Self > b.Function.Hits.Self
		}
		if a.ProcessKey != b.ProcessKey {
			return a.ProcessKey < b.ProcessKey
		}
		return a.Function.ID < b.Function.ID
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
