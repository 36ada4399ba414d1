package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/getsentry/hotspot/internal/errorutil"
)

type SortField string

const (
	SortByName  SortField = "name"
	SortBySelf  SortField = "self"
	SortByTotal SortField = "total"
)

// ParseSortField validates a sort field coming from a request.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(s)); f {
	case SortByName, SortBySelf, SortByTotal:
		return f, nil
	case "":
		return SortByTotal, nil
	default:
		return "", fmt.Errorf("aggregate: %w: unknown sort field %q", errorutil.ErrInvalidRequest, s)
	}
}

// SortedFunctions returns a copy of the functions ordered by field. Ties
// are broken by id so that the order is stable across calls.
func (a *Aggregates) SortedFunctions(field SortField, descending bool) []Function {
	functions := make([]Function, len(a.Functions))
	copy(functions, a.Functions)
	sort.SliceStable(functions, func(i, j int) bool {
		x, y := functions[i], functions[j]
		var c int
		switch field {
		case SortByName:
			c = strings.Compare(x.Name, y.Name)
		case SortBySelf:
			c = compareUint64(x.Hits.Self, y.Hits.Self)
		default:
			c = compareUint64(x.Hits.Total, y.Hits.Total)
		}
		if c == 0 {
			return x.ID < y.ID
		}
		if descending {
			return c > 0
		}
		return c < 0
	})
	return functions
}

// FunctionsPage returns one page of the sorted functions. A page past the
// end is empty.
func (a *Aggregates) FunctionsPage(field SortField, descending bool, pageSize, pageIndex int) ([]Function, error) {
	if pageSize <= 0 || pageIndex < 0 {
		return nil, fmt.Errorf("aggregate: %w: invalid page %d of size %d", errorutil.ErrInvalidRequest, pageIndex, pageSize)
	}
	return lo.Subset(a.SortedFunctions(field, descending), pageIndex*pageSize, uint(pageSize)), nil
}

// TopFunctions returns the n functions with the most self hits.
func (a *Aggregates) TopFunctions(n int) []Function {
	if n <= 0 {
		return nil
	}
	sorted := a.SortedFunctions(SortBySelf, true)
	return lo.Filter(lo.Subset(sorted, 0, uint(n)), func(f Function, _ int) bool {
		return f.Hits.Self > 0
	})
}

// FilesByTotal returns the files ordered by descending total hits.
func (a *Aggregates) FilesByTotal() []File {
	files := make([]File, len(a.Files))
	copy(files, a.Files)
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Hits.Total > files[j].Hits.Total
	})
	return files
}

// ModulesByTotal returns the modules ordered by descending total hits.
func (a *Aggregates) ModulesByTotal() []Module {
	modules := make([]Module, len(a.Modules))
	copy(modules, a.Modules)
	sort.SliceStable(modules, func(i, j int) bool {
		return modules[i].Hits.Total > modules[j].Hits.Total
	})
	return modules
}

// LimitEdges returns at most n edges ordered by descending total hits.
// A non-positive n returns every edge.
func LimitEdges(edges []Edge, n int) []Edge {
	sorted := make([]Edge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Hits.Total > sorted[j].Hits.Total
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func sortLocations(locations []Location) {
	sort.Slice(locations, func(i, j int) bool {
		if locations[i].FileID != locations[j].FileID {
			return locations[i].FileID < locations[j].FileID
		}
		return locations[i].Line < locations[j].Line
	})
}

func compareUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
