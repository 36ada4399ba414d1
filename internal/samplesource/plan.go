package samplesource

import (
	"fmt"
	"strconv"
	"strings"
)

type (
	// Selection is what a caller asks for. A nil SourceID without Merge
	// selects the default source.
	Selection struct {
		SourceID  *int `json:"source_id,omitempty"`
		Merge     bool `json:"merge,omitempty"`
		Normalize bool `json:"normalize,omitempty"`
	}

	// Plan is a resolved selection: which sources are accepted and how
	// their sample weights are scaled.
	Plan struct {
		Sources   []Source
		Normalize bool

		rates map[int]float64
	}
)

// Key returns a stable textual form of the selection, used for cache and
// storage keys.
func (s Selection) Key() string {
	var b strings.Builder
	switch {
	case s.Merge:
		b.WriteString("merged")
	case s.SourceID != nil:
		b.WriteString("source-")
		b.WriteString(strconv.Itoa(*s.SourceID))
	default:
		b.WriteString("default")
	}
	// Normalize only takes effect on merged builds.
	if s.Merge && s.Normalize {
		b.WriteString("-normalized")
	}
	return b.String()
}

// Plan resolves a selection against the registered sources.
func (r *Registry) Plan(sel Selection) (Plan, error) {
	var sources []Source
	switch {
	case sel.Merge:
		sources = r.WithStacks()
		if len(sources) == 0 {
			return Plan{}, fmt.Errorf("%w: no source with stacks to merge", ErrNoStacks)
		}
	case sel.SourceID != nil:
		s, ok := r.Get(*sel.SourceID)
		if !ok {
			return Plan{}, fmt.Errorf("%w: %d", ErrUnknownSource, *sel.SourceID)
		}
		if !s.HasStacks {
			return Plan{}, fmt.Errorf("%w: %d (%s)", ErrNoStacks, s.ID, s.Name)
		}
		sources = []Source{s}
	default:
		withStacks := r.WithStacks()
		if len(withStacks) == 0 {
			return Plan{}, fmt.Errorf("%w: no default source", ErrNoStacks)
		}
		sources = withStacks[:1]
	}
	return NewPlan(sources, sel.Normalize && sel.Merge), nil
}

// NewPlan accepts samples of the given sources. Weights are only scaled
// when normalize is set.
func NewPlan(sources []Source, normalize bool) Plan {
	p := Plan{
		Sources:   sources,
		Normalize: normalize,
		rates:     make(map[int]float64, len(sources)),
	}
	for _, s := range sources {
		p.rates[s.ID] = s.AverageSamplingRate
	}
	return p
}

// AcceptAll returns a plan that takes every sample at its raw weight.
func AcceptAll() Plan {
	return Plan{}
}

// Accepts reports whether samples of a source take part in the build.
func (p Plan) Accepts(sourceID int) bool {
	if p.rates == nil {
		return true
	}
	_, ok := p.rates[sourceID]
	return ok
}

// Weight returns the effective weight of a sample from sourceID.
func (p Plan) Weight(sourceID int, w uint64) uint64 {
	if !p.Normalize {
		return w
	}
	return scale(w, p.rates[sourceID])
}

// SourceIDs lists the accepted source ids, nil when every source is
// accepted.
func (p Plan) SourceIDs() []int {
	if p.rates == nil {
		return nil
	}
	ids := make([]int, 0, len(p.Sources))
	for _, s := range p.Sources {
		ids = append(ids, s.ID)
	}
	return ids
}
