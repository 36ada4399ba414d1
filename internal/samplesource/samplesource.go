// Package samplesource describes the event streams a trace was sampled
// from and decides which of them take part in a build.
package samplesource

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/getsentry/hotspot/internal/errorutil"
)

var (
	ErrUnknownSource = errors.New("samplesource: unknown sample source")
	ErrNoStacks      = errors.New("samplesource: sample source has no stacks")
)

type (
	// Source describes one sampling event stream. AverageSamplingRate is
	// expressed in samples per second.
	Source struct {
		ID                  int     `json:"id"`
		Name                string  `json:"name"`
		NumberOfSamples     uint64  `json:"number_of_samples"`
		AverageSamplingRate float64 `json:"average_sampling_rate"`
		HasStacks           bool    `json:"has_stacks"`
	}

	// Registry holds the sources of one trace, ordered by id.
	Registry struct {
		sources []Source
		byID    map[int]int
	}
)

func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{byID: make(map[int]int, len(sources))}
	for _, s := range sources {
		if err := r.Add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers a source. Source ids must be unique and non-negative.
func (r *Registry) Add(s Source) error {
	if s.ID < 0 {
		return fmt.Errorf("samplesource: %w: negative source id %d", errorutil.ErrInvalidRequest, s.ID)
	}
	if r.byID == nil {
		r.byID = make(map[int]int)
	}
	if _, exists := r.byID[s.ID]; exists {
		return fmt.Errorf("samplesource: %w: duplicate source id %d", errorutil.ErrInvalidRequest, s.ID)
	}
	r.sources = append(r.sources, s)
	sort.SliceStable(r.sources, func(i, j int) bool {
		return r.sources[i].ID < r.sources[j].ID
	})
	for i, s := range r.sources {
		r.byID[s.ID] = i
	}
	return nil
}

func (r *Registry) Get(id int) (Source, bool) {
	if r == nil {
		return Source{}, false
	}
	i, ok := r.byID[id]
	if !ok {
		return Source{}, false
	}
	return r.sources[i], true
}

// All returns every source ordered by id.
func (r *Registry) All() []Source {
	if r == nil {
		return nil
	}
	sources := make([]Source, len(r.sources))
	copy(sources, r.sources)
	return sources
}

// WithStacks returns the sources whose samples carry call stacks.
func (r *Registry) WithStacks() []Source {
	if r == nil {
		return nil
	}
	var sources []Source
	for _, s := range r.sources {
		if s.HasStacks {
			sources = append(sources, s)
		}
	}
	return sources
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sources)
}

// scale converts a raw weight into nanoseconds of sampled time.
func scale(w uint64, rate float64) uint64 {
	if rate <= 0 {
		return w
	}
	v := math.Round(float64(w) * 1e9 / rate)
	// float64(math.MaxUint64) is 2^64, one past the largest uint64.
	if v >= float64(math.MaxUint64) {
		return math.MaxUint64
	}
	if v < 1 && w != 0 {
		return 1
	}
	return uint64(v)
}
