package samplesource

import (
	"errors"
	"math"
	"testing"

	"github.com/getsentry/hotspot/internal/errorutil"
	"github.com/getsentry/hotspot/internal/testutil"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		Source{ID: 2, Name: "cache-misses", NumberOfSamples: 10, AverageSamplingRate: 500, HasStacks: true},
		Source{ID: 0, Name: "context-switches", NumberOfSamples: 4, HasStacks: false},
		Source{ID: 1, Name: "timer", NumberOfSamples: 100, AverageSamplingRate: 1000, HasStacks: true},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestRegistryAdd(t *testing.T) {
	r := newTestRegistry(t)

	var ids []int
	for _, s := range r.All() {
		ids = append(ids, s.ID)
	}
	if diff := testutil.Diff(ids, []int{0, 1, 2}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}

	if err := r.Add(Source{ID: 1, Name: "again"}); !errors.Is(err, errorutil.ErrInvalidRequest) {
		t.Fatalf("expected duplicate id to be rejected, got %v", err)
	}
	if err := r.Add(Source{ID: -1}); !errors.Is(err, errorutil.ErrInvalidRequest) {
		t.Fatalf("expected negative id to be rejected, got %v", err)
	}

	s, ok := r.Get(1)
	if !ok || s.Name != "timer" {
		t.Fatalf("expected source 1 to be timer, got %+v (found: %v)", s, ok)
	}
	if _, ok := r.Get(7); ok {
		t.Fatal("expected source 7 to be absent")
	}
	if r.Len() != 3 {
		t.Fatalf("expected 3 sources, got %d", r.Len())
	}
}

func TestRegistryPlan(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name      string
		selection Selection
		wantIDs   []int
		wantErr   error
	}{
		{
			name:      "default is the first source with stacks",
			selection: Selection{},
			wantIDs:   []int{1},
		},
		{
			name:      "explicit source",
			selection: Selection{SourceID: testutil.IntPtr(2)},
			wantIDs:   []int{2},
		},
		{
			name:      "unknown source",
			selection: Selection{SourceID: testutil.IntPtr(9)},
			wantErr:   ErrUnknownSource,
		},
		{
			name:      "source without stacks",
			selection: Selection{SourceID: testutil.IntPtr(0)},
			wantErr:   ErrNoStacks,
		},
		{
			name:      "merge takes every source with stacks",
			selection: Selection{Merge: true},
			wantIDs:   []int{1, 2},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := r.Plan(test.selection)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("expected error %v, got %v", test.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := testutil.Diff(p.SourceIDs(), test.wantIDs); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestPlanWithoutStacks(t *testing.T) {
	r, err := NewRegistry(Source{ID: 0, Name: "context-switches"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Plan(Selection{}); !errors.Is(err, ErrNoStacks) {
		t.Fatalf("expected ErrNoStacks, got %v", err)
	}
	if _, err := r.Plan(Selection{Merge: true}); !errors.Is(err, ErrNoStacks) {
		t.Fatalf("expected ErrNoStacks, got %v", err)
	}
}

func TestPlanWeight(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name      string
		selection Selection
		sourceID  int
		weight    uint64
		want      uint64
	}{
		{
			name:      "merged weights are raw by default",
			selection: Selection{Merge: true},
			sourceID:  2,
			weight:    3,
			want:      3,
		},
		{
			name:      "normalized weight at 1000 samples per second",
			selection: Selection{Merge: true, Normalize: true},
			sourceID:  1,
			weight:    1,
			want:      1_000_000,
		},
		{
			name:      "normalized weight at 500 samples per second",
			selection: Selection{Merge: true, Normalize: true},
			sourceID:  2,
			weight:    2,
			want:      4_000_000,
		},
		{
			name:      "normalization needs merge",
			selection: Selection{SourceID: testutil.IntPtr(1), Normalize: true},
			sourceID:  1,
			weight:    5,
			want:      5,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := r.Plan(test.selection)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !p.Accepts(test.sourceID) {
				t.Fatalf("expected source %d to be accepted", test.sourceID)
			}
			if got := p.Weight(test.sourceID, test.weight); got != test.want {
				t.Fatalf("expected weight %d, got %d", test.want, got)
			}
		})
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		name   string
		weight uint64
		rate   float64
		want   uint64
	}{
		{name: "zero weight", weight: 0, rate: 1e12, want: 0},
		{name: "unknown rate keeps raw weight", weight: 7, rate: 0, want: 7},
		{name: "fast source rounds up to one", weight: 1, rate: 5e9, want: 1},
		{name: "slow source saturates", weight: math.MaxUint64, rate: 1e-3, want: math.MaxUint64},
		{name: "tiny rate saturates", weight: 1, rate: 1e-12, want: math.MaxUint64},
		{name: "exact", weight: 3, rate: 1000, want: 3_000_000},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := scale(test.weight, test.rate); got != test.want {
				t.Fatalf("expected weight %d, got %d", test.want, got)
			}
		})
	}
}

func TestPlanAccepts(t *testing.T) {
	r := newTestRegistry(t)
	p, err := r.Plan(Selection{SourceID: testutil.IntPtr(2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Accepts(1) {
		t.Fatal("source 1 should not be accepted by a single-source plan")
	}
	if !AcceptAll().Accepts(42) {
		t.Fatal("AcceptAll should accept any source")
	}
	if got := AcceptAll().Weight(42, 7); got != 7 {
		t.Fatalf("expected raw weight 7, got %d", got)
	}
}

func TestSelectionKey(t *testing.T) {
	tests := []struct {
		selection Selection
		want      string
	}{
		{Selection{}, "default"},
		{Selection{SourceID: testutil.IntPtr(3)}, "source-3"},
		{Selection{Merge: true}, "merged"},
		{Selection{Merge: true, Normalize: true}, "merged-normalized"},
		{Selection{Normalize: true}, "default"},
		{Selection{SourceID: testutil.IntPtr(3), Normalize: true}, "source-3"},
	}
	for _, test := range tests {
		if got := test.selection.Key(); got != test.want {
			t.Errorf("expected key %q, got %q", test.want, got)
		}
	}
}
