package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/hotspot/internal/frame"
	"github.com/getsentry/hotspot/internal/sample"
	"github.com/getsentry/hotspot/internal/samplesource"
	"github.com/getsentry/hotspot/internal/testutil"
	"github.com/getsentry/hotspot/internal/trace"
)

var processes = []trace.Process{
	{Key: 1, OSID: 100, Name: "app"},
	{Key: 2, OSID: 200, Name: "worker"},
	{Key: 3, OSID: 300, Name: "idle"},
}

func frames(symbols ...string) []frame.Frame {
	var frames []frame.Frame
	for _, s := range symbols {
		frames = append(frames, frame.Frame{Symbol: s, Module: "app"})
	}
	return frames
}

func newProvider() sample.SliceProvider {
	return sample.SliceProvider{
		Processes: map[uint64][]sample.Sample{
			1: {
				{Weight: 1, Frames: frames("main", "parse")},
				{Weight: 1, Frames: frames("main", "parse")},
				{Weight: 1, Frames: frames("main")},
			},
			2: {
				{Weight: 5, Frames: frames("loop", "compress")},
			},
		},
	}
}

type failingProvider struct {
	err error
}

func (p failingProvider) Samples(context.Context, uint64) (sample.Iterator, error) {
	return nil, p.err
}

func TestAnalyzeProcesses(t *testing.T) {
	results, err := AnalyzeProcesses(context.Background(), newProvider(), processes, samplesource.Selection{}, samplesource.AcceptAll(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	var totals []uint64
	for i, r := range results {
		if r.Process.Key != processes[i].Key {
			t.Fatalf("expected results in process order, got %d at %d", r.Process.Key, i)
		}
		if err := r.Tree.Validate(); err != nil {
			t.Fatalf("invalid tree: %v", err)
		}
		if err := r.Aggregates.Validate(r.Tree); err != nil {
			t.Fatalf("invalid aggregates: %v", err)
		}
		totals = append(totals, r.Tree.Root().Hits.Total)
	}
	if diff := testutil.Diff(totals, []uint64{3, 5, 0}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestAnalyzeProcessesFailure(t *testing.T) {
	errUnavailable := errors.New("unavailable")
	results, err := AnalyzeProcesses(context.Background(), failingProvider{err: errUnavailable}, processes, samplesource.Selection{}, samplesource.AcceptAll(), 0)
	if !errors.Is(err, errUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if results != nil {
		t.Fatal("a failed analysis must not return results")
	}
}

func TestHottest(t *testing.T) {
	results, err := AnalyzeProcesses(context.Background(), newProvider(), processes, samplesource.Selection{}, samplesource.AcceptAll(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	type entry struct {
		ProcessKey uint64
		Name       string
		Self       uint64
	}
	var got []entry
	for _, h := range Hottest(results, 2) {
		got = append(got, entry{ProcessKey: h.ProcessKey, Name: h.Function.Name, Self: h.Function.Hits.Self})
	}
	want := []entry{
		{ProcessKey: 2, Name: "compress", Self: 5},
		{ProcessKey: 1, Name: "parse", Self: 2},
	}
	if diff := testutil.Diff(got, want); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestNumWorkers(t *testing.T) {
	tests := []struct {
		n, limit, want int
	}{
		{n: 3, limit: 8, want: 3},
		{n: 20, limit: 8, want: 8},
		{n: 0, limit: 8, want: 1},
	}
	for _, test := range tests {
		if got := NumWorkers(test.n, test.limit); got != test.want {
			t.Errorf("NumWorkers(%d, %d) = %d, want %d", test.n, test.limit, got, test.want)
		}
	}
}
