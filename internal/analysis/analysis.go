// Package analysis runs call-tree builds and aggregation for the processes
// of a trace.
package analysis

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/getsentry/hotspot/internal/aggregate"
	"github.com/getsentry/hotspot/internal/calltree"
	"github.com/getsentry/hotspot/internal/sample"
	"github.com/getsentry/hotspot/internal/samplesource"
	"github.com/getsentry/hotspot/internal/trace"
)

// Result is the immutable outcome of one build. It exclusively owns its
// tree and aggregates.
type Result struct {
	Process    trace.Process
	Selection  samplesource.Selection
	Tree       *calltree.Tree
	Aggregates *aggregate.Aggregates
	Duration   time.Duration
}

// Analyze builds the call tree of one process and its aggregates.
func Analyze(ctx context.Context, provider sample.Provider, process trace.Process, selection samplesource.Selection, plan samplesource.Plan) (*Result, error) {
	start := time.Now()

	s := sentry.StartSpan(ctx, "calltree.build")
	s.Description = fmt.Sprintf("Build call tree of process %d", process.Key)
	it, err := provider.Samples(s.Context(), process.Key)
	if err != nil {
		s.Finish()
		return nil, err
	}
	tree, err := calltree.Build(s.Context(), it, process, plan)
	s.Finish()
	if err != nil {
		return nil, err
	}

	s = sentry.StartSpan(ctx, "aggregate")
	s.Description = "Aggregate files, locations, modules and functions"
	aggregates := aggregate.FromTree(tree)
	s.Finish()

	r := &Result{
		Process:    process,
		Selection:  selection,
		Tree:       tree,
		Aggregates: aggregates,
		Duration:   time.Since(start),
	}
	log.Debug().
		Uint64("process_key", process.Key).
		Str("selection", selection.Key()).
		Uint64("samples", tree.Samples).
		Int("nodes", tree.Len()).
		Dur("duration", r.Duration).
		Msg("process analyzed")
	return r, nil
}

// NumWorkers returns the number of parallel builds to run for n processes.
// A non-positive limit defaults to the number of CPUs.
func NumWorkers(n, limit int) int {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	if n < limit {
		return max(n, 1)
	}
	return limit
}

// AnalyzeProcesses builds every process in parallel, one worker per
// process up to numWorkers. Results are returned in the order of
// processes. The first failure cancels the remaining builds and no result
// is returned.
func AnalyzeProcesses(ctx context.Context, provider sample.Provider, processes []trace.Process, selection samplesource.Selection, plan samplesource.Plan, numWorkers int) ([]*Result, error) {
	results := make([]*Result, len(processes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(NumWorkers(len(processes), numWorkers))
	for i, p := range processes {
		i, p := i, p
		g.Go(func() error {
			r, err := Analyze(gctx, provider, p, selection, plan)
			if err != nil {
				return fmt.Errorf("analysis: process %d: %w", p.Key, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
