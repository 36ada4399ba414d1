package trace

import (
	"context"
	"fmt"

	"github.com/getsentry/hotspot/internal/errorutil"
	"github.com/getsentry/hotspot/internal/frame"
	"github.com/getsentry/hotspot/internal/resolver"
	"github.com/getsentry/hotspot/internal/sample"
)

// cancelCheckInterval is the number of samples read between two checks of
// the context.
const cancelCheckInterval = 256

type (
	// ResolverFunc returns the resolver for the address space of a process.
	ResolverFunc func(processKey uint64) (resolver.Resolver, error)

	// Provider replays the samples of a trace, resolving their stacks on
	// the fly.
	Provider struct {
		trace   *Trace
		resolve ResolverFunc
		filter  sample.Filter
	}

	iterator struct {
		ctx      context.Context
		trace    *Trace
		resolver resolver.Resolver
		filter   sample.Filter
		indices  []int
		pos      int
		read     int
		current  sample.Sample
		err      error
	}
)

// NewProvider returns a provider over t. A nil resolve function resolves
// every address with the trace's own symbol table.
func NewProvider(t *Trace, resolve ResolverFunc, filter sample.Filter) *Provider {
	if resolve == nil {
		resolve = func(processKey uint64) (resolver.Resolver, error) {
			return t.Resolver(processKey, nil)
		}
	}
	return &Provider{trace: t, resolve: resolve, filter: filter}
}

func (p *Provider) Samples(ctx context.Context, processKey uint64) (sample.Iterator, error) {
	if err := p.trace.Index(); err != nil {
		return nil, err
	}
	if _, ok := p.trace.Process(processKey); !ok {
		return nil, fmt.Errorf("trace: %w: process %d", errorutil.ErrNotFound, processKey)
	}
	r, err := p.resolve(processKey)
	if err != nil {
		return nil, err
	}
	return &iterator{
		ctx:      ctx,
		trace:    p.trace,
		resolver: r,
		filter:   p.filter,
		indices:  p.trace.byProcess[processKey],
	}, nil
}

func (it *iterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.pos < len(it.indices) {
		if it.read%cancelCheckInterval == 0 {
			if err := it.ctx.Err(); err != nil {
				it.err = err
				return false
			}
		}
		it.read++
		raw := it.trace.Samples[it.indices[it.pos]]
		it.pos++
		if !it.filter.Accept(raw.Timestamp(), raw.ThreadKey) {
			continue
		}
		it.current = sample.Sample{
			SourceID:  raw.SourceID,
			ThreadID:  raw.ThreadKey,
			Weight:    raw.EffectiveWeight(),
			Timestamp: raw.Timestamp(),
			Frames:    it.frames(raw.StackID),
		}
		return true
	}
	return false
}

// frames resolves a leaf-first stack into root-first frames.
func (it *iterator) frames(stackID int) []frame.Frame {
	if stackID == NoStack {
		return nil
	}
	addrs := it.trace.Stacks[stackID]
	frames := make([]frame.Frame, len(addrs))
	for i, addr := range addrs {
		frames[len(addrs)-1-i] = it.resolver.Resolve(addr)
	}
	return frames
}

func (it *iterator) Sample() sample.Sample {
	return it.current
}

func (it *iterator) Err() error {
	return it.err
}

func (it *iterator) Close() error {
	it.indices = nil
	return nil
}
