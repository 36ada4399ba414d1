package sample

import (
	"context"
)

type (
	// SliceProvider serves samples from memory, keyed by process id.
	SliceProvider struct {
		Processes map[uint64][]Sample
		Filter    Filter
	}

	// SliceIterator walks a slice of samples. Err is set when the context
	// is canceled or when FailAfter samples have been read.
	SliceIterator struct {
		ctx     context.Context
		samples []Sample
		filter  Filter
		pos     int
		current Sample
		err     error

		// FailAfter makes the iterator fail with FailWith after that many
		// samples were returned. A negative value never fails.
		FailAfter int
		FailWith  error
	}
)

func (p SliceProvider) Samples(ctx context.Context, processID uint64) (Iterator, error) {
	return NewSliceIterator(ctx, p.Processes[processID], p.Filter), nil
}

func NewSliceIterator(ctx context.Context, samples []Sample, filter Filter) *SliceIterator {
	return &SliceIterator{
		ctx:       ctx,
		samples:   samples,
		filter:    filter,
		FailAfter: -1,
	}
}

func (it *SliceIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if it.FailAfter >= 0 && it.pos >= it.FailAfter {
		it.err = it.FailWith
		return false
	}
	for it.pos < len(it.samples) {
		s := it.samples[it.pos]
		it.pos++
		if it.filter.Accept(s.Timestamp, s.ThreadID) {
			it.current = s
			return true
		}
	}
	return false
}

func (it *SliceIterator) Sample() Sample {
	return it.current
}

func (it *SliceIterator) Err() error {
	return it.err
}

func (it *SliceIterator) Close() error {
	return nil
}

// Collect drains an iterator into a slice and closes it.
func Collect(it Iterator) ([]Sample, error) {
	defer it.Close()
	var samples []Sample
	for it.Next() {
		samples = append(samples, it.Sample())
	}
	return samples, it.Err()
}
