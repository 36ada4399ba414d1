// Package sample defines the stream of resolved stack samples consumed by
// the call-tree builder.
package sample

import (
	"context"
	"time"

	"github.com/getsentry/hotspot/internal/frame"
)

type (
	// Sample is one captured stack snapshot. Frames are ordered root first:
	// the outermost frame is Frames[0], the leaf is the last element.
	Sample struct {
		SourceID  int
		ThreadID  uint64
		Weight    uint64
		Timestamp time.Duration
		Frames    []frame.Frame
	}

	// Iterator is a finite, single-pass sequence of samples.
	//
	// Next advances to the next sample and reports whether there is one.
	// Once Next returns false, Err reports whether the sequence ended
	// because of a read failure.
	Iterator interface {
		Next() bool
		Sample() Sample
		Err() error
		Close() error
	}

	// Provider yields the samples of one process. Every call returns a new,
	// independent iterator. Reading may block while upstream data is being
	// decoded.
	Provider interface {
		Samples(ctx context.Context, processID uint64) (Iterator, error)
	}
)

// HasStack reports whether the sample carries at least one frame.
func (s Sample) HasStack() bool {
	return len(s.Frames) > 0
}

// Leaf returns the innermost frame.
func (s Sample) Leaf() (frame.Frame, bool) {
	if len(s.Frames) == 0 {
		return frame.Frame{}, false
	}
	return s.Frames[len(s.Frames)-1], true
}
