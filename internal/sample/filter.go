package sample

import (
	"time"
)

// Filter scopes the samples a provider yields. The zero value accepts
// everything.
type Filter struct {
	MinTime   *time.Duration `json:"min_time,omitempty"`
	MaxTime   *time.Duration `json:"max_time,omitempty"`
	ThreadIDs []uint64       `json:"thread_ids,omitempty"`
}

// IsZero reports whether the filter accepts every sample.
func (f Filter) IsZero() bool {
	return f.MinTime == nil && f.MaxTime == nil && len(f.ThreadIDs) == 0
}

// Accept reports whether a sample taken at timestamp on thread passes the
// filter. Both time bounds are inclusive.
func (f Filter) Accept(timestamp time.Duration, threadID uint64) bool {
	if f.MinTime != nil && timestamp < *f.MinTime {
		return false
	}
	if f.MaxTime != nil && timestamp > *f.MaxTime {
		return false
	}
	if len(f.ThreadIDs) == 0 {
		return true
	}
	for _, id := range f.ThreadIDs {
		if id == threadID {
			return true
		}
	}
	return false
}
