package storageutil

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type (
	ObjectInfo struct {
		Name string
		// ModTime is zero when the provider does not track modification
		// times.
		ModTime time.Time
	}

	// Lister is implemented by providers able to enumerate their objects.
	Lister interface {
		List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	}
)

// DeleteOlderThan removes every object under prefix last modified before
// limit and returns how many were deleted. Objects without a modification
// time are kept.
func DeleteOlderThan(ctx context.Context, h ObjectHandler, prefix string, limit time.Time) (int, error) {
	l, ok := h.(Lister)
	if !ok {
		return 0, fmt.Errorf("storageutil: %T cannot list objects", h)
	}
	objects, err := l.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	var deleted int
	for _, o := range objects {
		if o.ModTime.IsZero() || !o.ModTime.Before(limit) {
			continue
		}
		err := h.Delete(ctx, o.Name)
		if err != nil && !errors.Is(err, ErrObjectNotFound) {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
