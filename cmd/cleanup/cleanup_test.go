package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/getsentry/hotspot/internal/storageprovider"
	"github.com/getsentry/hotspot/internal/storageutil"
)

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	objects, err := storageprovider.Open(ctx, "file://"+dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer objects.Close()

	for _, name := range []string{"analyses/old", "analyses/new", "documents/old"} {
		if err := storageutil.CompressedWrite(ctx, objects, name, map[string]string{"name": name}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	old := time.Now().Add(-100 * 24 * time.Hour)
	for _, name := range []string{"analyses/old", "documents/old"} {
		if err := os.Chtimes(filepath.Join(dir, name), old, old); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	deleted, err := cleanup(ctx, objects, 90*24*time.Hour, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted object, got %d", deleted)
	}

	var v map[string]string
	if err := storageutil.UnmarshalCompressed(ctx, objects, "analyses/old", &v); !errors.Is(err, storageutil.ErrObjectNotFound) {
		t.Fatalf("expected the old analysis to be gone, got %v", err)
	}
	for _, name := range []string{"analyses/new", "documents/old"} {
		if err := storageutil.UnmarshalCompressed(ctx, objects, name, &v); err != nil {
			t.Fatalf("expected %s to be kept, got %v", name, err)
		}
	}
}
