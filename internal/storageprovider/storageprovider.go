// Package storageprovider implements storageutil.ObjectHandler for badger,
// Google Cloud Storage and gocloud buckets.
package storageprovider

import (
	"context"
	"fmt"
	"net/url"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/getsentry/hotspot/internal/storageutil"
)

// Open returns the provider for a storage URL:
//
//	badger:///var/lib/hotspot   badger database in a directory
//	badger://                   in-memory badger database
//	gs://bucket                 Google Cloud Storage
//	file:///tmp/hotspot, mem:// gocloud buckets
func Open(ctx context.Context, storageURL string) (storageutil.ObjectHandler, error) {
	u, err := url.Parse(storageURL)
	if err != nil {
		return nil, fmt.Errorf("storageprovider: invalid url %q: %w", storageURL, err)
	}
	switch u.Scheme {
	case "badger":
		return OpenBadger(u.Host + u.Path)
	case "gs":
		return OpenGcs(ctx, u.Host)
	default:
		bucket, err := blob.OpenBucket(ctx, storageURL)
		if err != nil {
			return nil, fmt.Errorf("storageprovider: opening bucket %q: %w", storageURL, err)
		}
		return &Blob{Bucket: bucket}, nil
	}
}
