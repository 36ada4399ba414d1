package storageprovider

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/getsentry/hotspot/internal/storageutil"
)

// Gcs implements storageutil.ObjectHandler interface to handle object read and writes.
type Gcs struct {
	Client       *storage.Client
	BucketHandle *storage.BucketHandle
}

// OpenGcs connects to a bucket. STORAGE_EMULATOR_HOST is honored by the
// client.
func OpenGcs(ctx context.Context, bucket string) (*Gcs, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Gcs{Client: client, BucketHandle: client.Bucket(bucket)}, nil
}

// Put writes a file to the storage provider with name being the path.
func (g *Gcs) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return g.BucketHandle.Object(name).NewWriter(ctx), nil
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (g *Gcs) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	rc, err := g.BucketHandle.Object(name).NewReader(ctx)
	if err != nil && errors.Is(err, storage.ErrObjectNotExist) {
		return nil, storageutil.ErrObjectNotFound
	}

	return rc, err
}

// Delete removes an object. If it was not found, it will return ErrObjectNotFound.
func (g *Gcs) Delete(ctx context.Context, name string) error {
	err := g.BucketHandle.Object(name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return storageutil.ErrObjectNotFound
	}
	return err
}

func (g *Gcs) Close() error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Close()
}

// List returns the objects whose name starts with prefix.
func (g *Gcs) List(ctx context.Context, prefix string) ([]storageutil.ObjectInfo, error) {
	var objects []storageutil.ObjectInfo
	it := g.BucketHandle.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return objects, nil
		}
		if err != nil {
			return nil, err
		}
		objects = append(objects, storageutil.ObjectInfo{Name: attrs.Name, ModTime: attrs.Updated})
	}
}
