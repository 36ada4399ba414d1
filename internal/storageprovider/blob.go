package storageprovider

import (
	"context"
	"errors"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/getsentry/hotspot/internal/storageutil"
)

// Blob implements storageutil.ObjectHandler on top of any gocloud bucket.
type Blob struct {
	Bucket *blob.Bucket
}

// Put writes a file to the storage provider with name being the path.
func (b *Blob) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return b.Bucket.NewWriter(ctx, name, nil)
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (b *Blob) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	r, err := b.Bucket.NewReader(ctx, name, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	return r, nil
}

// Delete removes an object. If it was not found, it will return ErrObjectNotFound.
func (b *Blob) Delete(ctx context.Context, name string) error {
	err := b.Bucket.Delete(ctx, name)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return storageutil.ErrObjectNotFound
	}
	return err
}

func (b *Blob) Close() error {
	return b.Bucket.Close()
}

// List returns the objects whose key starts with prefix.
func (b *Blob) List(ctx context.Context, prefix string) ([]storageutil.ObjectInfo, error) {
	var objects []storageutil.ObjectInfo
	it := b.Bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return objects, nil
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			continue
		}
		objects = append(objects, storageutil.ObjectInfo{Name: obj.Key, ModTime: obj.ModTime})
	}
}
