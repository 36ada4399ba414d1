package storageprovider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/getsentry/hotspot/internal/storageutil"
)

// Badger implements storageutil.ObjectHandler interface to handle object read and writes.
type Badger struct {
	DB *badger.DB
	// TTL expires objects written through Put. Zero keeps them forever.
	TTL time.Duration
}

// OpenBadger opens a badger database in dir, in memory when dir is empty.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Badger{DB: db}, nil
}

// Put writes a file to the storage provider with name being the path.
func (b *Badger) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return &badgerWriter{
		db:   b.DB,
		name: name,
		ttl:  b.TTL,
	}, nil
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (b *Badger) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	var value []byte
	err := b.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	return &badgerReader{
		reader: bytes.NewReader(value),
		size:   int64(len(value)),
	}, nil
}

// Delete removes a key. If it was not found, it will return ErrObjectNotFound.
func (b *Badger) Delete(ctx context.Context, name string) error {
	return b.DB.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storageutil.ErrObjectNotFound
			}
			return err
		}
		return txn.Delete([]byte(name))
	})
}

// List returns the keys starting with prefix. Badger does not track
// modification times; use TTL to expire objects instead.
func (b *Badger) List(ctx context.Context, prefix string) ([]storageutil.ObjectInfo, error) {
	var objects []storageutil.ObjectInfo
	err := b.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			objects = append(objects, storageutil.ObjectInfo{Name: string(it.Item().KeyCopy(nil))})
		}
		return nil
	})
	return objects, err
}

func (b *Badger) Close() error {
	return b.DB.Close()
}

// badgerWriter buffers the object and stores it in one transaction on
// Close.
type badgerWriter struct {
	b    bytes.Buffer
	db   *badger.DB
	name string
	ttl  time.Duration
}

func (bw *badgerWriter) Write(p []byte) (int, error) {
	return bw.b.Write(p)
}

func (bw *badgerWriter) Close() error {
	return bw.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(bw.name), bw.b.Bytes())
		if bw.ttl > 0 {
			e = e.WithTTL(bw.ttl)
		}
		return txn.SetEntry(e)
	})
}

// badgerReader implements storageutil.ReadSizeCloser
type badgerReader struct {
	reader io.Reader
	size   int64
}

func (b *badgerReader) Read(p []byte) (n int, err error) {
	return b.reader.Read(p)
}

func (b *badgerReader) Close() error {
	return nil
}

func (b *badgerReader) Size() int64 {
	return b.size
}
