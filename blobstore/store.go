package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/imgcache/internal/conv"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrTooLarge is returned by ReadAll for blobs above the configured limit.
var ErrTooLarge = errors.New("blobstore: blob exceeds size limit")

// Store is the read side of a named blob store. Image sources only read,
// so writing blobs is left to the backend's own tooling.
type Store interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
	// ReadAt reads len(p) bytes at off. It returns io.EOF when fewer bytes
	// are available.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader over length bytes starting at off.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
}

// ReadOptions tunes ReadAll.
type ReadOptions struct {
	// ChunkSize splits large blobs into ranged reads. Defaults to 1 MiB.
	ChunkSize int64
	// Parallelism bounds concurrent ranged reads. Defaults to 4.
	Parallelism int
	// MaxSize rejects larger blobs. Zero means unlimited.
	MaxSize int64
}

// ReadAll reads the whole blob. Blobs larger than one chunk are fetched as
// concurrent ranged reads.
func ReadAll(ctx context.Context, store Store, name string, opts ReadOptions) ([]byte, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1 << 20
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}

	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = blob.Close() }()

	size := blob.Size()
	if opts.MaxSize > 0 && size > opts.MaxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, name, size)
	}

	n, err := conv.Int64ToInt(size)
	if err != nil {
		return nil, fmt.Errorf("blobstore: %s: %w", name, err)
	}
	buf := make([]byte, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for off := int64(0); off < size; off += opts.ChunkSize {
		end := min(off+opts.ChunkSize, size)
		g.Go(func() error {
			n, err := blob.ReadAt(gctx, buf[off:end], off)
			if err != nil && !(errors.Is(err, io.EOF) && int64(n) == end-off) {
				return fmt.Errorf("blobstore: read %s at %d: %w", name, off, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buf, nil
}
