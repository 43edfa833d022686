package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/imgcache/blobstore"
)

// downloader is implemented by stores with a native whole-object download.
type downloader interface {
	Download(ctx context.Context, name string) ([]byte, error)
}

// Blob reads images from a blob store. Locators are blob names.
type Blob struct {
	store blobstore.Store
	opts  blobstore.ReadOptions
}

// NewBlob creates a Blob fetcher. Downloads above opts.MaxSize fail.
func NewBlob(store blobstore.Store, opts blobstore.ReadOptions) *Blob {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxBytes
	}
	return &Blob{store: store, opts: opts}
}

func (b *Blob) Fetch(ctx context.Context, name string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if d, ok := b.store.(downloader); ok {
		data, err = d.Download(ctx, name)
		if err == nil && int64(len(data)) > b.opts.MaxSize {
			err = fmt.Errorf("%w: %s", ErrTooLarge, name)
		}
	} else {
		data, err = blobstore.ReadAll(ctx, b.store, name, b.opts)
	}
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, blobstore.ErrNotFound):
		return nil, fmt.Errorf("%w: blob %s", ErrNotFound, name)
	case errors.Is(err, blobstore.ErrTooLarge):
		return nil, fmt.Errorf("%w: blob %s", ErrTooLarge, name)
	default:
		return nil, err
	}
}
