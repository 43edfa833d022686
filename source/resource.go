package source

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"strings"
)

// Resource reads images bundled with the program, typically an embed.FS.
type Resource struct {
	fsys iofs.FS
}

// NewResource creates a Resource fetcher over fsys.
func NewResource(fsys iofs.FS) *Resource {
	return &Resource{fsys: fsys}
}

// Fetch reads name from the bundle. A leading slash is ignored.
func (r *Resource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := iofs.ReadFile(r.fsys, strings.TrimPrefix(name, "/"))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: resource %s", ErrNotFound, name)
		}
		return nil, err
	}
	return data, nil
}
