package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/imgcache/internal/fs"
)

// File reads images from the local filesystem. Locators are paths.
type File struct {
	fs fs.FileSystem
}

// NewFile creates a File fetcher. A nil fsys uses the OS filesystem.
func NewFile(fsys fs.FileSystem) *File {
	if fsys == nil {
		fsys = fs.Default
	}
	return &File{fs: fsys}
}

func (f *File) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := f.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}
