package fs

import "errors"

// ErrFreeSpaceUnsupported is returned by FreeSpace on platforms where the
// available space cannot be queried.
var ErrFreeSpaceUnsupported = errors.New("fs: free space query not supported on this platform")

// FreeSpace returns the number of bytes available to the current user on the
// filesystem containing path.
func FreeSpace(path string) (uint64, error) {
	return freeSpace(path)
}
