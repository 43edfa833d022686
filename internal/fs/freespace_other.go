//go:build !linux && !darwin && !windows

package fs

func freeSpace(string) (uint64, error) {
	return 0, ErrFreeSpaceUnsupported
}
