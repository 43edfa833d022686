package imgcache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/cache"
	"github.com/hupe1980/imgcache/source"
)

var (
	// ErrUnavailableStorage reports that the disk tier is off. Caching
	// continues in memory.
	ErrUnavailableStorage = errors.New("imgcache: disk storage unavailable")

	// ErrDecodeFailure reports corrupt or unsupported image bytes.
	ErrDecodeFailure = errors.New("imgcache: decode failed")

	// ErrFetchFailure reports that the source bytes could not be loaded.
	ErrFetchFailure = errors.New("imgcache: fetch failed")

	// ErrHashingUnavailable reports that disk keys are derived with the
	// fallback hash because the configured digest is missing.
	ErrHashingUnavailable = errors.New("imgcache: key digest unavailable")

	// ErrStaleCompletion reports a result discarded because its slot was
	// rebound, detached or cancelled.
	ErrStaleCompletion = errors.New("imgcache: stale completion")

	// ErrClosed is returned by operations on a closed Loader.
	ErrClosed = errors.New("imgcache: loader closed")
)

// FetchError describes a failed fetch.
//
// It matches ErrFetchFailure with errors.Is. The underlying error (if any)
// can be accessed via errors.Unwrap.
type FetchError struct {
	Source Source
	// StatusCode is the HTTP status for network sources, 0 otherwise.
	StatusCode int
	cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("imgcache: fetch %s: status %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("imgcache: fetch %s: %v", e.Source, e.cause)
}

func (e *FetchError) Unwrap() error { return e.cause }

// Is makes every FetchError match ErrFetchFailure.
func (e *FetchError) Is(target error) bool { return target == ErrFetchFailure }

// NotFound reports whether the source does not exist.
func (e *FetchError) NotFound() bool {
	var se *source.StatusError
	if errors.As(e.cause, &se) {
		return se.NotFound()
	}
	return errors.Is(e.cause, source.ErrNotFound)
}

func fetchError(src Source, err error) error {
	if err == nil {
		return nil
	}
	fe := &FetchError{Source: src, cause: err}
	var se *source.StatusError
	if errors.As(err, &se) {
		fe.StatusCode = se.StatusCode
	}
	return fe
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bitmap.ErrUnsupported) {
		return fmt.Errorf("%w: %w", ErrDecodeFailure, err)
	}
	if errors.Is(err, cache.ErrDiskDisabled) {
		return fmt.Errorf("%w: %w", ErrUnavailableStorage, err)
	}
	return err
}
