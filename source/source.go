package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the locator names nothing.
var ErrNotFound = errors.New("source: not found")

// ErrTooLarge is returned when a payload exceeds the fetcher's size limit.
var ErrTooLarge = errors.New("source: payload too large")

// Fetcher loads the encoded bytes of an image.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, locator string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source: GET %s: status %d", e.URL, e.StatusCode)
}

// NotFound reports whether the server said the image does not exist.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == 404 || e.StatusCode == 410
}
