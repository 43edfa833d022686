package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/imgcache/internal/resource"
	"resty.dev/v3"
)

const (
	// DefaultTimeout bounds a whole request including the body.
	DefaultTimeout = 2 * time.Minute
	// DefaultMaxBytes bounds a single download.
	DefaultMaxBytes = 64 << 20
	// DefaultUserAgent is sent when none is configured.
	DefaultUserAgent = "imgcache/1"
)

// HTTPOptions configures an HTTP fetcher.
type HTTPOptions struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	// Limiter throttles body reads. Nil means unlimited.
	Limiter *resource.Controller
	// Client overrides the resty client, mostly for tests.
	Client *resty.Client
}

// HTTP fetches images with GET requests.
type HTTP struct {
	client   *resty.Client
	maxBytes int64
	limiter  *resource.Controller
	owned    bool
}

// NewHTTP creates an HTTP fetcher.
func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	client, owned := opts.Client, false
	if client == nil {
		client, owned = resty.New(), true
	}
	client.
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Content-Type", "image/jpeg")

	return &HTTP{client: client, maxBytes: opts.MaxBytes, limiter: opts.Limiter, owned: owned}
}

// Fetch downloads url. Cancelling ctx aborts the request until the response
// headers arrive; after that the body is read to the end so a completed
// download is never thrown away halfway.
func (h *HTTP) Fetch(ctx context.Context, url string) ([]byte, error) {
	reqCtx, cancelReq := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelReq()
	stop := context.AfterFunc(ctx, cancelReq)

	resp, err := h.client.R().
		SetContext(reqCtx).
		SetDoNotParseResponse(true).
		Get(url)
	if !stop() {
		if err == nil {
			_ = resp.Body.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("source: GET %s: %w", url, err)
	}
	// resty negotiates compression itself and only Body is decoded.
	body := resp.Body
	defer func() { _ = body.Close() }()

	if !resp.IsSuccess() {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode()}
	}

	var r io.Reader = io.LimitReader(body, h.maxBytes+1)
	if h.limiter != nil {
		r = resource.NewRateLimitedReader(reqCtx, r, h.limiter)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", url, err)
	}
	if int64(len(data)) > h.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, url, h.maxBytes)
	}
	return data, nil
}

// Close releases idle connections of a client created by NewHTTP.
func (h *HTTP) Close() error {
	if !h.owned {
		return nil
	}
	return h.client.Close()
}
