package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a bitmap reservation would exceed
// the memory limit.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes caps the bytes of decoded bitmaps held by the cache.
	// If 0, usage is only tracked.
	MemoryLimitBytes int64

	// MaxDecoders bounds concurrent decodes. If 0, decodes are unbounded.
	MaxDecoders int64

	// FetchBytesPerSec limits remote fetch throughput. If 0, unlimited.
	FetchBytesPerSec int64
}

// Controller arbitrates memory, decoder slots and fetch bandwidth.
// A nil *Controller grants everything.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted
	memUsed atomic.Int64

	decodeSem *semaphore.Weighted
	decoding  atomic.Int64

	fetchLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.MaxDecoders > 0 {
		c.decodeSem = semaphore.NewWeighted(cfg.MaxDecoders)
	}
	if cfg.FetchBytesPerSec > 0 {
		c.fetchLimiter = rate.NewLimiter(rate.Limit(cfg.FetchBytesPerSec), int(cfg.FetchBytesPerSec))
	}

	return c
}

// AcquireMemory reserves bytes without blocking.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns bytes reserved by AcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireDecoder blocks until a decoder slot is free or ctx is done.
func (c *Controller) AcquireDecoder(ctx context.Context) error {
	if c == nil {
		return ctx.Err()
	}
	if c.decodeSem != nil {
		if err := c.decodeSem.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	c.decoding.Add(1)
	return nil
}

// ReleaseDecoder frees a slot taken by AcquireDecoder.
func (c *Controller) ReleaseDecoder() {
	if c == nil {
		return
	}
	c.decoding.Add(-1)
	if c.decodeSem != nil {
		c.decodeSem.Release(1)
	}
}

// Decoding returns the number of held decoder slots.
func (c *Controller) Decoding() int64 {
	if c == nil {
		return 0
	}
	return c.decoding.Load()
}

// AcquireIO waits until the fetch limit allows n bytes. Requests above the
// burst are split.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || c.fetchLimiter == nil {
		return nil
	}
	burst := c.fetchLimiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.fetchLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
