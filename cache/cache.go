// Package cache provides ImageCache, a memory and disk cache for decoded
// bitmaps with reuse of evicted decode buffers.
//
// The memory tier holds decoded bitmaps within a KB budget. The disk tier
// holds encoded bitmaps within a byte quota and survives restarts. Bitmaps
// evicted from memory are kept weakly and offered to later decodes that fit.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/imgcache/bitmap"
	icache "github.com/hupe1980/imgcache/internal/cache"
	"github.com/hupe1980/imgcache/internal/hash"
	"github.com/hupe1980/imgcache/internal/pool"
	"github.com/hupe1980/imgcache/internal/resource"
)

// ErrDiskDisabled is returned by disk writes while the disk tier is off.
var ErrDiskDisabled = icache.ErrDiskDisabled

// ImageCache combines the memory tier, the disk tier and the reuse pool.
// It is safe for concurrent use.
type ImageCache struct {
	params Params
	opts   options
	logger *slog.Logger

	memory *icache.MemoryTier // nil when disabled
	disk   *icache.DiskTier   // nil when disabled
	reuse  *pool.ReusePool    // nil when the memory tier is disabled
}

// New creates a cache. The disk tier stays closed until InitDisk.
func New(params Params, optFns ...Option) (*ImageCache, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &ImageCache{
		params: params,
		opts:   opts,
		logger: opts.logger.With("component", "image_cache"),
	}

	if params.MemoryEnabled {
		var rc *resource.Controller
		if opts.memoryLimit > 0 {
			rc = resource.NewController(resource.Config{MemoryLimitBytes: opts.memoryLimit})
		}
		c.reuse = pool.NewReusePool(params.Reuse)
		c.memory = icache.NewMemoryTier(params.MemoryKB, c.onMemoryEvict, rc)
		c.logger.Debug("memory tier created", "capacity_kb", params.MemoryKB, "reuse", params.Reuse.String())
	}

	if params.DiskEnabled {
		c.disk = icache.NewDiskTier(icache.DiskConfig{
			Dir:        params.DiskDir,
			MaxBytes:   params.DiskBytes,
			AppVersion: params.AppVersion,
			FS:         opts.fs,
			Codec:      opts.journalCodec,
			Hasher:     hash.NewKeyHasher(opts.keyDigest, opts.onHashFallback),
			Logger:     opts.logger,
			FreeSpace:  opts.freeSpace,
		})
	}
	return c, nil
}

func (c *ImageCache) onMemoryEvict(key string, b *bitmap.Bitmap) {
	c.reuse.Release(b)
	if c.opts.onEvict != nil {
		c.opts.onEvict(key)
	}
}

// Params returns the configuration the cache was created with.
func (c *ImageCache) Params() Params { return c.params }

// GetFromMemory returns the bitmap cached in memory under key, or nil.
func (c *ImageCache) GetFromMemory(key string) *bitmap.Bitmap {
	if c.memory == nil {
		return nil
	}
	b, _ := c.memory.Get(key)
	return b
}

// GetFromDisk returns the bitmap stored on disk under key, decoded at its
// stored size, or nil. It waits for InitDisk to finish or ctx to end.
func (c *ImageCache) GetFromDisk(ctx context.Context, key string) *bitmap.Bitmap {
	if c.disk == nil {
		return nil
	}
	data, ok := c.disk.Get(ctx, key)
	if !ok {
		return nil
	}
	b, err := c.decode(data, 0, 0, true)
	if err != nil {
		c.logger.Warn("cached record undecodable", "key", key, "error", err)
		return nil
	}
	return b
}

// Add stores b in both tiers. Neither tier overwrites an existing entry.
// Disk failures are logged and otherwise ignored.
func (c *ImageCache) Add(key string, b *bitmap.Bitmap) {
	if key == "" || b == nil {
		return
	}
	c.AddToMemory(key, b)
	if err := c.AddToDisk(key, b); err != nil && !errors.Is(err, ErrDiskDisabled) {
		c.logger.Warn("disk write failed", "key", key, "error", err)
	}
}

// AddToMemory stores b in the memory tier. It reports whether b was stored.
// A bitmap evicted earlier is taken back from the reuse pool first, so no
// buffer is ever resident and reusable at the same time.
func (c *ImageCache) AddToMemory(key string, b *bitmap.Bitmap) bool {
	if c.memory == nil || b == nil {
		return false
	}
	c.reuse.Remove(b)
	return c.memory.Put(key, b)
}

// AddToDisk encodes b with the configured format and stores it on disk.
// Keys already on disk are left untouched without encoding.
func (c *ImageCache) AddToDisk(key string, b *bitmap.Bitmap) error {
	if c.disk == nil || !c.disk.Enabled() {
		return ErrDiskDisabled
	}
	if c.disk.Contains(key) {
		return nil
	}
	data, err := bitmap.Encode(b, c.params.Format, c.params.Quality)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.disk.Put(key, data)
}

// Decode decodes source bytes so the result is at least reqW x reqH where
// the source allows, drawing into an evicted buffer when one fits.
func (c *ImageCache) Decode(data []byte, reqW, reqH int) (*bitmap.Bitmap, error) {
	return c.decode(data, reqW, reqH, false)
}

func (c *ImageCache) decode(data []byte, reqW, reqH int, fullSize bool) (*bitmap.Bitmap, error) {
	dec := c.opts.decoder
	w, h, err := dec.DecodeConfig(data)
	if err != nil {
		return nil, err
	}

	sample := 1
	if !fullSize {
		sample = bitmap.SampleSize(w, h, reqW, reqH, c.opts.samplePolicy)
	}

	opts := bitmap.DecodeOptions{SampleSize: sample, Mutable: c.reuse != nil}
	if c.reuse != nil {
		opts.Reuse = c.reuse.Acquire(w, h, sample)
	}
	return dec.Decode(data, opts)
}

// InitDisk opens the disk tier and releases readers waiting for it.
// It performs disk IO and belongs on a worker.
func (c *ImageCache) InitDisk() {
	if c.disk != nil {
		c.disk.Initialize()
	}
}

// Clear empties both tiers and reopens the disk tier.
func (c *ImageCache) Clear() error {
	if c.memory != nil {
		c.memory.EvictAll()
		c.logger.Debug("memory tier cleared")
	}
	if c.disk != nil {
		if err := c.disk.Clear(); err != nil {
			return err
		}
		c.logger.Debug("disk tier cleared")
	}
	return nil
}

// Flush syncs the disk journal.
func (c *ImageCache) Flush() error {
	if c.disk == nil {
		return nil
	}
	return c.disk.Flush()
}

// Close closes the disk tier and drops the reuse pool. The memory tier
// stays usable.
func (c *ImageCache) Close() error {
	c.reuse.Purge()
	if c.disk == nil {
		return nil
	}
	return c.disk.Close()
}

// Stats is a snapshot of cache counters.
type Stats struct {
	MemoryEntries    int
	MemoryKB         int64
	MemoryCapacityKB int64
	MemoryHits       int64
	MemoryMisses     int64
	ReusableBuffers  int

	DiskEnabled bool
	DiskEntries int
	DiskBytes   int64
	DiskHits    int64
	DiskMisses  int64
	DiskWrites  int64
}

// Stats returns current counters.
func (c *ImageCache) Stats() Stats {
	var s Stats
	if c.memory != nil {
		s.MemoryEntries = c.memory.Len()
		s.MemoryKB = c.memory.SizeKB()
		s.MemoryCapacityKB = c.memory.CapacityKB()
		s.MemoryHits, s.MemoryMisses = c.memory.Stats()
		s.ReusableBuffers = c.reuse.Len()
	}
	if c.disk != nil {
		ds := c.disk.Stats()
		s.DiskEnabled = ds.Enabled
		s.DiskEntries = ds.Entries
		s.DiskBytes = ds.Bytes
		s.DiskHits = ds.Hits
		s.DiskMisses = ds.Misses
		s.DiskWrites = ds.Writes
	}
	return s
}
