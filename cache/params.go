package cache

import (
	"errors"
	"fmt"
	"math"
	"runtime/debug"

	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/internal/pool"
)

const (
	// DefaultMemoryKB is the memory tier budget when none is derived.
	DefaultMemoryKB = 5 * 1024
	// DefaultDiskBytes is the disk tier quota.
	DefaultDiskBytes = 20 << 20
	// DefaultMemoryFraction divides the available memory for the memory tier.
	// Smaller divisors are raised to it.
	DefaultMemoryFraction = 4

	// assumedMemoryBytes stands in for the available memory when no soft
	// limit is set for the process.
	assumedMemoryBytes = 256 << 20
)

// ReuseStrategy decides which evicted buffers may hold a new decode.
type ReuseStrategy = pool.Strategy

const (
	// ReuseByteCount reuses any buffer large enough for the decoded pixels.
	ReuseByteCount = pool.ByteCount
	// ReuseExactSize reuses only buffers with the decoded dimensions.
	ReuseExactSize = pool.ExactSize
)

// Params is the immutable configuration of an ImageCache.
type Params struct {
	MemoryEnabled bool
	// MemoryKB is the memory tier budget in kilobytes.
	MemoryKB int64

	DiskEnabled bool
	// DiskDir holds the journal and one file per entry.
	DiskDir string
	// DiskBytes is the disk tier quota.
	DiskBytes int64

	// Format and Quality control how bitmaps are encoded for the disk tier.
	Format  bitmap.Format
	Quality int

	Reuse ReuseStrategy

	// AppVersion is recorded by the disk store. A different version on open
	// discards the stored entries.
	AppVersion int
}

// DefaultParams returns the default configuration with the disk tier in dir.
func DefaultParams(dir string) Params {
	return Params{
		MemoryEnabled: true,
		MemoryKB:      DefaultMemoryKB,
		DiskEnabled:   dir != "",
		DiskDir:       dir,
		DiskBytes:     DefaultDiskBytes,
		Format:        bitmap.FormatJPEG,
		Quality:       bitmap.DefaultQuality,
		Reuse:         ReuseByteCount,
		AppVersion:    1,
	}
}

// WithMemoryFraction returns a copy of p whose memory budget is the available
// memory divided by fraction. See MemoryBudgetKB.
func (p Params) WithMemoryFraction(fraction int) Params {
	p.MemoryKB = MemoryBudgetKB(fraction)
	return p
}

// Validate reports configuration errors.
func (p Params) Validate() error {
	var errs []error
	if p.MemoryEnabled && p.MemoryKB <= 0 {
		errs = append(errs, fmt.Errorf("memory budget must be positive, got %d KB", p.MemoryKB))
	}
	if p.DiskEnabled {
		if p.DiskDir == "" {
			errs = append(errs, errors.New("disk tier enabled without a directory"))
		}
		if p.DiskBytes <= 0 {
			errs = append(errs, fmt.Errorf("disk quota must be positive, got %d", p.DiskBytes))
		}
	}
	if p.Quality < 0 || p.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality must be within [0, 100], got %d", p.Quality))
	}
	if p.Reuse != ReuseByteCount && p.Reuse != ReuseExactSize {
		errs = append(errs, fmt.Errorf("unknown reuse strategy %d", p.Reuse))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cache: invalid params: %w", err)
	}
	return nil
}

// MemoryBudgetKB returns the available memory in KB divided by fraction.
// Fractions below DefaultMemoryFraction are raised to it. The available
// memory is the process soft memory limit, or 256 MiB if none is set.
func MemoryBudgetKB(fraction int) int64 {
	fraction = max(fraction, DefaultMemoryFraction)
	available := debug.SetMemoryLimit(-1)
	if available <= 0 || available == math.MaxInt64 {
		available = assumedMemoryBytes
	}
	return available / 1024 / int64(fraction)
}
