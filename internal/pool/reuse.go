// Package pool keeps decode buffers released by the memory tier so later
// decodes can draw into them instead of allocating.
package pool

import (
	"slices"
	"sync"
	"weak"

	"github.com/hupe1980/imgcache/bitmap"
)

// Strategy decides whether a pooled buffer can hold a decode.
type Strategy uint8

const (
	// ByteCount accepts any buffer whose allocation holds the decoded pixels.
	ByteCount Strategy = iota
	// ExactSize accepts only buffers with exactly the decoded dimensions.
	ExactSize
)

func (s Strategy) String() string {
	if s == ExactSize {
		return "exact-size"
	}
	return "byte-count"
}

type reusable struct {
	ref    weak.Pointer[bitmap.Bitmap]
	width  int
	height int
}

// ReusePool holds weak references to released bitmaps. The runtime may
// reclaim a pooled bitmap at any time; such entries are skipped and dropped.
//
// Acquire transfers ownership: a returned bitmap is no longer in the pool.
type ReusePool struct {
	mu       sync.Mutex
	entries  []reusable
	strategy Strategy
}

// NewReusePool creates an empty pool using strategy for compatibility checks.
func NewReusePool(strategy Strategy) *ReusePool {
	return &ReusePool{strategy: strategy}
}

// Release offers b for reuse. Immutable bitmaps are ignored.
func (p *ReusePool) Release(b *bitmap.Bitmap) {
	if p == nil || b == nil || !b.Mutable() {
		return
	}
	ref := weak.Make(b)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.ref == ref {
			return
		}
	}
	p.entries = append(p.entries, reusable{
		ref:    ref,
		width:  b.Width(),
		height: b.Height(),
	})
}

// Remove takes b back out of the pool, so a bitmap that becomes resident
// again is never handed to a decode. It reports whether b was pooled.
func (p *ReusePool) Remove(b *bitmap.Bitmap) bool {
	if p == nil || b == nil {
		return false
	}
	ref := weak.Make(b)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.ref == ref {
			p.entries = slices.Delete(p.entries, i, i+1)
			return true
		}
	}
	return false
}

// Acquire returns a pooled bitmap able to hold a width x height source
// decoded at sampleSize, or nil.
func (p *ReusePool) Acquire(width, height, sampleSize int) *bitmap.Bitmap {
	if p == nil {
		return nil
	}
	sampleSize = max(sampleSize, 1)
	w := max(width/sampleSize, 1)
	h := max(height/sampleSize, 1)

	p.mu.Lock()
	defer p.mu.Unlock()

	live := p.entries[:0]
	var found *bitmap.Bitmap
	for _, e := range p.entries {
		b := e.ref.Value()
		if b == nil {
			continue
		}
		if found == nil && p.fits(e, b, w, h) {
			found = b
			continue
		}
		live = append(live, e)
	}
	clear(p.entries[len(live):])
	p.entries = live
	return found
}

func (p *ReusePool) fits(e reusable, b *bitmap.Bitmap, w, h int) bool {
	if !b.Mutable() {
		return false
	}
	if p.strategy == ExactSize {
		return e.width == w && e.height == h
	}
	return w*h*bitmap.BytesPerPixel <= b.AllocationByteCount()
}

// Len returns the number of entries, including ones the runtime may have
// reclaimed since they were released.
func (p *ReusePool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Purge drops all entries.
func (p *ReusePool) Purge() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.entries = nil
	p.mu.Unlock()
}
