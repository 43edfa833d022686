package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/internal/resource"
)

// EvictFunc receives every bitmap leaving the memory tier.
type EvictFunc func(key string, b *bitmap.Bitmap)

// MemoryTier is a size-weighted LRU of decoded bitmaps with a KB budget.
//
// Put never overwrites: the first writer for a key wins. Every removal,
// whether by capacity pressure, Remove or EvictAll, hands the bitmap to the
// evict callback.
type MemoryTier struct {
	mu         sync.Mutex
	capacityKB int64
	sizeKB     int64
	items      map[string]*list.Element
	evictList  *list.List
	onEvict    EvictFunc
	rc         *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type memEntry struct {
	key      string
	value    *bitmap.Bitmap
	weightKB int64
}

// NewMemoryTier creates a memory tier holding up to capacityKB kilobytes.
// If rc is provided, it is charged for the pixel bytes of resident entries.
func NewMemoryTier(capacityKB int64, onEvict EvictFunc, rc *resource.Controller) *MemoryTier {
	return &MemoryTier{
		capacityKB: capacityKB,
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		onEvict:    onEvict,
		rc:         rc,
	}
}

// Weight returns the KB weight of b, at least 1.
func Weight(b *bitmap.Bitmap) int64 {
	return max(int64(b.ByteCount())/1024, 1)
}

// Get returns the bitmap stored under key and marks it most recently used.
func (c *MemoryTier) Get(key string) (*bitmap.Bitmap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*memEntry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Put stores b under key unless the key is already present.
// It reports whether b was stored.
func (c *MemoryTier) Put(key string, b *bitmap.Bitmap) bool {
	if b == nil {
		return false
	}
	weight := Weight(b)

	c.mu.Lock()
	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		c.mu.Unlock()
		return false
	}
	if weight > c.capacityKB {
		c.mu.Unlock()
		return false
	}

	var evicted []*memEntry
	for c.sizeKB+weight > c.capacityKB {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		evicted = append(evicted, c.removeElement(back))
	}

	stored := false
	if c.rc.AcquireMemory(int64(b.ByteCount())) == nil {
		c.items[key] = c.evictList.PushFront(&memEntry{key: key, value: b, weightKB: weight})
		c.sizeKB += weight
		stored = true
	}
	c.mu.Unlock()

	c.notify(evicted)
	return stored
}

// Remove drops key from the tier.
func (c *MemoryTier) Remove(key string) bool {
	c.mu.Lock()
	ent, ok := c.items[key]
	var evicted []*memEntry
	if ok {
		evicted = append(evicted, c.removeElement(ent))
	}
	c.mu.Unlock()

	c.notify(evicted)
	return ok
}

// EvictAll empties the tier, least recently used first.
func (c *MemoryTier) EvictAll() {
	c.mu.Lock()
	evicted := make([]*memEntry, 0, c.evictList.Len())
	for back := c.evictList.Back(); back != nil; back = c.evictList.Back() {
		evicted = append(evicted, c.removeElement(back))
	}
	c.mu.Unlock()

	c.notify(evicted)
}

// Keys returns resident keys, most recently used first.
func (c *MemoryTier) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.evictList.Len())
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*memEntry).key)
	}
	return keys
}

// SizeKB returns the summed weight of resident entries.
func (c *MemoryTier) SizeKB() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sizeKB
}

// CapacityKB returns the configured budget.
func (c *MemoryTier) CapacityKB() int64 { return c.capacityKB }

// Len returns the number of resident entries.
func (c *MemoryTier) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

func (c *MemoryTier) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// removeElement must be called with c.mu held.
func (c *MemoryTier) removeElement(e *list.Element) *memEntry {
	c.evictList.Remove(e)
	kv := e.Value.(*memEntry)
	delete(c.items, kv.key)
	c.sizeKB -= kv.weightKB
	c.rc.ReleaseMemory(int64(kv.value.ByteCount()))
	return kv
}

func (c *MemoryTier) notify(evicted []*memEntry) {
	if c.onEvict == nil {
		return
	}
	for _, kv := range evicted {
		c.onEvict(kv.key, kv.value)
	}
}
