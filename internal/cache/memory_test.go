package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/internal/pool"
	"github.com/hupe1980/imgcache/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 64x64 RGBA is exactly 16 KB.
func tile() *bitmap.Bitmap { return bitmap.New(64, 64) }

func TestWeight(t *testing.T) {
	assert.Equal(t, int64(16), Weight(tile()))
	assert.Equal(t, int64(1), Weight(bitmap.New(1, 1)), "minimum weight is 1")
	assert.Equal(t, int64(1), Weight(bitmap.New(16, 20)))
}

func TestMemoryTier_FirstWriterWins(t *testing.T) {
	c := NewMemoryTier(1024, nil, nil)
	a, b := tile(), tile()

	assert.True(t, c.Put("k", a))
	assert.False(t, c.Put("k", b))

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, int64(16), c.SizeKB())
}

func TestMemoryTier_LRUEviction(t *testing.T) {
	var evicted []string
	c := NewMemoryTier(100, func(key string, _ *bitmap.Bitmap) {
		evicted = append(evicted, key)
	}, nil)

	for i := 0; i < 6; i++ {
		require.True(t, c.Put(fmt.Sprintf("k%d", i), tile()))
	}
	assert.Equal(t, int64(96), c.SizeKB())

	_, ok := c.Get("k0")
	require.True(t, ok)

	require.True(t, c.Put("k6", tile()))
	assert.Equal(t, []string{"k1"}, evicted)
	assert.LessOrEqual(t, c.SizeKB(), c.CapacityKB())

	_, ok = c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, []string{"k6", "k0", "k5", "k4", "k3", "k2"}, c.Keys())
}

func TestMemoryTier_OversizedNotStored(t *testing.T) {
	c := NewMemoryTier(10, nil, nil)
	assert.False(t, c.Put("big", tile()))
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Put("nil", nil))
}

func TestMemoryTier_EvictAllFeedsPool(t *testing.T) {
	p := pool.NewReusePool(pool.ByteCount)
	c := NewMemoryTier(1024, func(_ string, b *bitmap.Bitmap) { p.Release(b) }, nil)

	bitmaps := []*bitmap.Bitmap{tile(), tile(), tile()}
	for i, b := range bitmaps {
		require.True(t, c.Put(fmt.Sprintf("k%d", i), b))
	}

	c.EvictAll()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.SizeKB())
	assert.Equal(t, 3, p.Len())

	// A 128x128 source at factor 2 needs exactly one 64x64 buffer.
	got := p.Acquire(128, 128, 2)
	require.NotNil(t, got)
	assert.Contains(t, bitmaps, got)
}

func TestMemoryTier_CapacityEvictionFeedsPool(t *testing.T) {
	p := pool.NewReusePool(pool.ByteCount)
	c := NewMemoryTier(32, func(_ string, b *bitmap.Bitmap) { p.Release(b) }, nil)

	first := tile()
	c.Put("a", first)
	c.Put("b", tile())
	c.Put("c", tile())

	assert.Same(t, first, p.Acquire(32, 32, 1), "smaller footprint reuses evicted buffer")
}

func TestMemoryTier_Remove(t *testing.T) {
	var evicted int
	c := NewMemoryTier(1024, func(string, *bitmap.Bitmap) { evicted++ }, nil)
	c.Put("k", tile())

	assert.True(t, c.Remove("k"))
	assert.False(t, c.Remove("k"))
	assert.Equal(t, 1, evicted)
}

func TestMemoryTier_ResourceController(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 40 * 1024})
	c := NewMemoryTier(1024, nil, rc)

	require.True(t, c.Put("a", tile()))
	require.True(t, c.Put("b", tile()))
	assert.Equal(t, int64(32*1024), rc.MemoryUsage())

	assert.False(t, c.Put("c", tile()), "global memory limit rejects the entry")

	c.EvictAll()
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestMemoryTier_Stats(t *testing.T) {
	c := NewMemoryTier(1024, nil, nil)
	c.Put("k", tile())
	c.Get("k")
	c.Get("missing")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestMemoryTier_Concurrent(t *testing.T) {
	c := NewMemoryTier(256, func(string, *bitmap.Bitmap) {}, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*7+i)%40)
				c.Put(key, tile())
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.SizeKB(), int64(256))
}
