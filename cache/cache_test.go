package cache

import (
	"context"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plentyOfSpace(string) (uint64, error) { return 1 << 40, nil }

func newCache(t *testing.T, params Params, opts ...Option) *ImageCache {
	t.Helper()
	c, err := New(params, append([]Option{WithFreeSpace(plentyOfSpace)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams(t.TempDir()).Validate())
	require.NoError(t, DefaultParams("").Validate(), "no dir disables the disk tier")

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"memory budget", func(p *Params) { p.MemoryKB = 0 }},
		{"disk dir", func(p *Params) { p.DiskDir = "" }},
		{"disk quota", func(p *Params) { p.DiskBytes = -1 }},
		{"quality", func(p *Params) { p.Quality = 101 }},
		{"reuse", func(p *Params) { p.Reuse = 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams("dir")
			tt.mutate(&p)
			assert.Error(t, p.Validate())
			_, err := New(p)
			assert.Error(t, err)
		})
	}
}

func TestMemoryBudgetKB(t *testing.T) {
	assert.Equal(t, MemoryBudgetKB(DefaultMemoryFraction), MemoryBudgetKB(1), "small fractions are raised")
	assert.Equal(t, MemoryBudgetKB(4)/2, MemoryBudgetKB(8))
	assert.Positive(t, DefaultParams("").WithMemoryFraction(8).MemoryKB)
}

func TestImageCache_MemoryFirstWriterWins(t *testing.T) {
	c := newCache(t, DefaultParams(""))
	a, b := bitmap.New(8, 8), bitmap.New(8, 8)

	assert.True(t, c.AddToMemory("k", a))
	assert.False(t, c.AddToMemory("k", b))
	assert.Same(t, a, c.GetFromMemory("k"))
	assert.Nil(t, c.GetFromMemory("missing"))
}

func TestImageCache_DiskRoundTrip(t *testing.T) {
	dir := t.TempDir()
	params := DefaultParams(dir)
	params.Format = bitmap.FormatPNG

	src := bitmap.FromImage(testutil.Gradient(40, 30))

	c := newCache(t, params)
	c.InitDisk()
	c.Add("k", src)
	require.NoError(t, c.Flush())
	require.NoError(t, c.Close())

	c2 := newCache(t, params)
	c2.InitDisk()
	assert.Nil(t, c2.GetFromMemory("k"))

	got := c2.GetFromDisk(context.Background(), "k")
	require.NotNil(t, got)
	assert.True(t, bitmap.SamePixels(src, got))
}

func TestImageCache_DiskHitIsFullSize(t *testing.T) {
	params := DefaultParams(t.TempDir())
	params.Format = bitmap.FormatRawLZ4
	c := newCache(t, params, WithSamplePolicy(bitmap.PooledSamplePolicy))
	c.InitDisk()

	require.NoError(t, c.AddToDisk("k", bitmap.FromImage(testutil.Gradient(32, 16))))

	got := c.GetFromDisk(context.Background(), "k")
	require.NotNil(t, got)
	assert.Equal(t, 32, got.Width())
	assert.Equal(t, 16, got.Height())
}

func TestImageCache_DecodeSamples(t *testing.T) {
	c := newCache(t, DefaultParams(""))
	data := testutil.PNG(testutil.Gradient(200, 100))

	b, err := c.Decode(data, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, 100, b.Width(), "factor 2 keeps both sides above the target")
	assert.Equal(t, 50, b.Height())
	assert.True(t, b.Mutable())

	_, err = c.Decode([]byte("not an image"), 10, 10)
	assert.ErrorIs(t, err, bitmap.ErrUnsupported)
}

func TestImageCache_DecodeReusesEvictedBuffer(t *testing.T) {
	params := DefaultParams("")
	params.MemoryKB = 16
	c := newCache(t, params)

	evicted := bitmap.New(64, 64)
	require.True(t, c.AddToMemory("a", evicted))
	require.True(t, c.AddToMemory("b", bitmap.New(64, 64)))
	assert.Nil(t, c.GetFromMemory("a"))
	assert.Equal(t, 1, c.Stats().ReusableBuffers)

	got, err := c.Decode(testutil.PNG(testutil.Gradient(64, 64)), 64, 64)
	require.NoError(t, err)
	assert.Same(t, evicted, got)
	assert.Equal(t, 0, c.Stats().ReusableBuffers)
}

func TestImageCache_ReAddedBitmapLeavesPool(t *testing.T) {
	params := DefaultParams("")
	params.MemoryKB = 16
	c := newCache(t, params)

	b := bitmap.FromImage(testutil.Gradient(64, 64))
	b.SetMutable(true)
	want := append([]byte(nil), b.Image().Pix...)

	c.Add("k", b)
	require.True(t, c.AddToMemory("other", bitmap.New(64, 64)))
	require.Nil(t, c.GetFromMemory("k"))
	require.Equal(t, 1, c.Stats().ReusableBuffers)

	c.Add("k", b)
	require.Same(t, b, c.GetFromMemory("k"))
	assert.Equal(t, 1, c.Stats().ReusableBuffers, "only the evicted other bitmap is reusable")

	red := testutil.PNG(testutil.Solid(64, 64, color.RGBA{R: 255, A: 255}))
	got, err := c.Decode(red, 64, 64)
	require.NoError(t, err)
	assert.NotSame(t, b, got)
	assert.Equal(t, want, c.GetFromMemory("k").Image().Pix, "resident pixels untouched by the decode")
}

func TestImageCache_ClosePurgesReusePool(t *testing.T) {
	params := DefaultParams("")
	params.MemoryKB = 16
	c := newCache(t, params)

	require.True(t, c.AddToMemory("a", bitmap.New(64, 64)))
	require.True(t, c.AddToMemory("b", bitmap.New(64, 64)))
	require.Equal(t, 1, c.Stats().ReusableBuffers)

	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Stats().ReusableBuffers)
}

func TestImageCache_DiskDisabled(t *testing.T) {
	c := newCache(t, DefaultParams(""))
	c.InitDisk()

	assert.ErrorIs(t, c.AddToDisk("k", bitmap.New(1, 1)), ErrDiskDisabled)

	done := make(chan struct{})
	go func() {
		assert.Nil(t, c.GetFromDisk(context.Background(), "k"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("GetFromDisk blocked without a disk tier")
	}
}

func TestImageCache_InsufficientSpaceKeepsMemory(t *testing.T) {
	c := newCache(t, DefaultParams(t.TempDir()), WithFreeSpace(func(string) (uint64, error) { return 1, nil }))
	c.InitDisk()

	b := bitmap.New(4, 4)
	c.Add("k", b)
	assert.Same(t, b, c.GetFromMemory("k"))
	assert.False(t, c.Stats().DiskEnabled)
}

func TestImageCache_Clear(t *testing.T) {
	var evicted []string
	c := newCache(t, DefaultParams(t.TempDir()), WithEvictionHook(func(key string) {
		evicted = append(evicted, key)
	}))
	c.InitDisk()
	c.Add("k", bitmap.FromImage(testutil.Gradient(8, 8)))

	require.NoError(t, c.Clear())

	assert.Nil(t, c.GetFromMemory("k"))
	assert.Nil(t, c.GetFromDisk(context.Background(), "k"))
	assert.Equal(t, []string{"k"}, evicted)

	s := c.Stats()
	assert.True(t, s.DiskEnabled)
	assert.Equal(t, 0, s.DiskEntries)
	assert.Equal(t, 0, s.MemoryEntries)
}

func TestImageCache_MemoryLimit(t *testing.T) {
	c := newCache(t, DefaultParams(""), WithMemoryLimit(20*1024))

	assert.True(t, c.AddToMemory("a", bitmap.New(64, 64)))
	assert.False(t, c.AddToMemory("b", bitmap.New(64, 64)))
}

func TestGetOrCreate(t *testing.T) {
	store := NewRetainedStore()
	params := DefaultParams("")

	a, err := GetOrCreate(store, "ns", params)
	require.NoError(t, err)
	b, err := GetOrCreate(store, "ns", params)
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := GetOrCreate(store, "other", params)
	require.NoError(t, err)
	assert.NotSame(t, a, other)

	store.Put("preset", other)
	preset, err := GetOrCreate(store, "preset", params)
	require.NoError(t, err)
	assert.Same(t, other, preset)

	removed, ok := store.Remove("ns")
	assert.True(t, ok)
	assert.Same(t, a, removed)
	_, ok = store.Get("ns")
	assert.False(t, ok)

	bad := params
	bad.MemoryKB = 0
	_, err = GetOrCreate(store, "bad", bad)
	assert.Error(t, err)
	_, ok = store.Get("bad")
	assert.False(t, ok)
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	store := NewRetainedStore()
	params := DefaultParams("")

	var (
		mu   sync.Mutex
		seen = make(map[*ImageCache]struct{})
		wg   sync.WaitGroup
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := GetOrCreate(store, "ns", params)
			assert.NoError(t, err)
			mu.Lock()
			seen[c] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1)

	other := NewRetainedStore()
	c, err := GetOrCreate(other, "ns", params)
	require.NoError(t, err)
	_, shared := seen[c]
	assert.False(t, shared, "stores do not share state")
}
