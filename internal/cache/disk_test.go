package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/imgcache/internal/fs"
	"github.com/hupe1980/imgcache/internal/hash"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func plentyOfSpace(string) (uint64, error) { return 1 << 40, nil }

func newDisk(t *testing.T, maxBytes int64) *DiskTier {
	t.Helper()
	d := NewDiskTier(DiskConfig{Dir: t.TempDir(), MaxBytes: maxBytes, FreeSpace: plentyOfSpace})
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDiskTier_RoundTrip(t *testing.T) {
	d := newDisk(t, 1<<20)
	d.Initialize()
	require.True(t, d.Enabled())

	key := "network:https://example.com/a b.jpg_100_100"
	require.NoError(t, d.Put(key, []byte("encoded")))

	got, ok := d.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, []byte("encoded"), got)

	hashed := hash.NewKeyHasher("", nil).Key(key)
	assert.Len(t, hashed, 64)
	assert.FileExists(t, filepath.Join(d.Dir(), hashed+".0"))

	_, ok = d.Get(context.Background(), "missing")
	assert.False(t, ok)

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Writes)
	assert.Equal(t, 1, stats.Entries)
}

func TestDiskTier_SHA512Keys(t *testing.T) {
	d := NewDiskTier(DiskConfig{
		Dir:       t.TempDir(),
		MaxBytes:  1 << 20,
		FreeSpace: plentyOfSpace,
		Hasher:    hash.NewKeyHasher(digest.SHA512, nil),
	})
	t.Cleanup(func() { _ = d.Close() })
	d.Initialize()
	require.True(t, d.Enabled())

	require.NoError(t, d.Put("net:a_64_64", []byte("encoded")))
	got, ok := d.Get(context.Background(), "net:a_64_64")
	require.True(t, ok)
	assert.Equal(t, []byte("encoded"), got)
	assert.Equal(t, 1, d.Stats().Entries)
}

func TestDiskTier_FirstWriterWins(t *testing.T) {
	d := newDisk(t, 1<<20)
	d.Initialize()

	require.NoError(t, d.Put("k", []byte("first")))
	require.NoError(t, d.Put("k", []byte("second")))

	got, ok := d.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, []byte("first"), got)
}

func TestDiskTier_QuotaNeverExceeded(t *testing.T) {
	var evicted int
	d := NewDiskTier(DiskConfig{
		Dir:       t.TempDir(),
		MaxBytes:  1024,
		FreeSpace: plentyOfSpace,
		OnEvict:   func(string, int64) { evicted++ },
	})
	defer d.Close()
	d.Initialize()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, d.Put(key, make([]byte, 400)))
		assert.LessOrEqual(t, d.Stats().Bytes, int64(1024))
	}
	assert.Equal(t, 1, evicted)

	_, ok := d.Get(context.Background(), "a")
	assert.False(t, ok, "least recently used entry evicted")
	assert.True(t, d.Contains("c"))
}

func TestDiskTier_ConcurrentInitializeOpensOnce(t *testing.T) {
	d := newDisk(t, 1<<20)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			d.Initialize()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	d.mu.Lock()
	opens := d.opens
	d.mu.Unlock()
	assert.Equal(t, 1, opens)
	assert.True(t, d.Enabled())
}

func TestDiskTier_GetWaitsForInitialize(t *testing.T) {
	d := newDisk(t, 1<<20)

	done := make(chan bool)
	go func() {
		_, ok := d.Get(context.Background(), "k")
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("Get returned before initialization")
	case <-time.After(50 * time.Millisecond):
	}

	d.Initialize()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("Get still blocked after Initialize")
	}
}

func TestDiskTier_GetHonorsContext(t *testing.T) {
	d := newDisk(t, 1<<20)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := d.Get(ctx, "k")
	assert.False(t, ok)
}

func TestDiskTier_InsufficientSpaceDisables(t *testing.T) {
	d := NewDiskTier(DiskConfig{
		Dir:       t.TempDir(),
		MaxBytes:  1 << 20,
		FreeSpace: func(string) (uint64, error) { return 1 << 20, nil },
	})
	d.Initialize()

	assert.False(t, d.Enabled(), "free space must strictly exceed the quota")
	assert.ErrorIs(t, d.Put("k", []byte("v")), ErrDiskDisabled)
	_, ok := d.Get(context.Background(), "k")
	assert.False(t, ok)
	require.NoError(t, d.Flush())
	require.NoError(t, d.Close())
}

func TestDiskTier_FreeSpaceErrors(t *testing.T) {
	d := NewDiskTier(DiskConfig{
		Dir:       t.TempDir(),
		MaxBytes:  1024,
		FreeSpace: func(string) (uint64, error) { return 0, fs.ErrFreeSpaceUnsupported },
	})
	defer d.Close()
	d.Initialize()
	assert.True(t, d.Enabled(), "unknown free space does not block the tier")

	d2 := NewDiskTier(DiskConfig{
		Dir:       t.TempDir(),
		MaxBytes:  1024,
		FreeSpace: func(string) (uint64, error) { return 0, errors.New("statfs failed") },
	})
	d2.Initialize()
	assert.False(t, d2.Enabled())
}

func TestDiskTier_Clear(t *testing.T) {
	d := newDisk(t, 1<<20)
	d.Initialize()
	require.NoError(t, d.Put("k", []byte("v")))

	require.NoError(t, d.Clear())
	assert.True(t, d.Enabled(), "clear reopens an empty store")
	assert.False(t, d.Contains("k"))
	assert.Equal(t, 0, d.Stats().Entries)

	require.NoError(t, d.Put("k", []byte("v2")))
	got, ok := d.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got)
}

func TestDiskTier_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	d := NewDiskTier(DiskConfig{Dir: dir, MaxBytes: 1 << 20, FreeSpace: plentyOfSpace})
	d.Initialize()
	require.NoError(t, d.Put("k", []byte("v")))
	require.NoError(t, d.Close())

	d = NewDiskTier(DiskConfig{Dir: dir, MaxBytes: 1 << 20, FreeSpace: plentyOfSpace})
	defer d.Close()
	d.Initialize()
	got, ok := d.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestDiskTier_CloseReleasesWaiters(t *testing.T) {
	d := newDisk(t, 1<<20)

	done := make(chan struct{})
	go func() {
		d.Get(context.Background(), "k")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.Close())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not release waiting readers")
	}
}
