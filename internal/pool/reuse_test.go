package pool

import (
	"runtime"
	"testing"

	"github.com/hupe1980/imgcache/bitmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReusePool_ByteCount(t *testing.T) {
	p := NewReusePool(ByteCount)
	b := bitmap.New(100, 100)
	p.Release(b)
	require.Equal(t, 1, p.Len())

	assert.Nil(t, p.Acquire(400, 400, 2), "200x200 does not fit 100x100")
	assert.Equal(t, 1, p.Len())

	got := p.Acquire(300, 100, 2)
	assert.Same(t, b, got)
	assert.Equal(t, 0, p.Len(), "acquire removes the entry")
	assert.Nil(t, p.Acquire(10, 10, 1))
}

func TestReusePool_ExactSize(t *testing.T) {
	p := NewReusePool(ExactSize)
	b := bitmap.New(50, 40)
	p.Release(b)

	assert.Nil(t, p.Acquire(50, 50, 1))
	assert.Nil(t, p.Acquire(40, 30, 1), "smaller does not match exactly")
	assert.Same(t, b, p.Acquire(100, 80, 2))
}

func TestReusePool_IgnoresImmutable(t *testing.T) {
	p := NewReusePool(ByteCount)
	b := bitmap.New(10, 10)
	b.SetMutable(false)
	p.Release(b)
	p.Release(nil)
	assert.Equal(t, 0, p.Len())
}

func TestReusePool_SkipsReclaimed(t *testing.T) {
	p := NewReusePool(ByteCount)
	func() {
		p.Release(bitmap.New(64, 64))
	}()
	kept := bitmap.New(32, 32)
	p.Release(kept)

	runtime.GC()
	runtime.GC()

	assert.Nil(t, p.Acquire(64, 64, 1), "reclaimed buffer is never offered")
	assert.Equal(t, 1, p.Len(), "reclaimed entry dropped during the scan")
	assert.Same(t, kept, p.Acquire(8, 8, 1))
	runtime.KeepAlive(kept)
}

func TestReusePool_NilSafe(t *testing.T) {
	var p *ReusePool
	p.Release(bitmap.New(1, 1))
	assert.Nil(t, p.Acquire(1, 1, 1))
	assert.Equal(t, 0, p.Len())
	p.Purge()
}

func TestReusePool_Purge(t *testing.T) {
	p := NewReusePool(ByteCount)
	b := bitmap.New(4, 4)
	p.Release(b)
	p.Purge()
	assert.Nil(t, p.Acquire(1, 1, 1))
	runtime.KeepAlive(b)
}

func TestReusePool_ReleaseIsIdempotent(t *testing.T) {
	p := NewReusePool(ByteCount)
	b := bitmap.New(8, 8)
	p.Release(b)
	p.Release(b)
	assert.Equal(t, 1, p.Len())
}

func TestReusePool_Remove(t *testing.T) {
	p := NewReusePool(ByteCount)
	a, b := bitmap.New(8, 8), bitmap.New(8, 8)
	p.Release(a)
	p.Release(b)

	assert.True(t, p.Remove(a))
	assert.False(t, p.Remove(a))
	assert.False(t, p.Remove(nil))
	assert.Equal(t, 1, p.Len())
	assert.Same(t, b, p.Acquire(8, 8, 1))
	assert.Nil(t, p.Acquire(8, 8, 1), "removed buffer is never offered")
	runtime.KeepAlive(a)
}
