package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/imgcache/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Open(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir)
	ctx := context.Background()

	data := []byte("hello world, this is a test blob for imgcache")
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "albums"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "albums", "cover.jpg"), data, 0o644))

	blob, err := store.Open(ctx, "albums/cover.jpg")
	require.NoError(t, err)
	defer blob.Close()
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	rc, err := blob.ReadRange(ctx, 13, 4)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "this", string(got))

	_, err = store.Open(ctx, "icon.png")
	assert.ErrorIs(t, err, ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Open(cancelled, "albums/cover.jpg")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStore_RejectsEscapingNames(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Open(ctx, "../secret")
	assert.Error(t, err)
	_, err = store.Open(ctx, "a/../../x")
	assert.Error(t, err)
}

func TestLocalStore_ReadFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("data"), 0o644))
	faulty := fs.NewFaultyFS(fs.Default)
	faulty.AddRule("photo.jpg", fs.Fault{FailOnRead: true})
	store := NewLocalStoreFS(dir, faulty)

	_, err := store.Open(context.Background(), "photo.jpg")
	assert.ErrorIs(t, err, fs.ErrInjected)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	src := []byte("abcdef")
	require.NoError(t, store.Put(ctx, "a", src))
	src[0] = 'X'

	blob, err := store.Open(ctx, "a")
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := blob.ReadAt(ctx, buf, 2)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "cdef", string(buf[:n]))

	_, err = store.Open(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadAll(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	data := make([]byte, 10_000)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, store.Put(ctx, "big", data))

	got, err := ReadAll(ctx, store, "big", ReadOptions{ChunkSize: 777, Parallelism: 3})
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = ReadAll(ctx, store, "big", ReadOptions{MaxSize: 100})
	assert.ErrorIs(t, err, ErrTooLarge)

	require.NoError(t, store.Put(ctx, "empty", nil))
	got, err = ReadAll(ctx, store, "empty", ReadOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ReadAll(ctx, store, "missing", ReadOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
}
