package imgcache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/cache"
	"github.com/hupe1980/imgcache/source"
	"github.com/stretchr/testify/assert"
)

func TestSource_Key(t *testing.T) {
	src := Network("https://example.com/a.jpg")
	assert.Equal(t, "net:https://example.com/a.jpg_100_50", src.Key(100, 50))
	assert.NotEqual(t, src.Key(100, 50), src.Key(50, 100))
	assert.NotEqual(t, src.Key(1, 1), File("https://example.com/a.jpg").Key(1, 1))

	assert.Equal(t, "res:icons/a.png", Resource("icons/a.png").String())
	assert.Equal(t, "blob:a", Blob("a").String())
	assert.Equal(t, "kind9", SourceKind(9).String())
}

func TestFetchError(t *testing.T) {
	err := fetchError(Network("u"), &source.StatusError{URL: "u", StatusCode: 404})

	assert.ErrorIs(t, err, ErrFetchFailure)
	var fe *FetchError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, 404, fe.StatusCode)
	assert.True(t, fe.NotFound())
	assert.Contains(t, err.Error(), "status 404")

	err = fetchError(File("/x"), fmt.Errorf("read: %w", source.ErrNotFound))
	assert.True(t, err.(*FetchError).NotFound())
	assert.NoError(t, fetchError(File("/x"), nil))
}

func TestTranslateError(t *testing.T) {
	assert.ErrorIs(t, translateError(bitmap.ErrUnsupported), ErrDecodeFailure)
	assert.ErrorIs(t, translateError(cache.ErrDiskDisabled), ErrUnavailableStorage)
	assert.NoError(t, translateError(nil))

	other := errors.New("other")
	assert.Same(t, other, translateError(other))
}
