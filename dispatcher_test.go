package imgcache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMainLoop_RunsInOrder(t *testing.T) {
	m := NewMainLoop()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 100 {
		m.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	m.Close()

	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestMainLoop_DropsAfterClose(t *testing.T) {
	m := NewMainLoop()
	m.Close()

	ran := false
	m.Post(func() { ran = true })
	assert.False(t, ran)
}

func TestInline(t *testing.T) {
	ran := false
	Inline{}.Post(func() { ran = true })
	assert.True(t, ran)
}
