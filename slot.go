package imgcache

import "github.com/hupe1980/imgcache/bitmap"

// Slot is a display target that shows one image at a time.
//
// Implementations must be comparable, typically pointer types, because the
// loader tracks pending work per slot identity. Completions are delivered
// on the loader's Dispatcher. Placeholders and memory hits are set on the
// goroutine calling Load, which is why Load must run on the Dispatcher too.
// Methods may call back into the Loader.
type Slot interface {
	// SetContent shows a loaded image. A nil bitmap means the load failed
	// and the slot should show its fallback state.
	SetContent(b *bitmap.Bitmap)

	// SetPlaceholder shows the loading image while the task identified by
	// marker is pending. The placeholder is nil when none is configured.
	SetPlaceholder(placeholder *bitmap.Bitmap, marker Marker)
}

// Marker identifies one pending task. Markers compare by task identity, so
// two loads of the same key still carry different markers.
type Marker struct {
	t *task
}

// Pending reports whether the marker refers to a task.
func (m Marker) Pending() bool { return m.t != nil }

// Key returns the cache key of the task, or "".
func (m Marker) Key() string {
	if m.t == nil {
		return ""
	}
	return m.t.key
}

// State returns the task state. The zero Marker reports StateCompleted.
func (m Marker) State() State {
	if m.t == nil {
		return StateCompleted
	}
	return m.t.State()
}
