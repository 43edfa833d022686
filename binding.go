package imgcache

import "sync"

// bindings maps each slot to the task allowed to write to it.
type bindings struct {
	mu      sync.Mutex
	pending map[Slot]*task
}

func newBindings() *bindings {
	return &bindings{pending: make(map[Slot]*task)}
}

// bind installs the task made by newTask as the slot's pending work. If
// the slot already waits for key, nothing changes and bind returns false.
// The superseded task, if any, is cancelled. Slot methods are never called
// with b.mu held, so slots may call back into the loader.
func (b *bindings) bind(slot Slot, key string, newTask func() *task) (*task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old := b.pending[slot]; old != nil {
		if old.key == key && !old.cancelled() {
			return old, false
		}
		old.cancel()
	}

	t := newTask()
	b.pending[slot] = t
	return t, true
}

// current reports whether t is still the slot's pending work.
func (b *bindings) current(slot Slot, t *task) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[slot] == t
}

// lookup returns the slot's pending task or nil.
func (b *bindings) lookup(slot Slot) *task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending[slot]
}

// claim removes t from the slot if it is still pending there. Exactly one
// caller can claim a binding, which makes the final slot write race free.
func (b *bindings) claim(slot Slot, t *task) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[slot] != t {
		return false
	}
	delete(b.pending, slot)
	return true
}

// unbind removes and cancels the slot's pending work.
func (b *bindings) unbind(slot Slot) *task {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.pending[slot]
	if t != nil {
		t.cancel()
		delete(b.pending, slot)
	}
	return t
}

// cancelAll cancels every pending task and forgets all slots.
func (b *bindings) cancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for slot, t := range b.pending {
		t.cancel()
		delete(b.pending, slot)
	}
}

func (b *bindings) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
