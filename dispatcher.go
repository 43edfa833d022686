package imgcache

import "sync"

// Dispatcher runs completions in the context allowed to mutate slots.
// Post must not block on the posted function.
type Dispatcher interface {
	Post(fn func())
}

// Inline runs posted functions immediately on the posting goroutine.
// Suitable for headless use and tests where slots are goroutine-safe.
type Inline struct{}

// Post calls fn.
func (Inline) Post(fn func()) { fn() }

// MainLoop runs posted functions one at a time, in order, on a single
// goroutine. Post never blocks.
type MainLoop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewMainLoop starts a MainLoop.
func NewMainLoop() *MainLoop {
	m := &MainLoop{done: make(chan struct{})}
	m.cond = sync.NewCond(&m.mu)
	go m.run()
	return m
}

// Post queues fn. Functions posted after Close are dropped.
func (m *MainLoop) Post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue = append(m.queue, fn)
	m.cond.Signal()
}

func (m *MainLoop) run() {
	defer close(m.done)
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		batch := m.queue
		m.queue = nil
		m.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

// Close runs what is already queued, then stops the loop.
func (m *MainLoop) Close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Signal()
	m.mu.Unlock()
	<-m.done
}
