package imgcache

import (
	"context"
	"sync"
)

// maintenance runs cache operations one at a time, off the decode workers.
// Disk initialization must not take a worker slot: tasks on every slot
// could be waiting for it to finish.
type maintenance struct {
	mu      sync.Mutex
	closed  bool
	loop    *MainLoop
	pending sync.WaitGroup
}

func newMaintenance() *maintenance {
	return &maintenance{loop: NewMainLoop()}
}

func (m *maintenance) post(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.pending.Add(1)
	m.loop.Post(func() {
		defer m.pending.Done()
		fn()
	})
	return true
}

func (m *maintenance) wait() { m.pending.Wait() }

func (m *maintenance) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.loop.Close()
}

// InitDiskCache opens the disk tier in the background. Loads that reach
// the disk tier wait until it is open. New queues this already; calling it
// again is harmless.
func (l *Loader) InitDiskCache() error {
	return l.queue(func() {
		l.cache.InitDisk()
		params := l.cache.Params()
		if !params.DiskEnabled {
			return
		}
		var err error
		s := l.cache.Stats()
		if !s.DiskEnabled {
			err = ErrUnavailableStorage
		}
		l.logger.LogDiskInit(context.Background(), params.DiskDir, s.DiskEntries, err)
	})
}

// ClearCache empties both tiers in the background.
func (l *Loader) ClearCache() error {
	return l.queueOp("clear", l.cache.Clear)
}

// FlushCache syncs the disk tier in the background.
func (l *Loader) FlushCache() error {
	return l.queueOp("flush", l.cache.Flush)
}

// CloseCache closes the disk tier in the background. Loads keep working
// from memory and source.
func (l *Loader) CloseCache() error {
	return l.queueOp("close", l.cache.Close)
}

func (l *Loader) queueOp(op string, fn func() error) error {
	return l.queue(func() {
		l.logger.LogCacheOp(context.Background(), op, translateError(fn()))
	})
}

func (l *Loader) queue(fn func()) error {
	if l.isClosed.Load() || !l.maint.post(fn) {
		return ErrClosed
	}
	return nil
}

// Close cancels all pending work, waits for running tasks, then flushes
// the cache. The cache is closed only if the loader created it and no
// retainer holds it. Close is idempotent.
func (l *Loader) Close() error {
	if l == nil || !l.isClosed.CompareAndSwap(false, true) {
		return nil
	}
	// Wait out schedule calls that saw the loader open.
	l.closeMu.Lock()
	l.closeMu.Unlock() //nolint:staticcheck // empty critical section is the barrier
	l.bindings.cancelAll()
	l.cancel()
	l.tasks.Wait()

	var firstErr error
	l.maint.post(func() {
		if err := l.cache.Flush(); err != nil && firstErr == nil {
			firstErr = translateError(err)
		}
		if l.ownsCache {
			if err := l.cache.Close(); err != nil && firstErr == nil {
				firstErr = translateError(err)
			}
		}
	})
	l.maint.close()

	if l.ownedLoop != nil {
		l.ownedLoop.Close()
	}
	for _, c := range l.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
