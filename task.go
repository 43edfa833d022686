package imgcache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/imgcache/bitmap"
)

// State is the lifecycle position of a decode task.
type State int32

const (
	StateCreated State = iota
	StateCheckingMemory
	StateCheckingDisk
	StateDecoding
	StatePopulating
	StateCompleted
	// StateCancelled is reachable from every state before StateCompleted.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateCheckingMemory:
		return "checking_memory"
	case StateCheckingDisk:
		return "checking_disk"
	case StateDecoding:
		return "decoding"
	case StatePopulating:
		return "populating"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RenderFunc receives the result of Render. A nil bitmap means the image
// could not be loaded; err says why.
type RenderFunc func(b *bitmap.Bitmap, err error)

// task loads one key for one slot or render callback.
type task struct {
	key           string
	src           Source
	width, height int
	slot          Slot
	render        RenderFunc

	ctx      context.Context
	cancelFn context.CancelFunc
	state    atomic.Int32
	started  time.Time
}

func newTask(ctx context.Context, src Source, width, height int) *task {
	t := &task{
		key:     src.Key(width, height),
		src:     src,
		width:   width,
		height:  height,
		started: time.Now(),
	}
	t.ctx, t.cancelFn = context.WithCancel(ctx)
	return t
}

// State returns the current state.
func (t *task) State() State { return State(t.state.Load()) }

// cancel stops the task cooperatively. A completed task stays completed.
func (t *task) cancel() {
	t.cancelFn()
	for {
		s := t.state.Load()
		if State(s) == StateCompleted || State(s) == StateCancelled {
			return
		}
		if t.state.CompareAndSwap(s, int32(StateCancelled)) {
			return
		}
	}
}

func (t *task) cancelled() bool {
	return t.ctx.Err() != nil || t.State() == StateCancelled
}

// transition moves to next unless the task was cancelled.
func (t *task) transition(next State) bool {
	for {
		s := t.state.Load()
		if State(s) == StateCancelled {
			return false
		}
		if t.state.CompareAndSwap(s, int32(next)) {
			return true
		}
	}
}

// run executes the state machine on a worker. It re-validates the task
// before every step that does work, but once source bytes are decoded the
// result is always cached, exactly once per decode.
func (t *task) run(l *Loader) {
	if !t.advance(l, StateCheckingMemory) {
		t.finish(l, nil, "", ErrStaleCompletion)
		return
	}
	if b := l.cache.GetFromMemory(t.key); b != nil {
		l.metrics.RecordMemoryHit(true)
		t.finish(l, b, "memory", nil)
		return
	}
	l.metrics.RecordMemoryHit(false)

	if !t.advance(l, StateCheckingDisk) {
		t.finish(l, nil, "", ErrStaleCompletion)
		return
	}
	if b := l.cache.GetFromDisk(t.ctx, t.key); b != nil {
		l.metrics.RecordDiskHit(true)
		t.transition(StatePopulating)
		l.cache.Add(t.key, b)
		t.finish(l, b, "disk", nil)
		return
	}
	l.metrics.RecordDiskHit(false)

	if !t.advance(l, StateDecoding) {
		t.finish(l, nil, "", ErrStaleCompletion)
		return
	}
	// The flight that decoded b already cached it. Tasks sharing the
	// result must not add it again: it may have been evicted into the
	// reuse pool meanwhile.
	b, err := l.fetchAndDecode(t)
	if err != nil {
		t.finish(l, nil, "", err)
		return
	}
	t.finish(l, b, "source", nil)
}

// advance moves to next if the task is still wanted, and cancels it
// otherwise.
func (t *task) advance(l *Loader, next State) bool {
	if t.ctx.Err() != nil || (t.slot != nil && !l.bindings.current(t.slot, t)) {
		t.cancel()
		return false
	}
	return t.transition(next)
}

// finish completes the task and posts delivery to the dispatcher.
// Cancelled tasks are dropped here.
func (t *task) finish(l *Loader, b *bitmap.Bitmap, tier string, err error) {
	elapsed := time.Since(t.started)
	if !t.transition(StateCompleted) || t.ctx.Err() != nil {
		t.discard(l, elapsed)
		return
	}
	l.dispatcher.Post(func() { l.deliver(t, b, tier, elapsed, err) })
}

// discard drops the result. A task that is still its slot's pending work,
// for example one whose caller context ended, releases the slot.
func (t *task) discard(l *Loader, elapsed time.Duration) {
	if t.slot != nil {
		l.bindings.claim(t.slot, t)
	}
	l.metrics.RecordStale()
	l.logger.LogLoad(context.Background(), t.key, "", elapsed, ErrStaleCompletion)
	t.cancelFn()
}
