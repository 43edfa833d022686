package imgcache

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/blobstore"
	"github.com/hupe1980/imgcache/cache"
	"github.com/hupe1980/imgcache/internal/resource"
	"github.com/hupe1980/imgcache/source"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"
)

// Loader binds images to slots. Memory hits are served synchronously; all
// other loads run as cancellable tasks on a bounded worker pool and only
// the task a slot currently waits for may write to it.
type Loader struct {
	cache      *cache.ImageCache
	ownsCache  bool
	fetchers   map[SourceKind]source.Fetcher
	closers    []func() error
	dispatcher Dispatcher
	ownedLoop  *MainLoop
	metrics    MetricsCollector
	logger     *Logger
	rc         *resource.Controller

	bindings    *bindings
	flight      singleflight.Group
	placeholder atomic.Pointer[bitmap.Bitmap]

	ctx    context.Context
	cancel context.CancelFunc
	// closeMu orders tasks.Add against Close: schedule holds it shared,
	// Close takes it once after setting isClosed.
	closeMu  sync.RWMutex
	tasks    sync.WaitGroup
	maint    *maintenance
	isClosed atomic.Bool
}

// New creates a Loader with a cache built from params, or the cache given
// with WithCache or held by WithRetainer. The disk tier is opened in the
// background right away.
func New(params cache.Params, optFns ...Option) (*Loader, error) {
	opts := applyOptions(optFns)

	l := &Loader{
		dispatcher: opts.dispatcher,
		metrics:    opts.metricsCollector,
		logger:     opts.logger,
		bindings:   newBindings(),
		rc: resource.NewController(resource.Config{
			MaxDecoders:      int64(opts.workers),
			FetchBytesPerSec: opts.fetchBytesPerSec,
		}),
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.placeholder.Store(opts.loadingImage)

	if err := l.initCache(params, opts); err != nil {
		l.cancel()
		return nil, err
	}
	l.initFetchers(opts)

	if l.dispatcher == nil {
		l.ownedLoop = NewMainLoop()
		l.dispatcher = l.ownedLoop
	}
	l.maint = newMaintenance()
	_ = l.InitDiskCache()
	return l, nil
}

func (l *Loader) initCache(params cache.Params, opts options) error {
	if opts.cache != nil {
		l.cache = opts.cache
		return nil
	}

	var fallbackOnce sync.Once
	cacheOpts := append([]cache.Option{
		cache.WithLogger(l.logger.Logger),
		cache.WithEvictionHook(func(key string) {
			l.metrics.RecordEviction()
			l.logger.LogEviction(key)
		}),
		cache.WithHashFallbackHook(func(alg digest.Algorithm) {
			fallbackOnce.Do(func() { l.logger.LogHashFallback(alg.String()) })
		}),
	}, opts.cacheOptions...)

	var (
		c   *cache.ImageCache
		err error
	)
	if opts.retainer != nil {
		c, err = cache.GetOrCreate(opts.retainer, opts.namespace, params, cacheOpts...)
	} else {
		c, err = cache.New(params, cacheOpts...)
		l.ownsCache = true
	}
	if err != nil {
		return fmt.Errorf("imgcache: %w", err)
	}
	l.cache = c
	return nil
}

func (l *Loader) initFetchers(opts options) {
	l.fetchers = make(map[SourceKind]source.Fetcher, 4)

	httpFetcher := source.NewHTTP(source.HTTPOptions{
		Timeout:   opts.fetchTimeout,
		UserAgent: opts.userAgent,
		Limiter:   l.rc,
	})
	l.closers = append(l.closers, httpFetcher.Close)
	l.fetchers[SourceNetwork] = httpFetcher
	l.fetchers[SourceFile] = source.NewFile(nil)
	if opts.resources != nil {
		l.fetchers[SourceResource] = source.NewResource(opts.resources)
	}
	if opts.blobStore != nil {
		l.fetchers[SourceBlob] = source.NewBlob(opts.blobStore, blobstore.ReadOptions{})
	}
	for kind, f := range opts.fetchers {
		l.fetchers[kind] = f
	}
}

// Cache returns the underlying cache.
func (l *Loader) Cache() *cache.ImageCache { return l.cache }

// SetLoadingImage sets the placeholder shown by later loads. Nil clears it.
func (l *Loader) SetLoadingImage(b *bitmap.Bitmap) {
	l.placeholder.Store(b)
}

// Load shows src at width x height in slot.
//
// A memory hit is written to the slot before Load returns. Otherwise the
// slot gets the loading placeholder and a task is started, unless the slot
// already waits for the same key. Any other pending work for the slot is
// cancelled. The returned marker identifies the task the slot waits for;
// it is the zero Marker for memory hits and after Close.
//
// Load, CancelWork and Detach must be called from the Dispatcher's context,
// for example from a function posted to a MainLoop. A memory hit written
// from another goroutine can land before an older delivery that is
// already under way.
func (l *Loader) Load(ctx context.Context, slot Slot, src Source, width, height int) Marker {
	if l.isClosed.Load() {
		return Marker{}
	}
	key := src.Key(width, height)

	if b := l.cache.GetFromMemory(key); b != nil {
		l.metrics.RecordMemoryHit(true)
		l.bindings.unbind(slot)
		slot.SetContent(b)
		l.metrics.RecordLoad(src.Kind, 0, true)
		return Marker{}
	}

	t, started := l.bindings.bind(slot, key, func() *task {
		t := l.newTask(ctx, src, width, height)
		t.slot = slot
		return t
	})
	if started {
		// The task is not running yet, so no delivery can overtake the
		// placeholder.
		slot.SetPlaceholder(l.placeholder.Load(), Marker{t: t})
		if !l.schedule(t) {
			l.bindings.claim(slot, t)
			return Marker{}
		}
	}
	return Marker{t: t}
}

// Render loads src at width x height without a slot and hands the result
// to fn on the dispatcher. Memory hits call fn before Render returns.
// Concurrent renders of the same key share one fetch and decode.
func (l *Loader) Render(ctx context.Context, src Source, width, height int, fn RenderFunc) error {
	if l.isClosed.Load() {
		return ErrClosed
	}
	if b := l.cache.GetFromMemory(src.Key(width, height)); b != nil {
		l.metrics.RecordMemoryHit(true)
		fn(b, nil)
		l.metrics.RecordLoad(src.Kind, 0, true)
		return nil
	}

	t := l.newTask(ctx, src, width, height)
	t.render = fn
	if !l.schedule(t) {
		return ErrClosed
	}
	return nil
}

// CancelWork cancels the work pending for slot and clears its placeholder
// marker. It reports whether anything was pending.
func (l *Loader) CancelWork(slot Slot) bool {
	t := l.bindings.unbind(slot)
	if t == nil {
		return false
	}
	slot.SetPlaceholder(nil, Marker{})
	return true
}

// Detach forgets slot. Pending work is cancelled and the slot is never
// called again for it.
func (l *Loader) Detach(slot Slot) {
	l.bindings.unbind(slot)
}

// PendingMarker returns the marker of the task slot waits for, or the zero
// Marker.
func (l *Loader) PendingMarker(slot Slot) Marker {
	return Marker{t: l.bindings.lookup(slot)}
}

// newTask creates a task that ends with ctx or with the loader.
func (l *Loader) newTask(ctx context.Context, src Source, width, height int) *task {
	if ctx == nil {
		ctx = context.Background()
	}
	t := newTask(ctx, src, width, height)
	cancel := t.cancelFn
	stop := context.AfterFunc(l.ctx, cancel)
	t.cancelFn = func() {
		stop()
		cancel()
	}
	return t
}

// schedule starts t on a worker. It reports false, with t cancelled, once
// Close has begun.
func (l *Loader) schedule(t *task) bool {
	l.closeMu.RLock()
	if l.isClosed.Load() {
		l.closeMu.RUnlock()
		t.cancel()
		return false
	}
	l.tasks.Add(1)
	l.closeMu.RUnlock()

	go func() {
		defer l.tasks.Done()
		if err := l.rc.AcquireDecoder(t.ctx); err != nil {
			t.cancel()
			t.finish(l, nil, "", ErrStaleCompletion)
			return
		}
		defer l.rc.ReleaseDecoder()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("decode task panicked", "key", t.key, "panic", r, "stack", string(debug.Stack()))
				t.finish(l, nil, "", fmt.Errorf("%w: panic: %v", ErrDecodeFailure, r))
			}
		}()
		t.run(l)
	}()
	return true
}

// fetchAndDecode produces the bitmap for t from its source. Tasks for the
// same key share one call; a task whose shared call was cancelled by its
// leader retries on its own.
func (l *Loader) fetchAndDecode(t *task) (*bitmap.Bitmap, error) {
	for {
		v, err, shared := l.flight.Do(t.key, func() (any, error) {
			return l.produce(t)
		})
		if err != nil {
			if shared && t.ctx.Err() == nil && isContextErr(err) {
				continue
			}
			return nil, err
		}
		return v.(*bitmap.Bitmap), nil
	}
}

func (l *Loader) produce(t *task) (*bitmap.Bitmap, error) {
	f, ok := l.fetchers[t.src.Kind]
	if !ok {
		return nil, fetchError(t.src, fmt.Errorf("no fetcher for %s sources", t.src.Kind))
	}

	start := time.Now()
	data, err := f.Fetch(t.ctx, t.src.Locator)
	l.metrics.RecordFetch(t.src.Kind, len(data), time.Since(start), err)
	if err != nil {
		if ctxErr := t.ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, fetchError(t.src, err)
	}

	// Bytes are in hand: decode even if the task was cancelled meanwhile,
	// the result still goes into the cache. Only the flight leader gets
	// here, so each decoded bitmap is added once.
	start = time.Now()
	b, err := l.cache.Decode(data, t.width, t.height)
	l.metrics.RecordDecode(time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecodeFailure, t.src, err)
	}
	t.transition(StatePopulating)
	l.cache.Add(t.key, b)
	return b, nil
}

// deliver runs on the dispatcher and writes the result if the task still
// owns its slot.
func (l *Loader) deliver(t *task, b *bitmap.Bitmap, tier string, elapsed time.Duration, err error) {
	if t.ctx.Err() != nil {
		t.discard(l, elapsed)
		return
	}
	if t.slot != nil {
		if !l.bindings.claim(t.slot, t) {
			t.discard(l, elapsed)
			return
		}
		t.slot.SetContent(b)
	} else {
		t.render(b, err)
	}
	t.cancelFn()

	l.metrics.RecordLoad(t.src.Kind, elapsed, b != nil)
	l.logger.LogLoad(context.Background(), t.key, tier, elapsed, err)
}

// Wait blocks until every started task has delivered its result and all
// queued cache operations have run. It must not be called from the
// dispatcher's goroutine.
func (l *Loader) Wait() {
	l.tasks.Wait()
	l.maint.wait()
	if l.isClosed.Load() && l.ownedLoop != nil {
		// Close drained the owned loop.
		return
	}
	done := make(chan struct{})
	l.dispatcher.Post(func() { close(done) })
	<-done
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Stats returns cache counters.
func (l *Loader) Stats() cache.Stats { return l.cache.Stats() }
