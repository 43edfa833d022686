package imgcache

import (
	iofs "io/fs"
	"log/slog"
	"time"

	"github.com/hupe1980/imgcache/bitmap"
	"github.com/hupe1980/imgcache/blobstore"
	"github.com/hupe1980/imgcache/cache"
	"github.com/hupe1980/imgcache/source"
)

// DefaultWorkers is the number of concurrent decode tasks.
const DefaultWorkers = 2

type options struct {
	workers          int
	dispatcher       Dispatcher
	metricsCollector MetricsCollector
	logger           *Logger
	loadingImage     *bitmap.Bitmap

	cache        *cache.ImageCache
	cacheOptions []cache.Option
	retainer     cache.Retainer
	namespace    string

	fetchers         map[SourceKind]source.Fetcher
	fetchTimeout     time.Duration
	fetchBytesPerSec int64
	userAgent        string
	resources        iofs.FS
	blobStore        blobstore.Store
}

// Option configures a Loader.
type Option func(*options)

// WithWorkers sets how many decode tasks run concurrently.
// Values below 1 mean DefaultWorkers.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithDispatcher sets where completions run. By default the loader owns a
// MainLoop; a dispatcher passed here is not closed by the loader.
//
// Example for a UI toolkit with its own event loop:
//
//	loader, _ := imgcache.New(params, imgcache.WithDispatcher(
//	    dispatcherFunc(func(fn func()) { app.RunOnMain(fn) }),
//	))
func WithDispatcher(d Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithMetricsCollector configures a metrics collector for monitoring loads.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &imgcache.BasicMetricsCollector{}
//	loader, _ := imgcache.New(params, imgcache.WithMetricsCollector(metrics))
//	// ... use loader ...
//	stats := metrics.GetStats()
//	fmt.Printf("Loads: %d, memory hits: %d\n", stats.LoadCount, stats.MemoryHits)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := imgcache.NewJSONLogger(slog.LevelInfo)
//	loader, _ := imgcache.New(params, imgcache.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithLoadingImage sets the placeholder shown while a load is pending.
func WithLoadingImage(b *bitmap.Bitmap) Option {
	return func(o *options) {
		o.loadingImage = b
	}
}

// WithCache uses an existing cache instead of creating one from params.
// The loader does not close a cache passed this way unless CloseCache is
// called explicitly.
func WithCache(c *cache.ImageCache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithCacheOptions passes options to the cache the loader creates.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *options) {
		o.cacheOptions = append(o.cacheOptions, opts...)
	}
}

// WithRetainer keeps the cache in r under namespace so that a loader
// created later for the same namespace reuses it.
func WithRetainer(r cache.Retainer, namespace string) Option {
	return func(o *options) {
		o.retainer = r
		o.namespace = namespace
	}
}

// WithFetcher resolves sources of kind with f, replacing the default.
func WithFetcher(kind SourceKind, f source.Fetcher) Option {
	return func(o *options) {
		if o.fetchers == nil {
			o.fetchers = make(map[SourceKind]source.Fetcher)
		}
		o.fetchers[kind] = f
	}
}

// WithFetchTimeout bounds network fetches. Defaults to two minutes.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fetchTimeout = d
	}
}

// WithFetchRateLimit caps network download throughput in bytes per second.
func WithFetchRateLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.fetchBytesPerSec = bytesPerSec
	}
}

// WithUserAgent sets the User-Agent of network fetches.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

// WithResources enables Resource sources backed by fsys, e.g. an embed.FS.
func WithResources(fsys iofs.FS) Option {
	return func(o *options) {
		o.resources = fsys
	}
}

// WithBlobStore enables Blob sources backed by store.
func WithBlobStore(store blobstore.Store) Option {
	return func(o *options) {
		o.blobStore = store
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		workers:          DefaultWorkers,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		fetchTimeout:     source.DefaultTimeout,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.workers < 1 {
		o.workers = DefaultWorkers
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
