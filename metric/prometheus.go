// Package metric exports loader metrics to Prometheus.
package metric

import (
	"time"

	"github.com/hupe1980/imgcache"
	"github.com/hupe1980/imgcache/cache"
	"github.com/prometheus/client_golang/prometheus"
)

var _ imgcache.MetricsCollector = (*Collector)(nil)

// Collector implements imgcache.MetricsCollector with Prometheus metrics.
type Collector struct {
	Loads        *prometheus.CounterVec
	LoadDuration *prometheus.HistogramVec
	Lookups      *prometheus.CounterVec
	FetchBytes   *prometheus.CounterVec
	FetchErrors  *prometheus.CounterVec
	Decodes      *prometheus.CounterVec
	DecodeTime   prometheus.Histogram
	Evictions    prometheus.Counter
	Stale        prometheus.Counter
}

// NewCollector creates and registers all metrics with the provided registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	loads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgcache_loads_total",
		Help: "Loads delivered to slots or render callbacks",
	}, []string{"source", "result"})

	loadDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "imgcache_load_duration_seconds",
		Help:    "Time from scheduling a load to its completion",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"source"})

	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgcache_cache_lookups_total",
		Help: "Cache lookups by tier and outcome",
	}, []string{"tier", "result"})

	fetchBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgcache_fetch_bytes_total",
		Help: "Source bytes fetched",
	}, []string{"source"})

	fetchErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgcache_fetch_errors_total",
		Help: "Failed source fetches",
	}, []string{"source"})

	decodes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "imgcache_decodes_total",
		Help: "Decodes of source bytes",
	}, []string{"result"})

	decodeTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imgcache_decode_duration_seconds",
		Help:    "Time spent decoding source bytes",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	})

	evictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imgcache_memory_evictions_total",
		Help: "Bitmaps evicted from the memory tier",
	})

	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "imgcache_stale_completions_total",
		Help: "Results discarded because their slot moved on",
	})

	reg.MustRegister(loads, loadDuration, lookups, fetchBytes, fetchErrors, decodes, decodeTime, evictions, stale)

	return &Collector{
		Loads:        loads,
		LoadDuration: loadDuration,
		Lookups:      lookups,
		FetchBytes:   fetchBytes,
		FetchErrors:  fetchErrors,
		Decodes:      decodes,
		DecodeTime:   decodeTime,
		Evictions:    evictions,
		Stale:        stale,
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func hit(ok bool) string {
	if ok {
		return "hit"
	}
	return "miss"
}

func (c *Collector) RecordLoad(kind imgcache.SourceKind, d time.Duration, ok bool) {
	c.Loads.WithLabelValues(kind.String(), result(ok)).Inc()
	c.LoadDuration.WithLabelValues(kind.String()).Observe(d.Seconds())
}

func (c *Collector) RecordMemoryHit(ok bool) {
	c.Lookups.WithLabelValues("memory", hit(ok)).Inc()
}

func (c *Collector) RecordDiskHit(ok bool) {
	c.Lookups.WithLabelValues("disk", hit(ok)).Inc()
}

func (c *Collector) RecordFetch(kind imgcache.SourceKind, bytes int, _ time.Duration, err error) {
	if err != nil {
		c.FetchErrors.WithLabelValues(kind.String()).Inc()
		return
	}
	c.FetchBytes.WithLabelValues(kind.String()).Add(float64(bytes))
}

func (c *Collector) RecordDecode(d time.Duration, err error) {
	c.Decodes.WithLabelValues(result(err == nil)).Inc()
	c.DecodeTime.Observe(d.Seconds())
}

func (c *Collector) RecordEviction() { c.Evictions.Inc() }

func (c *Collector) RecordStale() { c.Stale.Inc() }

// RegisterCacheStats exports the cache occupancy as gauges read on scrape.
func RegisterCacheStats(reg prometheus.Registerer, stats func() cache.Stats) {
	gauge := func(name, help string, fn func(cache.Stats) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return fn(stats())
		})
	}
	reg.MustRegister(
		gauge("imgcache_memory_entries", "Bitmaps in the memory tier", func(s cache.Stats) float64 { return float64(s.MemoryEntries) }),
		gauge("imgcache_memory_kilobytes", "Memory tier weight in KB", func(s cache.Stats) float64 { return float64(s.MemoryKB) }),
		gauge("imgcache_reusable_buffers", "Evicted bitmaps available for reuse", func(s cache.Stats) float64 { return float64(s.ReusableBuffers) }),
		gauge("imgcache_disk_entries", "Records in the disk tier", func(s cache.Stats) float64 { return float64(s.DiskEntries) }),
		gauge("imgcache_disk_bytes", "Disk tier size in bytes", func(s cache.Stats) float64 { return float64(s.DiskBytes) }),
	)
}
