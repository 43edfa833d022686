package imgcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; package
// metric ships a Prometheus implementation.
type MetricsCollector interface {
	// RecordLoad is called when a decode task delivers its result.
	// ok is false when the slot received the fallback (nil) content.
	RecordLoad(kind SourceKind, duration time.Duration, ok bool)

	// RecordMemoryHit is called for every memory tier lookup.
	RecordMemoryHit(hit bool)

	// RecordDiskHit is called for every disk tier lookup.
	RecordDiskHit(hit bool)

	// RecordFetch is called after each fetch of source bytes.
	RecordFetch(kind SourceKind, bytes int, duration time.Duration, err error)

	// RecordDecode is called after each decode of source bytes.
	RecordDecode(duration time.Duration, err error)

	// RecordEviction is called when a bitmap leaves the memory tier.
	RecordEviction()

	// RecordStale is called when a result is discarded because its slot
	// moved on.
	RecordStale()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLoad(SourceKind, time.Duration, bool)        {}
func (NoopMetricsCollector) RecordMemoryHit(bool)                              {}
func (NoopMetricsCollector) RecordDiskHit(bool)                                {}
func (NoopMetricsCollector) RecordFetch(SourceKind, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordDecode(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordEviction()                                   {}
func (NoopMetricsCollector) RecordStale()                                      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LoadCount      atomic.Int64
	LoadFailures   atomic.Int64
	LoadTotalNanos atomic.Int64
	MemoryHits     atomic.Int64
	MemoryMisses   atomic.Int64
	DiskHits       atomic.Int64
	DiskMisses     atomic.Int64
	FetchCount     atomic.Int64
	FetchErrors    atomic.Int64
	FetchBytes     atomic.Int64
	DecodeCount    atomic.Int64
	DecodeErrors   atomic.Int64
	Evictions      atomic.Int64
	Stale          atomic.Int64
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(_ SourceKind, duration time.Duration, ok bool) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if !ok {
		b.LoadFailures.Add(1)
	}
}

// RecordMemoryHit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMemoryHit(hit bool) {
	if hit {
		b.MemoryHits.Add(1)
	} else {
		b.MemoryMisses.Add(1)
	}
}

// RecordDiskHit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDiskHit(hit bool) {
	if hit {
		b.DiskHits.Add(1)
	} else {
		b.DiskMisses.Add(1)
	}
}

// RecordFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetch(_ SourceKind, bytes int, _ time.Duration, err error) {
	b.FetchCount.Add(1)
	b.FetchBytes.Add(int64(bytes))
	if err != nil {
		b.FetchErrors.Add(1)
	}
}

// RecordDecode implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDecode(_ time.Duration, err error) {
	b.DecodeCount.Add(1)
	if err != nil {
		b.DecodeErrors.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction() { b.Evictions.Add(1) }

// RecordStale implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStale() { b.Stale.Add(1) }

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		LoadCount:    b.LoadCount.Load(),
		LoadFailures: b.LoadFailures.Load(),
		MemoryHits:   b.MemoryHits.Load(),
		MemoryMisses: b.MemoryMisses.Load(),
		DiskHits:     b.DiskHits.Load(),
		DiskMisses:   b.DiskMisses.Load(),
		FetchCount:   b.FetchCount.Load(),
		FetchErrors:  b.FetchErrors.Load(),
		FetchBytes:   b.FetchBytes.Load(),
		DecodeCount:  b.DecodeCount.Load(),
		DecodeErrors: b.DecodeErrors.Load(),
		Evictions:    b.Evictions.Load(),
		Stale:        b.Stale.Load(),
	}
	if s.LoadCount > 0 {
		s.LoadAvgNanos = b.LoadTotalNanos.Load() / s.LoadCount
	}
	return s
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LoadCount    int64
	LoadFailures int64
	LoadAvgNanos int64
	MemoryHits   int64
	MemoryMisses int64
	DiskHits     int64
	DiskMisses   int64
	FetchCount   int64
	FetchErrors  int64
	FetchBytes   int64
	DecodeCount  int64
	DecodeErrors int64
	Evictions    int64
	Stale        int64
}
