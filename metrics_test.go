package imgcache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBasicMetricsCollector(t *testing.T) {
	m := &BasicMetricsCollector{}
	m.RecordLoad(SourceNetwork, 2*time.Millisecond, true)
	m.RecordLoad(SourceFile, 4*time.Millisecond, false)
	m.RecordMemoryHit(true)
	m.RecordMemoryHit(false)
	m.RecordDiskHit(false)
	m.RecordFetch(SourceNetwork, 100, time.Millisecond, nil)
	m.RecordFetch(SourceNetwork, 0, time.Millisecond, errors.New("boom"))
	m.RecordDecode(time.Millisecond, nil)
	m.RecordEviction()
	m.RecordStale()

	s := m.GetStats()
	assert.Equal(t, int64(2), s.LoadCount)
	assert.Equal(t, int64(1), s.LoadFailures)
	assert.Equal(t, (3 * time.Millisecond).Nanoseconds(), s.LoadAvgNanos)
	assert.Equal(t, int64(1), s.MemoryHits)
	assert.Equal(t, int64(1), s.MemoryMisses)
	assert.Equal(t, int64(1), s.DiskMisses)
	assert.Equal(t, int64(2), s.FetchCount)
	assert.Equal(t, int64(1), s.FetchErrors)
	assert.Equal(t, int64(100), s.FetchBytes)
	assert.Equal(t, int64(1), s.DecodeCount)
	assert.Equal(t, int64(1), s.Evictions)
	assert.Equal(t, int64(1), s.Stale)
}

func TestNoopMetricsCollector(t *testing.T) {
	var m MetricsCollector = NoopMetricsCollector{}
	m.RecordLoad(SourceBlob, 0, true)
	m.RecordStale()
}
