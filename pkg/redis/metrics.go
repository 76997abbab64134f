package redis

import (
	"sync/atomic"
	"time"
)

// Metrics tracks store level statistics of the Redis cache
type Metrics struct {
	hits         atomic.Uint64
	misses       atomic.Uint64
	errors       atomic.Uint64
	decodeErrors atomic.Uint64

	gets    atomic.Uint64
	puts    atomic.Uint64
	removes atomic.Uint64

	// Timing metrics (in nanoseconds)
	getLatency atomic.Uint64
	putLatency atomic.Uint64

	compressionSaves atomic.Uint64 // Bytes saved via compression
	clears           atomic.Uint64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordGet(d time.Duration, hit bool) {
	m.gets.Add(1)
	m.getLatency.Add(uint64(d.Nanoseconds()))
	if hit {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
}

func (m *Metrics) recordPut(d time.Duration) {
	m.puts.Add(1)
	m.putLatency.Add(uint64(d.Nanoseconds()))
}

func (m *Metrics) recordRemove()                 { m.removes.Add(1) }
func (m *Metrics) recordError()                  { m.errors.Add(1) }
func (m *Metrics) recordDecodeError()            { m.decodeErrors.Add(1) }
func (m *Metrics) recordClear()                  { m.clears.Add(1) }
func (m *Metrics) recordCompression(saved int64) { m.compressionSaves.Add(uint64(max(saved, 0))) }

// Snapshot returns a point-in-time copy of the counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	hits := m.hits.Load()
	misses := m.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	gets := m.gets.Load()
	puts := m.puts.Load()
	var avgGet, avgPut time.Duration
	if gets > 0 {
		avgGet = time.Duration(m.getLatency.Load() / gets)
	}
	if puts > 0 {
		avgPut = time.Duration(m.putLatency.Load() / puts)
	}

	return MetricsSnapshot{
		Hits:                  hits,
		Misses:                misses,
		Errors:                m.errors.Load(),
		DecodeErrors:          m.decodeErrors.Load(),
		HitRate:               hitRate,
		Gets:                  gets,
		Puts:                  puts,
		Removes:               m.removes.Load(),
		Clears:                m.clears.Load(),
		AvgGetLatency:         avgGet,
		AvgPutLatency:         avgPut,
		CompressionBytesSaved: m.compressionSaves.Load(),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	Hits         uint64
	Misses       uint64
	Errors       uint64
	DecodeErrors uint64
	HitRate      float64 // Percentage

	Gets    uint64
	Puts    uint64
	Removes uint64
	Clears  uint64

	AvgGetLatency time.Duration
	AvgPutLatency time.Duration

	CompressionBytesSaved uint64
}
