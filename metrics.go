package fhirobject

import (
	"sync/atomic"
	"time"
)

// Metrics tracks decode and schema-fetch metrics using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	// Decode counts
	decodesTotal  atomic.Uint64
	decodesFailed atomic.Uint64

	// Timing (stored as nanoseconds)
	decodeTimeTotal atomic.Uint64
	decodeTimeMin   atomic.Uint64
	decodeTimeMax   atomic.Uint64

	// Schema fetches against the origin
	fetchesTotal   atomic.Uint64
	fetchesFailed  atomic.Uint64
	fetchTimeTotal atomic.Uint64

	// Cache metrics
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64

	// Output size
	propertiesTotal atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// Initialize min to max uint64 so first value becomes the minimum
	m.decodeTimeMin.Store(^uint64(0))
	return m
}

// --- Recording Methods ---

// RecordDecode records a finished top-level decode.
func (m *Metrics) RecordDecode(duration time.Duration, ok bool) {
	m.decodesTotal.Add(1)
	if !ok {
		m.decodesFailed.Add(1)
	}

	ns := uint64(duration.Nanoseconds()) //nolint:gosec // Safe: durations measured with time.Since are positive
	m.decodeTimeTotal.Add(ns)

	for {
		old := m.decodeTimeMin.Load()
		if ns >= old {
			break
		}
		if m.decodeTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}

	for {
		old := m.decodeTimeMax.Load()
		if ns <= old {
			break
		}
		if m.decodeTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordSchemaFetch records one call to the schema origin.
func (m *Metrics) RecordSchemaFetch(duration time.Duration, err error) {
	m.fetchesTotal.Add(1)
	if err != nil {
		m.fetchesFailed.Add(1)
	}
	m.fetchTimeTotal.Add(uint64(duration.Nanoseconds())) //nolint:gosec // Safe: positive duration
}

// RecordCacheHit records a schema cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a schema cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// RecordProperties records n decoded properties.
func (m *Metrics) RecordProperties(n int) {
	if n > 0 {
		m.propertiesTotal.Add(uint64(n))
	}
}

// --- Query Methods ---

// DecodesTotal returns the number of top-level decodes.
func (m *Metrics) DecodesTotal() uint64 {
	return m.decodesTotal.Load()
}

// DecodesFailed returns the number of decodes that returned an error.
func (m *Metrics) DecodesFailed() uint64 {
	return m.decodesFailed.Load()
}

// AverageDecodeTime returns the average decode duration.
func (m *Metrics) AverageDecodeTime() time.Duration {
	total := m.decodesTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.decodeTimeTotal.Load() / total) //nolint:gosec // nanoseconds within int64 range
}

// MinDecodeTime returns the fastest decode duration.
func (m *Metrics) MinDecodeTime() time.Duration {
	minVal := m.decodeTimeMin.Load()
	if minVal == ^uint64(0) {
		return 0
	}
	return time.Duration(minVal) //nolint:gosec // nanoseconds within int64 range
}

// MaxDecodeTime returns the slowest decode duration.
func (m *Metrics) MaxDecodeTime() time.Duration {
	return time.Duration(m.decodeTimeMax.Load()) //nolint:gosec // nanoseconds within int64 range
}

// SchemaFetches returns the number of origin fetches.
func (m *Metrics) SchemaFetches() uint64 {
	return m.fetchesTotal.Load()
}

// SchemaFetchFailures returns the number of failed origin fetches.
func (m *Metrics) SchemaFetchFailures() uint64 {
	return m.fetchesFailed.Load()
}

// CacheHits returns the total cache hits.
func (m *Metrics) CacheHits() uint64 {
	return m.cacheHits.Load()
}

// CacheMisses returns the total cache misses.
func (m *Metrics) CacheMisses() uint64 {
	return m.cacheMisses.Load()
}

// CacheHitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// PropertiesTotal returns the number of properties produced by all decodes.
func (m *Metrics) PropertiesTotal() uint64 {
	return m.propertiesTotal.Load()
}

// --- Export Methods ---

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	DecodesTotal  uint64 `json:"decodes_total"`
	DecodesFailed uint64 `json:"decodes_failed"`

	AvgDecodeTimeNs uint64 `json:"avg_decode_time_ns"`
	MinDecodeTimeNs uint64 `json:"min_decode_time_ns"`
	MaxDecodeTimeNs uint64 `json:"max_decode_time_ns"`

	SchemaFetches       uint64 `json:"schema_fetches"`
	SchemaFetchFailures uint64 `json:"schema_fetch_failures"`
	AvgFetchTimeNs      uint64 `json:"avg_fetch_time_ns"`

	CacheHits    uint64  `json:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`

	PropertiesTotal uint64 `json:"properties_total"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	total := m.decodesTotal.Load()
	fetches := m.fetchesTotal.Load()

	var avgDecode, avgFetch uint64
	if total > 0 {
		avgDecode = m.decodeTimeTotal.Load() / total
	}
	if fetches > 0 {
		avgFetch = m.fetchTimeTotal.Load() / fetches
	}

	minTime := m.decodeTimeMin.Load()
	if minTime == ^uint64(0) {
		minTime = 0
	}

	return Snapshot{
		Timestamp:           time.Now(),
		DecodesTotal:        total,
		DecodesFailed:       m.decodesFailed.Load(),
		AvgDecodeTimeNs:     avgDecode,
		MinDecodeTimeNs:     minTime,
		MaxDecodeTimeNs:     m.decodeTimeMax.Load(),
		SchemaFetches:       fetches,
		SchemaFetchFailures: m.fetchesFailed.Load(),
		AvgFetchTimeNs:      avgFetch,
		CacheHits:           m.cacheHits.Load(),
		CacheMisses:         m.cacheMisses.Load(),
		CacheHitRate:        m.CacheHitRate(),
		PropertiesTotal:     m.propertiesTotal.Load(),
	}
}

// Export returns metrics as a flat map suitable for external systems.
func (m *Metrics) Export() map[string]any {
	s := m.Snapshot()
	return map[string]any{
		"decodes_total":         s.DecodesTotal,
		"decodes_failed":        s.DecodesFailed,
		"avg_decode_time_ns":    s.AvgDecodeTimeNs,
		"min_decode_time_ns":    s.MinDecodeTimeNs,
		"max_decode_time_ns":    s.MaxDecodeTimeNs,
		"schema_fetches":        s.SchemaFetches,
		"schema_fetch_failures": s.SchemaFetchFailures,
		"avg_fetch_time_ns":     s.AvgFetchTimeNs,
		"cache_hits":            s.CacheHits,
		"cache_misses":          s.CacheMisses,
		"cache_hit_rate":        s.CacheHitRate,
		"properties_total":      s.PropertiesTotal,
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.decodesTotal.Store(0)
	m.decodesFailed.Store(0)
	m.decodeTimeTotal.Store(0)
	m.decodeTimeMin.Store(^uint64(0))
	m.decodeTimeMax.Store(0)
	m.fetchesTotal.Store(0)
	m.fetchesFailed.Store(0)
	m.fetchTimeTotal.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.propertiesTotal.Store(0)
}
