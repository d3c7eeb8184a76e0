package fhirobject

import (
	"runtime"
	"time"

	"github.com/gofhir/fhirobject/pkg/logger"
)

// Option configures the decoder and its schema cache.
type Option func(*Options)

// Options holds all configuration for decoding.
type Options struct {
	// Decoding behaviour
	Parallel                bool
	MaxConcurrency          int
	Prefetch                bool
	StrictContentReferences bool

	// Cache sizing and expiry
	SchemaCacheCapacity int
	SchemaCacheTTL      time.Duration
	IndexCacheCapacity  int

	// Bundle fan-out
	WorkerCount int

	Metrics *Metrics
	Logger  *logger.Logger
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		Parallel:                true,
		MaxConcurrency:          0, // unlimited
		Prefetch:                true,
		StrictContentReferences: true,

		// Schemas live as long as the cache does unless configured otherwise.
		SchemaCacheCapacity: 0,
		SchemaCacheTTL:      0,
		IndexCacheCapacity:  0,

		WorkerCount: runtime.NumCPU(),
	}
}

// Apply returns DefaultOptions with opts applied in order.
func Apply(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	return o
}

// --- Decoding Options ---

// WithParallel enables concurrent decoding of sibling elements.
func WithParallel(enable bool) Option {
	return func(o *Options) {
		o.Parallel = enable
	}
}

// WithMaxConcurrency bounds the goroutines spawned per decoded object.
// Use 0 for unlimited.
func WithMaxConcurrency(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MaxConcurrency = n
		}
	}
}

// WithPrefetch resolves the transitive schema closure of a resource before
// decoding it.
func WithPrefetch(enable bool) Option {
	return func(o *Options) {
		o.Prefetch = enable
	}
}

// WithStrictContentReferences makes an unresolvable contentReference fail the
// decode. When disabled the property is omitted and a warning is logged.
func WithStrictContentReferences(enable bool) Option {
	return func(o *Options) {
		o.StrictContentReferences = enable
	}
}

// --- Cache Options ---

// WithSchemaCacheCapacity bounds the schema cache (LRU). Use 0 for unbounded.
func WithSchemaCacheCapacity(capacity int) Option {
	return func(o *Options) {
		o.SchemaCacheCapacity = capacity
	}
}

// WithSchemaCacheTTL expires cached schemas after d. Use 0 to keep them for
// the cache's lifetime.
func WithSchemaCacheTTL(d time.Duration) Option {
	return func(o *Options) {
		o.SchemaCacheTTL = d
	}
}

// WithIndexCacheCapacity bounds the element index memo. Use 0 for unbounded.
func WithIndexCacheCapacity(capacity int) Option {
	return func(o *Options) {
		o.IndexCacheCapacity = capacity
	}
}

// --- Performance Options ---

// WithWorkerCount sets the number of workers used to decode bundle entries.
func WithWorkerCount(count int) Option {
	return func(o *Options) {
		if count > 0 {
			o.WorkerCount = count
		}
	}
}

// --- Observability Options ---

// WithMetrics records decode and cache metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithLogger sets the logger. Defaults to logger.Default().
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}
