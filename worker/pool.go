package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Func processes one item.
type Func[T, R any] func(ctx context.Context, item T) (R, error)

// Pool runs a Func over batches of items with a bounded number of
// goroutines. A Pool is safe for concurrent use; each Run starts its own
// workers.
type Pool[T, R any] struct {
	fn      Func[T, R]
	workers int

	// Metrics
	jobsSubmitted atomic.Uint64
	jobsCompleted atomic.Uint64
	jobsFailed    atomic.Uint64
	totalDuration atomic.Uint64
}

// NewPool creates a pool running fn on up to workers goroutines.
// If workers <= 0, it defaults to runtime.NumCPU().
func NewPool[T, R any](fn Func[T, R], workers int) *Pool[T, R] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool[T, R]{
		fn:      fn,
		workers: workers,
	}
}

// Run applies the pool's function to every item and returns the results in
// item order. The first failure to occur cancels the items still pending and is
// returned as an *IndexedError; no results are returned with it.
func (p *Pool[T, R]) Run(ctx context.Context, items []T) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if p.fn == nil {
		return nil, ErrNoFunc
	}

	// Small batches don't pay for goroutines.
	if len(items) <= 2 || p.workers == 1 {
		return p.runSequential(ctx, items)
	}
	return p.runParallel(ctx, items)
}

func (p *Pool[T, R]) runSequential(ctx context.Context, items []T) ([]R, error) {
	out := make([]R, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.jobsSubmitted.Add(1)
		r := p.process(ctx, job[T]{index: i, item: item})
		if r.err != nil {
			return nil, &IndexedError{Index: i, Err: r.err}
		}
		out[i] = r.value
	}
	return out, nil
}

func (p *Pool[T, R]) runParallel(ctx context.Context, items []T) ([]R, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := p.workers
	if numWorkers > len(items) {
		numWorkers = len(items)
	}

	jobs := make(chan job[T], len(items))
	results := make(chan result[R], len(items))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				results <- p.process(ctx, j)
			}
		}()
	}

	for i, item := range items {
		jobs <- job[T]{index: i, item: item}
		p.jobsSubmitted.Add(1)
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]R, len(items))
	var firstErr *IndexedError
	for r := range results {
		if r.err != nil {
			// Later failures are mostly the cancellation this one caused.
			if firstErr == nil {
				firstErr = &IndexedError{Index: r.index, Err: r.err}
				cancel()
			}
			continue
		}
		out[r.index] = r.value
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pool[T, R]) process(ctx context.Context, j job[T]) result[R] {
	start := time.Now()
	value, err := p.fn(ctx, j.item)
	d := time.Since(start).Nanoseconds()

	p.jobsCompleted.Add(1)
	p.totalDuration.Add(uint64(d)) //nolint:gosec // Safe: positive duration
	if err != nil {
		p.jobsFailed.Add(1)
	}
	return result[R]{index: j.index, value: value, err: err, duration: d}
}

// Stats returns pool statistics accumulated over every Run.
func (p *Pool[T, R]) Stats() PoolStats {
	return PoolStats{
		Workers:       p.workers,
		JobsSubmitted: p.jobsSubmitted.Load(),
		JobsCompleted: p.jobsCompleted.Load(),
		JobsFailed:    p.jobsFailed.Load(),
		AvgDuration:   p.averageDuration(),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Workers       int
	JobsSubmitted uint64
	JobsCompleted uint64
	JobsFailed    uint64
	AvgDuration   time.Duration
}

func (p *Pool[T, R]) averageDuration() time.Duration {
	completed := p.jobsCompleted.Load()
	if completed == 0 {
		return 0
	}
	return time.Duration(p.totalDuration.Load() / completed) //nolint:gosec // nanoseconds within int64 range
}

// ErrNoFunc is returned when the pool has no function configured.
var ErrNoFunc = poolError("no worker function configured")

type poolError string

func (e poolError) Error() string {
	return string(e)
}
