package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the value for a key that is not cached.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// Outcome describes how a Loader satisfied a lookup.
type Outcome int

// Lookup outcomes.
const (
	// Hit means the value was already cached.
	Hit Outcome = iota
	// Loaded means this caller's lookup ran the load.
	Loaded
	// Shared means the caller joined a load started by another caller.
	Shared
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Loaded:
		return "loaded"
	case Shared:
		return "shared"
	default:
		return "unknown"
	}
}

// Loader is a get-or-load cache keyed by string. At most one load per key is
// in flight at any time; concurrent callers for the same key wait for that
// load and receive its result. Successful loads populate the backing cache,
// failures are handed to every waiter and are not retained.
//
// A load runs detached from the cancellation of the caller that started it,
// so a caller giving up does not abort a load other callers are waiting on
// and a completed load still populates the cache.
type Loader[V any] struct {
	entries *Cache[string, V]
	group   singleflight.Group

	loads  atomic.Uint64
	shared atomic.Uint64
	failed atomic.Uint64
}

// NewLoader creates a Loader storing its values in entries.
func NewLoader[V any](entries *Cache[string, V]) *Loader[V] {
	return &Loader[V]{entries: entries}
}

// Get returns the value for key, calling load on a miss.
func (l *Loader[V]) Get(ctx context.Context, key string, load LoadFunc[V]) (V, error) {
	v, _, err := l.Lookup(ctx, key, load)
	return v, err
}

// Lookup is Get that also reports how the value was obtained.
// If ctx is done before the load finishes, Lookup returns ctx.Err() while the
// load keeps running.
func (l *Loader[V]) Lookup(ctx context.Context, key string, load LoadFunc[V]) (V, Outcome, error) {
	var zero V

	if v, ok := l.entries.Get(key); ok {
		return v, Hit, nil
	}

	ran := false
	ch := l.group.DoChan(key, func() (any, error) {
		// A flight that finished between our miss and DoChan already stored it.
		if v, ok := l.entries.Peek(key); ok {
			return v, nil
		}

		ran = true
		l.loads.Add(1)
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			l.failed.Add(1)
			return nil, err
		}
		l.entries.Set(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, Shared, ctx.Err()
	case res := <-ch:
		outcome := Loaded
		if !ran {
			outcome = Shared
			l.shared.Add(1)
		}
		if res.Err != nil {
			return zero, outcome, res.Err
		}
		v, _ := res.Val.(V)
		return v, outcome, nil
	}
}

// Forget drops key from the cache. A load already in flight for key still
// completes and stores its result.
func (l *Loader[V]) Forget(key string) {
	l.entries.Delete(key)
}

// Reset drops every cached value.
func (l *Loader[V]) Reset() {
	l.entries.Clear()
}

// LoaderStats holds loader statistics alongside those of the backing cache.
type LoaderStats struct {
	Cache  Stats
	Loads  uint64
	Shared uint64
	Failed uint64
}

// Stats returns loader statistics.
func (l *Loader[V]) Stats() LoaderStats {
	return LoaderStats{
		Cache:  l.entries.Stats(),
		Loads:  l.loads.Load(),
		Shared: l.shared.Load(),
		Failed: l.failed.Load(),
	}
}
