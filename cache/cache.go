// Package cache provides generic, thread-safe LRU caches with optional expiry
// and a single-flight loader built on top of them.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a generic thread-safe LRU cache with built-in metrics.
//
// A Cache created with a capacity <= 0 is unbounded: nothing is evicted and
// entries live until they expire, are deleted or the cache is cleared.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*entry[K, V]
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time

	// Metrics (lock-free using atomics)
	hits    atomic.Uint64
	misses  atomic.Uint64
	evicts  atomic.Uint64
	expires atomic.Uint64
	sets    atomic.Uint64
}

// entry holds a cached value and its position in the LRU list.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
	element   *list.Element
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL expires entries d after they were stored. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a new Cache with the specified capacity.
// When a bounded cache is full, the least recently used item is evicted.
func New[K comparable, V any](capacity int, opts ...Option) *Cache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Cache[K, V]{
		items:    make(map[K]*entry[K, V], capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      o.ttl,
		now:      o.now,
	}
}

// Get retrieves a value from the cache.
// Returns the value and true if found, zero value and false otherwise.
// Accessing an item moves it to the front of the LRU list.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	e, ok := c.lookup(key)
	if ok {
		c.order.MoveToFront(e.element)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Peek returns the value for key without touching recency or hit metrics.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lookup(key); ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// lookup returns the live entry for key, dropping it if it has expired.
// Must be called with mu held.
func (c *Cache[K, V]) lookup(key K) (*entry[K, V], bool) {
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.remove(e)
		c.expires.Add(1)
		return nil, false
	}
	return e, true
}

// Set adds or updates a value in the cache.
// If a bounded cache is at capacity, the least recently used item is evicted.
func (c *Cache[K, V]) Set(key K, value V) {
	c.sets.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store(key, value)
}

// store inserts or refreshes key. Must be called with mu held.
func (c *Cache[K, V]) store(key K, value V) {
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(e.element)
		return
	}

	if c.capacity > 0 && len(c.items) >= c.capacity {
		c.evictOldest()
	}

	element := c.order.PushFront(key)
	c.items[key] = &entry[K, V]{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
		element:   element,
	}
}

// evictOldest removes the least recently used item.
// Must be called with mu held.
func (c *Cache[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}

	key := oldest.Value.(K)
	c.remove(c.items[key])
	c.evicts.Add(1)
}

func (c *Cache[K, V]) remove(e *entry[K, V]) {
	delete(c.items, e.key)
	c.order.Remove(e.element)
}

// Delete removes an item from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.remove(e)
	}
}

// Len returns the current number of items in the cache, including entries
// that have expired but not yet been looked up.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all items from the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*entry[K, V], c.capacity)
	c.order.Init()
}

// Stats holds cache statistics.
type Stats struct {
	Size     int
	Capacity int
	Hits     uint64
	Misses   uint64
	Evicts   uint64
	Expires  uint64
	Sets     uint64
	HitRate  float64
}

// Stats returns cache statistics. Capacity is 0 for an unbounded cache.
func (c *Cache[K, V]) Stats() Stats {
	size := c.Len()

	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:     size,
		Capacity: c.capacity,
		Hits:     hits,
		Misses:   misses,
		Evicts:   c.evicts.Load(),
		Expires:  c.expires.Load(),
		Sets:     c.sets.Load(),
		HitRate:  hitRate,
	}
}

// GetOrSet returns the existing value for key if present.
// Otherwise, it calls fn to compute the value, stores it, and returns it.
// fn runs under the cache lock and must not call back into the cache.
func (c *Cache[K, V]) GetOrSet(key K, fn func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the lock
	if e, ok := c.lookup(key); ok {
		c.order.MoveToFront(e.element)
		return e.value
	}

	value := fn()
	c.store(key, value)
	c.sets.Add(1)

	return value
}

// Keys returns all live keys in the cache (in no particular order).
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]K, 0, len(c.items))
	for k, e := range c.items {
		if e.expiresAt.IsZero() || now.Before(e.expiresAt) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Range calls fn for each live item in the cache.
// If fn returns false, iteration stops. fn must not call back into the cache.
func (c *Cache[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.items {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			continue
		}
		if !fn(k, e.value) {
			break
		}
	}
}
