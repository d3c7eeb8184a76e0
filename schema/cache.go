package schema

import (
	"context"
	"errors"
	"time"

	fo "github.com/gofhir/fhirobject"
	"github.com/gofhir/fhirobject/cache"
	"github.com/gofhir/fhirobject/pkg/logger"
)

// Cache is the SchemaCache: a get-or-load cache of schemas keyed by type
// name in front of a Fetcher. Concurrent misses for one type share a single
// fetch. Fetch failures reach every waiter and are never cached, so the next
// Get retries the origin.
//
// Retention is governed by fo.WithSchemaCacheCapacity and
// fo.WithSchemaCacheTTL; by default schemas live as long as the Cache. Scope a
// Cache per process or per request by choosing where it is created.
type Cache struct {
	origin  Fetcher
	loader  *cache.Loader[*Schema]
	metrics *fo.Metrics
	log     *logger.Logger
}

// NewCache creates a Cache in front of origin.
func NewCache(origin Fetcher, opts ...fo.Option) *Cache {
	o := fo.Apply(opts...)

	var cacheOpts []cache.Option
	if o.SchemaCacheTTL > 0 {
		cacheOpts = append(cacheOpts, cache.WithTTL(o.SchemaCacheTTL))
	}
	entries := cache.New[string, *Schema](o.SchemaCacheCapacity, cacheOpts...)

	return &Cache{
		origin:  origin,
		loader:  cache.NewLoader(entries),
		metrics: o.Metrics,
		log:     o.Logger.Named("schema"),
	}
}

// Get returns the schema for typeName, fetching it from the origin at most
// once across concurrent callers.
func (c *Cache) Get(ctx context.Context, typeName string) (*Schema, error) {
	s, outcome, err := c.loader.Lookup(ctx, typeName, func(ctx context.Context) (*Schema, error) {
		return c.fetch(ctx, typeName)
	})

	if c.metrics != nil {
		if outcome == cache.Hit {
			c.metrics.RecordCacheHit()
		} else {
			c.metrics.RecordCacheMiss()
		}
	}

	if err != nil {
		return nil, err
	}
	return s, nil
}

// FetchSchema implements Fetcher so a Cache can stand in for its origin.
func (c *Cache) FetchSchema(ctx context.Context, typeName string) (*Schema, error) {
	return c.Get(ctx, typeName)
}

func (c *Cache) fetch(ctx context.Context, typeName string) (*Schema, error) {
	c.log.Debug("fetching schema %s", typeName)

	start := time.Now()
	s, err := c.origin.FetchSchema(ctx, typeName)
	if err == nil && s == nil {
		err = &fo.SchemaNotFoundError{TypeName: typeName}
	}

	if c.metrics != nil {
		c.metrics.RecordSchemaFetch(time.Since(start), err)
	}

	if err != nil {
		var transport *fo.TransportError
		if errors.As(err, &transport) {
			c.log.Warn("fetching schema %s failed: %v", typeName, err)
		} else {
			c.log.Debug("schema %s unavailable: %v", typeName, err)
		}
		return nil, err
	}
	return s, nil
}

// Forget drops the cached schema of typeName.
func (c *Cache) Forget(typeName string) {
	c.loader.Forget(typeName)
}

// Reset drops every cached schema. Fetches already in flight still complete
// and store their result.
func (c *Cache) Reset() {
	c.loader.Reset()
}

// Stats returns cache and load statistics.
func (c *Cache) Stats() cache.LoaderStats {
	return c.loader.Stats()
}
