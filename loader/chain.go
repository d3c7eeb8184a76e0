package loader

import (
	"context"
	"errors"

	fo "github.com/gofhir/fhirobject"
	"github.com/gofhir/fhirobject/schema"
)

// Chain is a schema.Fetcher that asks each origin in turn. An origin that
// does not know the type passes to the next one; any other failure stops
// the chain.
type Chain struct {
	origins []schema.Fetcher
}

// NewChain creates a chain over origins. Nil origins are skipped.
func NewChain(origins ...schema.Fetcher) *Chain {
	c := &Chain{}
	for _, o := range origins {
		c.Add(o)
	}
	return c
}

// Add appends an origin to the chain.
func (c *Chain) Add(origin schema.Fetcher) {
	if origin != nil {
		c.origins = append(c.origins, origin)
	}
}

// Len returns the number of origins.
func (c *Chain) Len() int {
	return len(c.origins)
}

// FetchSchema returns the first schema found for typeName.
func (c *Chain) FetchSchema(ctx context.Context, typeName string) (*schema.Schema, error) {
	for _, o := range c.origins {
		s, err := o.FetchSchema(ctx, typeName)
		if err == nil && s != nil {
			return s, nil
		}
		if err != nil && !errors.Is(err, fo.ErrSchemaNotFound) {
			return nil, err
		}
	}
	return nil, &fo.SchemaNotFoundError{TypeName: typeName, Reason: "no origin defines it"}
}
