package schema

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Closure resolves the transitive set of schemas a type depends on.
type Closure struct {
	fetcher Fetcher
	limit   int
}

// ClosureOption configures a Closure.
type ClosureOption func(*Closure)

// WithFetchLimit bounds the concurrent fetches per level. Zero means no limit.
func WithFetchLimit(n int) ClosureOption {
	return func(c *Closure) {
		if n >= 0 {
			c.limit = n
		}
	}
}

// NewClosure creates a Closure loading schemas through fetcher, normally a
// *Cache so the loaded schemas are retained for decoding.
func NewClosure(fetcher Fetcher, opts ...ClosureOption) *Closure {
	c := &Closure{fetcher: fetcher}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve loads the schema of root and, level by level, the schema of every
// complex or resource type referenced by an element of an already loaded
// schema. Primitive types, the abstract Element and BackboneElement types and
// the Resource slot type are not fetched. The running set of known types stops
// the walk at cycles (Identifier -> Reference -> Identifier).
//
// The first fetch failure cancels the remaining fetches and is returned.
func (c *Closure) Resolve(ctx context.Context, root string) (map[string]*Schema, error) {
	resolved := make(map[string]*Schema)
	known := map[string]bool{root: true}
	level := []string{root}

	for len(level) > 0 {
		schemas, err := c.fetchLevel(ctx, level)
		if err != nil {
			return nil, err
		}

		var next []string
		for i, name := range level {
			s := schemas[i]
			resolved[name] = s
			for _, ref := range ReferencedTypes(s) {
				if !known[ref] {
					known[ref] = true
					next = append(next, ref)
				}
			}
		}
		level = next
	}

	return resolved, nil
}

func (c *Closure) fetchLevel(ctx context.Context, names []string) ([]*Schema, error) {
	g, ctx := errgroup.WithContext(ctx)
	if c.limit > 0 {
		g.SetLimit(c.limit)
	}

	schemas := make([]*Schema, len(names))
	for i, name := range names {
		g.Go(func() error {
			s, err := c.fetcher.FetchSchema(ctx, name)
			if err != nil {
				return err
			}
			schemas[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return schemas, nil
}

// ReferencedTypes returns the distinct complex and resource type codes the
// elements of s declare, sorted.
func ReferencedTypes(s *Schema) []string {
	if s == nil {
		return nil
	}

	seen := make(map[string]struct{})
	for i := range s.Elements {
		for _, t := range s.Elements[i].Types {
			code := NormalizeCode(t.Code)
			if code == "" || IsPrimitiveCode(code) || IsAbstractCode(code) || IsResourceCode(code) {
				continue
			}
			seen[code] = struct{}{}
		}
	}

	refs := make([]string, 0, len(seen))
	for code := range seen {
		refs = append(refs, code)
	}
	sort.Strings(refs)
	return refs
}
