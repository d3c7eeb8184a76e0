package schema

import (
	"context"
	"sync"
	"sync/atomic"

	fo "github.com/gofhir/fhirobject"
)

// mapFetcher serves schemas from a map and counts fetches per type.
type mapFetcher struct {
	schemas map[string]*Schema
	errs    map[string]error
	gate    chan struct{}

	mu     sync.Mutex
	counts map[string]int
	total  atomic.Int32
}

func newMapFetcher(schemas ...*Schema) *mapFetcher {
	f := &mapFetcher{
		schemas: make(map[string]*Schema),
		errs:    make(map[string]error),
		counts:  make(map[string]int),
	}
	for _, s := range schemas {
		f.schemas[s.TypeName()] = s
	}
	return f
}

func (f *mapFetcher) FetchSchema(ctx context.Context, typeName string) (*Schema, error) {
	f.total.Add(1)
	f.mu.Lock()
	f.counts[typeName]++
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err, ok := f.errs[typeName]; ok {
		return nil, err
	}
	s, ok := f.schemas[typeName]
	if !ok {
		return nil, &fo.SchemaNotFoundError{TypeName: typeName}
	}
	return s, nil
}

func (f *mapFetcher) count(typeName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[typeName]
}

func complexType(name string, elements ...ElementDefinition) *Schema {
	return &Schema{
		Name:     name,
		Type:     name,
		Kind:     KindComplexType,
		Elements: append([]ElementDefinition{{ID: name, Path: name}}, elements...),
	}
}

func el(path string, codes ...string) ElementDefinition {
	e := ElementDefinition{ID: path, Path: path, Max: "1"}
	for _, c := range codes {
		e.Types = append(e.Types, Type{Code: c})
	}
	return e
}
