package decoder

import (
	"context"
	"errors"
	"fmt"

	fo "github.com/gofhir/fhirobject"
	"github.com/gofhir/fhirobject/pool"
	"github.com/gofhir/fhirobject/schema"
	"github.com/gofhir/fhirobject/worker"
)

// Entry is one bundle entry with its decoded resource. Resource is nil when
// the entry carries no resource (e.g. a delete in a transaction response).
type Entry struct {
	Raw      map[string]any
	Resource *Node
}

type bundleItem struct {
	index int
	raw   map[string]any
}

// DecodeBundle decodes the resource of every entry of a Bundle, in parallel
// on the configured number of workers. Entries keep their order. Any entry
// failing fails the whole call.
func (d *Decoder) DecodeBundle(ctx context.Context, bundle map[string]any) ([]Entry, error) {
	rawEntries, err := bundleEntries(bundle)
	if err != nil {
		return nil, err
	}

	items := make([]bundleItem, len(rawEntries))
	for i, e := range rawEntries {
		obj, ok := e.(map[string]any)
		if !ok {
			return nil, invalid(pool.Index("Bundle.entry", i), "expected object, got "+schema.DescribeValue(e))
		}
		items[i] = bundleItem{index: i, raw: obj}
	}

	workers := worker.NewPool(func(ctx context.Context, item bundleItem) (*Node, error) {
		resource, ok := item.raw["resource"]
		if !ok || resource == nil {
			return nil, nil
		}
		path := pool.Field(pool.Index("Bundle.entry", item.index), "resource")
		obj, ok := resource.(map[string]any)
		if !ok {
			return nil, invalid(path, "expected object, got "+schema.DescribeValue(resource))
		}
		node, err := d.DecodeResource(ctx, obj)
		if err != nil {
			return nil, &fo.DecodeError{Path: path, Err: err}
		}
		return node, nil
	}, d.opts.WorkerCount)

	nodes, err := workers.Run(ctx, items)
	if err != nil {
		var ie *worker.IndexedError
		if errors.As(err, &ie) {
			return nil, ie.Err
		}
		return nil, err
	}

	entries := make([]Entry, len(items))
	for i := range items {
		entries[i] = Entry{Raw: items[i].raw, Resource: nodes[i]}
	}
	d.log.Debug("decoded bundle with %d entries", len(entries))
	return entries, nil
}

func bundleEntries(bundle map[string]any) ([]any, error) {
	if rt, _ := bundle[resourceTypeKey].(string); rt != "Bundle" {
		return nil, invalid(resourceTypeKey, fmt.Sprintf("expected Bundle, got %q", rt))
	}

	raw, ok := bundle["entry"]
	if !ok || raw == nil {
		return nil, nil
	}
	entries, ok := raw.([]any)
	if !ok {
		return nil, invalid("Bundle.entry", "expected array, got "+schema.DescribeValue(raw))
	}
	return entries, nil
}
