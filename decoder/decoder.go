// Package decoder builds ordered, typed property trees from raw FHIR JSON
// using schemas loaded at runtime.
package decoder

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	fo "github.com/gofhir/fhirobject"
	"github.com/gofhir/fhirobject/pkg/logger"
	"github.com/gofhir/fhirobject/pool"
	"github.com/gofhir/fhirobject/schema"
	"github.com/gofhir/fhirobject/walker"
)

const resourceTypeKey = "resourceType"

// Decoder decodes raw resources against their schemas. A Decoder is safe for
// concurrent use; decodes sharing a Decoder share its schema cache and
// element index.
type Decoder struct {
	schemas  *schema.Cache
	closure  *schema.Closure
	index    *walker.ElementIndex
	resolver *walker.TypeResolver
	opts     *fo.Options
	log      *logger.Logger
}

// New creates a Decoder loading schemas through fetcher. A *schema.Cache is
// used as is; any other Fetcher is put behind a new schema.Cache configured
// from opts.
func New(fetcher schema.Fetcher, opts ...fo.Option) *Decoder {
	o := fo.Apply(opts...)

	schemas, ok := fetcher.(*schema.Cache)
	if !ok {
		schemas = schema.NewCache(fetcher, opts...)
	}

	index := walker.NewElementIndex(o.IndexCacheCapacity)
	return &Decoder{
		schemas:  schemas,
		closure:  schema.NewClosure(schemas, schema.WithFetchLimit(o.MaxConcurrency)),
		index:    index,
		resolver: walker.NewTypeResolver(index),
		opts:     o,
		log:      o.Logger.Named("decoder"),
	}
}

// Reset drops every cached schema and the element scopes memoized for them.
func (d *Decoder) Reset() {
	d.schemas.Reset()
	d.index.Reset()
}

// Schemas returns the schema cache the decoder loads through.
func (d *Decoder) Schemas() *schema.Cache {
	return d.schemas
}

// Decode decodes raw against s. Properties follow the schema's declaration
// order and appear only for keys present in raw. A resource schema yields a
// leading synthetic resourceType property holding the schema's type name.
//
// Any failure, including a schema fetch failure deep in the tree, fails the
// whole decode; the error is a *fo.DecodeError naming the instance path.
func (d *Decoder) Decode(ctx context.Context, s *schema.Schema, raw map[string]any) (*Node, error) {
	start := time.Now()
	node, err := d.decodeRoot(ctx, s, raw, s.TypeName())
	d.record(start, node, err)
	if err != nil {
		return nil, err
	}
	return node, nil
}

// DecodeResource decodes a resource against the schema named by its
// resourceType. With prefetch enabled the schemas of every type the resource
// type can reference are loaded concurrently first.
func (d *Decoder) DecodeResource(ctx context.Context, raw map[string]any) (*Node, error) {
	start := time.Now()
	node, err := d.decodeResource(ctx, raw)
	d.record(start, node, err)
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (d *Decoder) decodeResource(ctx context.Context, raw map[string]any) (*Node, error) {
	typeName, _ := raw[resourceTypeKey].(string)
	if typeName == "" {
		return nil, invalid(resourceTypeKey, "resource without "+resourceTypeKey)
	}

	if d.opts.Prefetch {
		if _, err := d.closure.Resolve(ctx, typeName); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// Types the resource does not use may legitimately be missing;
			// the decode itself fails if it needs one.
			d.log.Warn("prefetching schemas of %s: %v", typeName, err)
		}
	}

	s, err := d.schemas.Get(ctx, typeName)
	if err != nil {
		return nil, &fo.DecodeError{Path: typeName, Err: err}
	}
	return d.decodeRoot(ctx, s, raw, typeName)
}

func (d *Decoder) record(start time.Time, node *Node, err error) {
	if d.opts.Metrics == nil {
		return
	}
	d.opts.Metrics.RecordDecode(time.Since(start), err == nil)
	if err == nil {
		d.opts.Metrics.RecordProperties(node.Count())
	}
}

// decodeRoot decodes raw against the root scope of s.
func (d *Decoder) decodeRoot(ctx context.Context, s *schema.Schema, raw map[string]any, path string) (*Node, error) {
	node, err := d.decodeObject(ctx, walker.RootScope(s), schema.Type{Code: s.Label()}, raw, path)
	if err != nil {
		return nil, err
	}

	if s.IsResource() {
		resourceType := Property{
			Name:  resourceTypeKey,
			Type:  schema.Type{Code: schema.CodeString},
			Value: &Primitive{Type: schema.Type{Code: schema.CodeString}, Value: s.TypeName()},
		}
		node.Properties = append([]Property{resourceType}, node.Properties...)
	}
	return node, nil
}

// planned is a child element whose raw key is present.
type planned struct {
	res walker.Resolution
	key string
	typ schema.Type
}

// needsIO reports whether decoding the property may fetch schemas.
func (p *planned) needsIO() bool {
	return p.res.Kind != walker.Concrete || !p.typ.IsPrimitive()
}

func (d *Decoder) decodeObject(ctx context.Context, scope walker.Scope, nodeType schema.Type, raw map[string]any, path string) (*Node, error) {
	children := d.index.Children(scope.Schema, scope.Elements, scope.Path)

	plan := make([]planned, 0, len(children))
	for i := range children {
		el := &children[i]
		res, err := d.resolver.Resolve(el, scope)
		if err != nil {
			name := strings.TrimSuffix(el.Name(), schema.ChoiceSuffix)
			if v, ok := raw[name]; !ok || v == nil {
				continue
			}
			if d.opts.StrictContentReferences {
				return nil, &fo.DecodeError{Path: pool.Field(path, name), Err: err}
			}
			d.log.Warn("omitting %s.%s: %v", path, name, err)
			continue
		}

		key, typ, ok := res.Select(raw)
		if !ok {
			continue
		}
		plan = append(plan, planned{res: res, key: key, typ: typ})
	}

	props := make([]Property, len(plan))
	if err := d.decodeProperties(ctx, plan, props, raw, path); err != nil {
		return nil, err
	}

	return &Node{
		Type:       nodeType,
		Properties: props,
		Object:     raw,
	}, nil
}

// decodeProperties fills props[i] from plan[i]. Properties that may fetch
// schemas run concurrently when parallel decoding is enabled; the others are
// decoded inline.
func (d *Decoder) decodeProperties(ctx context.Context, plan []planned, props []Property, raw map[string]any, path string) error {
	var concurrent int
	for i := range plan {
		if plan[i].needsIO() {
			concurrent++
		}
	}

	if !d.opts.Parallel || concurrent < 2 {
		for i := range plan {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := d.decodeProperty(ctx, &plan[i], raw, path)
			if err != nil {
				return err
			}
			props[i] = p
		}
		return nil
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	g, gctx := errgroup.WithContext(ctx)
	if d.opts.MaxConcurrency > 0 {
		g.SetLimit(d.opts.MaxConcurrency)
	}

	for i := range plan {
		if !plan[i].needsIO() {
			p, err := d.decodeProperty(ctx, &plan[i], raw, path)
			if err != nil {
				// Stop the siblings already started and wait for them.
				cancel(err)
				_ = g.Wait()
				return err
			}
			props[i] = p
			continue
		}
		g.Go(func() error {
			p, err := d.decodeProperty(gctx, &plan[i], raw, path)
			if err != nil {
				return err
			}
			props[i] = p
			return nil
		})
	}
	return g.Wait()
}

func (d *Decoder) decodeProperty(ctx context.Context, p *planned, raw map[string]any, path string) (Property, error) {
	value := raw[p.key]
	propPath := pool.Field(path, p.key)

	prop := Property{
		Name: p.key,
		Type: p.typ,
	}
	if p.res.Choice {
		prop.HumanName = p.res.Name
	}

	var err error
	switch p.res.Kind {
	case walker.Abstract, walker.ContentReference:
		prop.Value, err = decodeNodes(value, propPath, func(obj map[string]any, itemPath string) (*Node, error) {
			return d.decodeObject(ctx, p.res.Scope, p.typ, obj, itemPath)
		})

	case walker.ResourceSlot:
		prop.Value, err = decodeNodes(value, propPath, func(obj map[string]any, itemPath string) (*Node, error) {
			return d.decodeContained(ctx, obj, itemPath)
		})

	default:
		if p.typ.IsPrimitive() {
			prop.Value, err = d.decodePrimitive(ctx, p.typ, value, raw["_"+p.key], path, p.key)
			break
		}

		var s *schema.Schema
		s, err = d.schemas.Get(ctx, p.typ.Code)
		if err != nil {
			return prop, wrap(propPath, err)
		}
		prop.Value, err = decodeNodes(value, propPath, func(obj map[string]any, itemPath string) (*Node, error) {
			return d.decodeRoot(ctx, s, obj, itemPath)
		})
	}

	return prop, err
}

// decodeContained decodes a resource held by a Resource slot against the
// schema its resourceType names.
func (d *Decoder) decodeContained(ctx context.Context, obj map[string]any, path string) (*Node, error) {
	typeName, _ := obj[resourceTypeKey].(string)
	if typeName == "" {
		return nil, invalid(path, "resource without "+resourceTypeKey)
	}

	s, err := d.schemas.Get(ctx, typeName)
	if err != nil {
		return nil, wrap(path, err)
	}
	return d.decodeRoot(ctx, s, obj, path)
}

// decodeNodes decodes an object or an array of objects.
func decodeNodes(value any, path string, decode func(map[string]any, string) (*Node, error)) (Value, error) {
	switch v := value.(type) {
	case map[string]any:
		return decode(v, path)

	case []any:
		nodes := make(Nodes, 0, len(v))
		for i, item := range v {
			itemPath := pool.Index(path, i)
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, invalid(itemPath, "expected object, got "+schema.DescribeValue(item))
			}
			n, err := decode(obj, itemPath)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		return nodes, nil

	default:
		return nil, invalid(path, "expected object, got "+schema.DescribeValue(value))
	}
}

// decodePrimitive decodes a primitive or an array of primitives. sidecar is
// the raw value of the "_key" sibling; its extension lists are attached to
// the matching primitive.
func (d *Decoder) decodePrimitive(ctx context.Context, typ schema.Type, value, sidecar any, parentPath, key string) (Value, error) {
	path := pool.Field(parentPath, key)
	sidecarPath := pool.Sidecar(parentPath, key)

	switch v := value.(type) {
	case []any:
		sidecars, _ := sidecar.([]any)
		out := make(Primitives, len(v))
		for i, item := range v {
			itemPath := pool.Index(path, i)
			if !isScalar(item) {
				return nil, invalid(itemPath, "expected primitive, got "+schema.DescribeValue(item))
			}

			p := &Primitive{Type: typ, Value: item}
			if i < len(sidecars) {
				exts, err := d.decodeExtensions(ctx, sidecars[i], pool.Index(sidecarPath, i))
				if err != nil {
					return nil, err
				}
				p.Extensions = exts
			}
			out[i] = p
		}
		return out, nil

	default:
		if !isScalar(v) {
			return nil, invalid(path, "expected primitive, got "+schema.DescribeValue(v))
		}
		exts, err := d.decodeExtensions(ctx, sidecar, sidecarPath)
		if err != nil {
			return nil, err
		}
		return &Primitive{Type: typ, Value: v, Extensions: exts}, nil
	}
}

// decodeExtensions decodes the extension list of a primitive's sidecar
// object against the Extension schema. Sidecars without an extension list
// yield nil.
func (d *Decoder) decodeExtensions(ctx context.Context, sidecar any, path string) ([]*Node, error) {
	obj, ok := sidecar.(map[string]any)
	if !ok {
		return nil, nil
	}
	list, ok := obj["extension"].([]any)
	if !ok || len(list) == 0 {
		return nil, nil
	}

	path = pool.Field(path, "extension")
	s, err := d.schemas.Get(ctx, schema.CodeExtension)
	if err != nil {
		return nil, wrap(path, err)
	}

	exts := make([]*Node, 0, len(list))
	for i, item := range list {
		itemPath := pool.Index(path, i)
		ext, ok := item.(map[string]any)
		if !ok {
			return nil, invalid(itemPath, "expected object, got "+schema.DescribeValue(item))
		}
		n, err := d.decodeRoot(ctx, s, ext, itemPath)
		if err != nil {
			return nil, err
		}
		exts = append(exts, n)
	}
	return exts, nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	default:
		return true
	}
}

func invalid(path, reason string) error {
	return &fo.DecodeError{Path: path, Err: &fo.InvalidValueError{Path: path, Reason: reason}}
}

// wrap attaches path to err unless err already carries a decode path.
func wrap(path string, err error) error {
	var de *fo.DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &fo.DecodeError{Path: path, Err: err}
}
