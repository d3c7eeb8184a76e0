package walker

import (
	"strings"

	fo "github.com/gofhir/fhirobject"
	"github.com/gofhir/fhirobject/schema"
)

// Scope is the element list an object is decoded against, together with the
// root schema's elements that content references resolve in.
type Scope struct {
	// Schema is the schema the walk started from.
	Schema *schema.Schema
	// Root holds the elements of the schema the walk started from.
	Root []schema.ElementDefinition
	// RootPath is the root schema's type name.
	RootPath string
	// Elements holds the scope's elements. In a nested scope their paths are
	// rebased so the first segment is the enclosing element's name.
	Elements []schema.ElementDefinition
	// Path is the absolute element path of the scope ("Consent.provision").
	Path string
}

// RootScope returns the scope of a schema's own snapshot.
func RootScope(s *schema.Schema) Scope {
	name := s.TypeName()
	return Scope{
		Schema:   s,
		Root:     s.Elements,
		RootPath: name,
		Elements: s.Elements,
		Path:     name,
	}
}

// ElementPath returns the absolute path of an element of the scope.
func (s Scope) ElementPath(el *schema.ElementDefinition) string {
	return s.Path + "." + schema.DropSegments(el.Path, 1)
}

// Kind classifies how an element is decoded.
type Kind int

// Element kinds.
const (
	Concrete Kind = iota
	Abstract
	ResourceSlot
	ContentReference
)

func (k Kind) String() string {
	switch k {
	case Concrete:
		return "concrete"
	case Abstract:
		return "abstract"
	case ResourceSlot:
		return "resource"
	case ContentReference:
		return "content-reference"
	default:
		return "unknown"
	}
}

// Resolution is the classification of one element.
type Resolution struct {
	Kind    Kind
	Element *schema.ElementDefinition

	// Name is the property name without the choice suffix.
	Name   string
	Choice bool

	// Types holds the declared types of a Concrete element, normalized.
	Types []schema.Type

	// Type is the single type of an Abstract, ResourceSlot or
	// ContentReference element. Content references are BackboneElements.
	Type schema.Type

	// Scope is the scope nested objects are decoded against, for Abstract
	// and ContentReference elements.
	Scope Scope
}

// Select returns the raw key holding the element's value and the type that
// applies to it, or false when no such key is present (or it is null).
// A choice element yields the first declared type T, in declaration order,
// whose key Name+TitleCase(T) is present.
func (r *Resolution) Select(raw map[string]any) (string, schema.Type, bool) {
	if r.Kind != Concrete {
		if present(raw, r.Name) {
			return r.Name, r.Type, true
		}
		return "", schema.Type{}, false
	}

	if !r.Choice {
		if len(r.Types) == 0 || !present(raw, r.Name) {
			return "", schema.Type{}, false
		}
		return r.Name, r.Types[0], true
	}

	for _, t := range r.Types {
		key := r.Name + schema.TitleCase(t.Code)
		if present(raw, key) {
			return key, t, true
		}
	}
	return "", schema.Type{}, false
}

func present(raw map[string]any, key string) bool {
	v, ok := raw[key]
	return ok && v != nil
}

// TypeResolver classifies elements.
type TypeResolver struct {
	index *ElementIndex
}

// NewTypeResolver creates a TypeResolver computing nested scopes with index.
func NewTypeResolver(index *ElementIndex) *TypeResolver {
	return &TypeResolver{index: index}
}

// Resolve classifies el, a child of scope. It fails only for a content
// reference whose target is not an element of the root schema; the error is
// a *fo.MalformedReferenceError.
func (r *TypeResolver) Resolve(el *schema.ElementDefinition, scope Scope) (Resolution, error) {
	name := strings.TrimSuffix(el.Name(), schema.ChoiceSuffix)
	res := Resolution{
		Element: el,
		Name:    name,
		Choice:  el.IsChoice(),
	}

	if el.ContentReference != "" {
		return r.resolveContentReference(res, el, scope)
	}

	if t, ok := el.OnlyType(); ok && !res.Choice {
		t = t.Normalized()
		switch {
		case schema.IsAbstractCode(t.Code):
			res.Kind = Abstract
			res.Type = schema.Type{Code: t.Code}
			res.Scope = Scope{
				Schema:   scope.Schema,
				Root:     scope.Root,
				RootPath: scope.RootPath,
				Elements: r.index.Get(scope.Schema, scope.Elements, scope.Path, el.Path),
				Path:     scope.ElementPath(el),
			}
			return res, nil
		case schema.IsResourceCode(t.Code):
			res.Kind = ResourceSlot
			res.Type = schema.Type{Code: t.Code}
			return res, nil
		}
	}

	res.Kind = Concrete
	res.Types = make([]schema.Type, len(el.Types))
	for i, t := range el.Types {
		res.Types[i] = t.Normalized()
	}
	return res, nil
}

func (r *TypeResolver) resolveContentReference(res Resolution, el *schema.ElementDefinition, scope Scope) (Resolution, error) {
	_, id, ok := strings.Cut(el.ContentReference, "#")
	var target *schema.ElementDefinition
	if ok && id != "" {
		target = schema.FindByID(scope.Root, id)
	}
	if target == nil {
		return res, &fo.MalformedReferenceError{
			Path:      scope.ElementPath(el),
			Reference: el.ContentReference,
		}
	}

	res.Kind = ContentReference
	res.Type = schema.Type{Code: schema.CodeBackboneElement}
	res.Scope = Scope{
		Schema:   scope.Schema,
		Root:     scope.Root,
		RootPath: scope.RootPath,
		Elements: r.index.Get(scope.Schema, scope.Root, scope.RootPath, target.Path),
		Path:     target.Path,
	}
	return res, nil
}
