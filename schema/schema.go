// Package schema holds the runtime schema model the decoder walks, the
// Fetcher contract schema origins implement, the single-flight schema cache
// and transitive closure resolution.
package schema

import (
	"context"
	"strings"
)

// Kind is the kind of type a schema describes.
type Kind string

// Schema kinds, as in StructureDefinition.kind.
const (
	KindPrimitiveType Kind = "primitive-type"
	KindComplexType   Kind = "complex-type"
	KindResource      Kind = "resource"
	KindLogical       Kind = "logical"
)

// Schema is the decoder's view of a StructureDefinition: its identity, kind
// and the ordered snapshot elements. Schemas are immutable once published by
// a Fetcher.
type Schema struct {
	URL            string              `json:"url,omitempty"`
	Name           string              `json:"name"`
	Type           string              `json:"type,omitempty"`
	Kind           Kind                `json:"kind"`
	Abstract       bool                `json:"abstract,omitempty"`
	BaseDefinition string              `json:"baseDefinition,omitempty"`
	Elements       []ElementDefinition `json:"element"`
}

// TypeName returns the type the schema defines, falling back to its name.
func (s *Schema) TypeName() string {
	if s.Type != "" {
		return s.Type
	}
	return s.Name
}

// Label returns the type code decoded nodes of s carry. A resource is
// labelled with its type so that profiles keep the base resourceType; other
// definitions use their name, so a constrained type such as SimpleQuantity
// keeps its own name rather than the Quantity it constrains.
func (s *Schema) Label() string {
	if s.IsResource() || s.Name == "" {
		return s.TypeName()
	}
	return s.Name
}

// IsResource reports whether s describes a resource.
func (s *Schema) IsResource() bool {
	return s.Kind == KindResource
}

// ElementByID returns the element with the given id, or nil.
func (s *Schema) ElementByID(id string) *ElementDefinition {
	return FindByID(s.Elements, id)
}

// ElementDefinition is one snapshot element. Path is dot separated and its
// first segment is the owning type, or the enclosing element's name once the
// path has been rebased.
type ElementDefinition struct {
	ID               string `json:"id,omitempty"`
	Path             string `json:"path"`
	Min              int    `json:"min,omitempty"`
	Max              string `json:"max,omitempty"`
	Short            string `json:"short,omitempty"`
	Types            []Type `json:"type,omitempty"`
	ContentReference string `json:"contentReference,omitempty"`
}

// Name returns the property name the element declares, e.g. "value[x]".
func (e *ElementDefinition) Name() string {
	return PropertyName(e.Path)
}

// IsChoice reports whether the element is polymorphic.
func (e *ElementDefinition) IsChoice() bool {
	return strings.HasSuffix(e.Name(), ChoiceSuffix)
}

// IsRepeating reports whether the element allows more than one value.
func (e *ElementDefinition) IsRepeating() bool {
	return e.Max != "" && e.Max != "0" && e.Max != "1"
}

// OnlyType returns the element's type when it declares exactly one.
func (e *ElementDefinition) OnlyType() (Type, bool) {
	if len(e.Types) != 1 {
		return Type{}, false
	}
	return e.Types[0], true
}

// Type is one declared type of an element.
type Type struct {
	Code          string   `json:"code"`
	Profile       []string `json:"profile,omitempty"`
	TargetProfile []string `json:"targetProfile,omitempty"`
}

// IsPrimitive reports whether t is a primitive type.
func (t Type) IsPrimitive() bool {
	return IsPrimitiveCode(t.Code)
}

// Normalized returns t with a FHIRPath system code mapped to its FHIR
// primitive and the profile list dropped.
func (t Type) Normalized() Type {
	return Type{Code: NormalizeCode(t.Code), TargetProfile: t.TargetProfile}
}

// FindByID returns the element of elements with the given id, or nil.
func FindByID(elements []ElementDefinition, id string) *ElementDefinition {
	for i := range elements {
		if elements[i].ID == id {
			return &elements[i]
		}
	}
	return nil
}

// Fetcher loads the schema of a type by name ("Patient", "HumanName").
// Implementations return an error matching fhirobject.ErrSchemaNotFound when
// the type is unknown and a *fhirobject.TransportError when the origin fails.
type Fetcher interface {
	FetchSchema(ctx context.Context, typeName string) (*Schema, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, typeName string) (*Schema, error)

// FetchSchema calls f.
func (f FetcherFunc) FetchSchema(ctx context.Context, typeName string) (*Schema, error) {
	return f(ctx, typeName)
}
