package decoder

import "github.com/gofhir/fhirobject/schema"

// Value is the value of a Property: a *Node, Nodes, a *Primitive or
// Primitives. The set is closed.
type Value interface {
	isValue()
}

// Node is a decoded object: a resource, a complex type instance or an inline
// backbone element.
type Node struct {
	Type       schema.Type `json:"type"`
	Properties []Property  `json:"properties"`

	// Object is the raw object the node was decoded from. It is the caller's
	// map, not a copy, and must be treated as read-only.
	Object map[string]any `json:"-"`
}

// Nodes is a decoded array of objects, in input order.
type Nodes []*Node

// Primitive is a decoded primitive value with the extensions carried by its
// "_name" sibling.
type Primitive struct {
	Type       schema.Type `json:"type"`
	Value      any         `json:"value"`
	Extensions []*Node     `json:"extensions,omitempty"`
}

// Primitives is a decoded array of primitive values, in input order.
type Primitives []*Primitive

func (*Node) isValue()      {}
func (Nodes) isValue()      {}
func (*Primitive) isValue() {}
func (Primitives) isValue() {}

// Property is one decoded property. Name is the raw key, so a choice element
// is named after its concrete type ("valueQuantity"); HumanName then holds
// the element's base name ("value") and is empty for other properties.
type Property struct {
	Name      string      `json:"name"`
	HumanName string      `json:"humanName,omitempty"`
	Type      schema.Type `json:"type"`
	Value     Value       `json:"value"`
}

// Property returns the property named name.
func (n *Node) Property(name string) (*Property, bool) {
	if n == nil {
		return nil, false
	}
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			return &n.Properties[i], true
		}
	}
	return nil, false
}

// Names returns the property names in order.
func (n *Node) Names() []string {
	names := make([]string, len(n.Properties))
	for i := range n.Properties {
		names[i] = n.Properties[i].Name
	}
	return names
}

// Count returns the number of properties in the tree rooted at n, including
// those of primitive extensions.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := len(n.Properties)
	for i := range n.Properties {
		switch v := n.Properties[i].Value.(type) {
		case *Node:
			total += v.Count()
		case Nodes:
			for _, item := range v {
				total += item.Count()
			}
		case *Primitive:
			total += countExtensions(v)
		case Primitives:
			for _, item := range v {
				total += countExtensions(item)
			}
		}
	}
	return total
}

func countExtensions(p *Primitive) int {
	total := 0
	for _, ext := range p.Extensions {
		total += ext.Count()
	}
	return total
}

// WrapExtensions returns a node with a single "extension" property holding
// exts, so a primitive's extensions can be presented like any other object.
func WrapExtensions(exts []*Node) *Node {
	raw := make([]any, len(exts))
	for i, ext := range exts {
		raw[i] = ext.Object
	}

	return &Node{
		Type: schema.Type{Code: schema.CodeElement},
		Properties: []Property{{
			Name:  "extension",
			Type:  schema.Type{Code: schema.CodeExtension},
			Value: Nodes(exts),
		}},
		Object: map[string]any{"extension": raw},
	}
}
