// Package walker classifies schema elements for the decoder.
//
// A schema's elements form a flat, ordered list of dot-separated paths. The
// decoder walks that list one level at a time: it takes the direct children of
// the current scope, asks the TypeResolver what each child is, and descends
// into the sub-list of elements nested under it.
//
// # Scopes
//
// A Scope is the element list a nested object is decoded against. The root
// scope is the schema's own snapshot:
//
//	Consent
//	Consent.status
//	Consent.provision            BackboneElement
//	Consent.provision.type
//	Consent.provision.actor      BackboneElement
//	Consent.provision.actor.role
//	Consent.provision.provision  contentReference #Consent.provision
//
// The scope of Consent.provision is the elements under it, rebased so the
// first segment is the element's own name:
//
//	provision.type
//	provision.actor
//	provision.actor.role
//	provision.provision
//
// Direct children are always the depth-two paths, whatever the scope. The
// ElementIndex memoizes rebased lists by (schema, parent path, path)
// because the same scope is requested for every item of an array and for
// every recursion through a content reference.
//
// # Resolutions
//
// Each child element resolves to exactly one Kind:
//
//   - ContentReference: the element reuses the shape of another element of the
//     root schema and is decoded as a BackboneElement against that element's
//     scope. Recursion stops when the data does, not the schema.
//   - Abstract: Element or BackboneElement, decoded inline against the child's
//     scope with no schema fetch.
//   - ResourceSlot: a contained resource decoded against the schema named by
//     its resourceType.
//   - Concrete: one or more named types. Choice elements ("value[x]") pick the
//     first declared type whose suffixed key ("valueQuantity") is present.
package walker
