package walker

import (
	"strings"

	"github.com/gofhir/fhirobject/cache"
	"github.com/gofhir/fhirobject/schema"
)

// ElementIndex returns the elements nested under a path, rebased so they can
// be walked as a scope of their own. Results are memoized per schema: a
// refetched or different schema with the same type name gets its own entries.
type ElementIndex struct {
	scopes *cache.Cache[indexKey, []schema.ElementDefinition]
}

type indexKey struct {
	schema     *schema.Schema
	parentPath string
	path       string
}

// NewElementIndex creates an ElementIndex memoizing up to capacity scopes.
// A capacity <= 0 keeps every scope.
func NewElementIndex(capacity int) *ElementIndex {
	return &ElementIndex{
		scopes: cache.New[indexKey, []schema.ElementDefinition](capacity),
	}
}

// Get returns the elements of elements strictly nested under path, with the
// leading segments of path removed so that path's last segment becomes the
// first segment of each result:
//
//	Get(consent, "Consent", "Consent.provision")
//	  -> provision.type, provision.actor, provision.actor.role, ...
//
// root is the schema elements was taken from and parentPath identifies the
// element list within it: the memo is keyed by (root, parentPath, path). The
// returned slice is shared and must not be modified.
func (idx *ElementIndex) Get(root *schema.Schema, elements []schema.ElementDefinition, parentPath, path string) []schema.ElementDefinition {
	key := indexKey{schema: root, parentPath: parentPath, path: path}
	return idx.scopes.GetOrSet(key, func() []schema.ElementDefinition {
		return rebase(elements, path)
	})
}

// Children returns the direct children of a scope: the elements at depth two.
// Children are memoized under (root, parentPath, "").
func (idx *ElementIndex) Children(root *schema.Schema, elements []schema.ElementDefinition, parentPath string) []schema.ElementDefinition {
	key := indexKey{schema: root, parentPath: parentPath}
	return idx.scopes.GetOrSet(key, func() []schema.ElementDefinition {
		return children(elements)
	})
}

// Len returns the number of memoized scopes.
func (idx *ElementIndex) Len() int {
	return idx.scopes.Len()
}

// Stats returns memo statistics.
func (idx *ElementIndex) Stats() cache.Stats {
	return idx.scopes.Stats()
}

// Forget drops the scopes memoized for s.
func (idx *ElementIndex) Forget(s *schema.Schema) {
	for _, key := range idx.scopes.Keys() {
		if key.schema == s {
			idx.scopes.Delete(key)
		}
	}
}

// Reset drops every memoized scope.
func (idx *ElementIndex) Reset() {
	idx.scopes.Clear()
}

func rebase(elements []schema.ElementDefinition, path string) []schema.ElementDefinition {
	prefix := path + "."
	drop := schema.PathDepth(path) - 1

	var out []schema.ElementDefinition
	for i := range elements {
		e := elements[i]
		if !strings.HasPrefix(e.Path, prefix) {
			continue
		}
		e.Path = schema.DropSegments(e.Path, drop)
		out = append(out, e)
	}
	return out
}

func children(elements []schema.ElementDefinition) []schema.ElementDefinition {
	var out []schema.ElementDefinition
	for i := range elements {
		if schema.PathDepth(elements[i].Path) == 2 {
			out = append(out, elements[i])
		}
	}
	return out
}
