// Package summary derives display titles for decoded resources.
package summary

import (
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/funcs"

	"github.com/gofhir/fhirobject/decoder"
)

func init() {
	// trace() output would otherwise go to stderr.
	funcs.SetTraceLogger(funcs.NullTraceLogger{})
}

const (
	versionedTitle = "title + ' v' + version"
	reference      = "resourceType + '/' + id"
)

var (
	exprMu    sync.RWMutex
	exprCache = make(map[string]*fhirpath.Expression)
)

// Title returns a display title for a decoded resource. Terminology resources
// (CodeSystem, ValueSet) with a title and a version read "<title> v<version>";
// anything else reads "<resourceType>/<id>", or just the type without an id.
func Title(node *decoder.Node) (string, error) {
	if node == nil {
		return "", fmt.Errorf("nil node")
	}

	data, err := json.Marshal(node.Object)
	if err != nil {
		return "", fmt.Errorf("failed to encode resource: %w", err)
	}

	switch node.Type.Code {
	case "CodeSystem", "ValueSet":
		title, err := evaluateString(versionedTitle, data)
		if err != nil {
			return "", err
		}
		if title != "" {
			return title, nil
		}
	}

	ref, err := evaluateString(reference, data)
	if err != nil {
		return "", err
	}
	if ref == "" {
		return node.Type.Code, nil
	}
	return ref, nil
}

// evaluateString evaluates expr against resource and returns its single
// result as a string, or "" when the result is empty.
func evaluateString(expr string, resource []byte) (string, error) {
	compiled, err := compile(expr)
	if err != nil {
		return "", err
	}

	result, err := compiled.Evaluate(resource)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate FHIRPath expression '%s': %w", expr, err)
	}
	if result.Empty() {
		return "", nil
	}
	return fmt.Sprint(result[0]), nil
}

func compile(expr string) (*fhirpath.Expression, error) {
	exprMu.RLock()
	compiled, ok := exprCache[expr]
	exprMu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := fhirpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile FHIRPath expression '%s': %w", expr, err)
	}

	exprMu.Lock()
	exprCache[expr] = compiled
	exprMu.Unlock()
	return compiled, nil
}
