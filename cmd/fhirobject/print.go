package main

import (
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/gofhir/fhirobject/decoder"
	"github.com/gofhir/fhirobject/summary"
)

// title returns the display title of a resource node, falling back to its
// type when none can be computed.
func title(node *decoder.Node) string {
	t, err := summary.Title(node)
	if err != nil {
		return node.Type.Code
	}
	return t
}

func writeJSON(w io.Writer, results []Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printResult(w io.Writer, r *Result) {
	fmt.Fprintf(w, "== %s ==\n", r.Resource)
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
		if r.Location != "" {
			fmt.Fprintf(w, "At: %s\n", r.Location)
		}
		fmt.Fprintln(w)
		return
	}

	switch {
	case r.Node != nil:
		fmt.Fprintf(w, "Title: %s\n", r.Title)
		fmt.Fprintf(w, "Duration: %s\n", r.Duration)
		printNode(w, r.Node, 0)
	default:
		fmt.Fprintf(w, "Bundle: %d entries\n", len(r.Entries))
		fmt.Fprintf(w, "Duration: %s\n", r.Duration)
		for i, node := range r.Entries {
			if node == nil {
				fmt.Fprintf(w, "entry[%d]: (no resource)\n", i)
				continue
			}
			fmt.Fprintf(w, "entry[%d]: %s\n", i, title(node))
			printNode(w, node, 1)
		}
	}
	fmt.Fprintln(w)
}

// printNode writes the properties of node, one per line, nested values
// indented below their property.
func printNode(w io.Writer, node *decoder.Node, depth int) {
	for i := range node.Properties {
		printProperty(w, &node.Properties[i], depth)
	}
}

func printProperty(w io.Writer, p *decoder.Property, depth int) {
	indent := strings.Repeat("  ", depth)
	label := fmt.Sprintf("%s%s (%s)", indent, p.Name, p.Type.Code)

	switch v := p.Value.(type) {
	case *decoder.Primitive:
		fmt.Fprintf(w, "%s: %s\n", label, formatPrimitive(v))
		printExtensions(w, v, depth+1)

	case decoder.Primitives:
		fmt.Fprintf(w, "%s [%d]\n", label, len(v))
		for i, item := range v {
			fmt.Fprintf(w, "%s  [%d]: %s\n", indent, i, formatPrimitive(item))
			printExtensions(w, item, depth+2)
		}

	case *decoder.Node:
		fmt.Fprintf(w, "%s\n", label)
		printNode(w, v, depth+1)

	case decoder.Nodes:
		fmt.Fprintf(w, "%s [%d]\n", label, len(v))
		for i, item := range v {
			fmt.Fprintf(w, "%s  [%d] %s\n", indent, i, item.Type.Code)
			printNode(w, item, depth+2)
		}
	}
}

func printExtensions(w io.Writer, p *decoder.Primitive, depth int) {
	if len(p.Extensions) == 0 {
		return
	}
	printNode(w, decoder.WrapExtensions(p.Extensions), depth)
}

func formatPrimitive(p *decoder.Primitive) string {
	if s, ok := p.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(p.Value)
}
