// Package fhirobject decodes FHIR resources whose shape is only known at
// runtime into ordered, typed property trees.
//
// A resource arrives as dynamically shaped JSON (map[string]any). The decoder
// walks the resource's StructureDefinition snapshot alongside it and produces
// a tree of nodes whose properties follow the schema's declaration order, with
// choice elements ([x]) resolved to their concrete type, backbone elements and
// content references decoded inline, contained resources decoded against their
// own schema, and primitive extensions (the "_name" sibling keys) attached to
// the primitive they describe.
//
// # Quick Start
//
//	import (
//	    fo "github.com/gofhir/fhirobject"
//	    "github.com/gofhir/fhirobject/decoder"
//	    "github.com/gofhir/fhirobject/loader"
//	    "github.com/gofhir/fhirobject/schema"
//	)
//
//	src := loader.NewHTTPSource("https://blaze.example.org/fhir")
//	schemas := schema.NewCache(src)
//
//	dec := decoder.New(schemas, fo.WithMaxConcurrency(16))
//	node, err := dec.DecodeResource(ctx, raw)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, p := range node.Properties {
//	    fmt.Println(p.Name, p.Type.Code)
//	}
//
// # Packages
//
//   - cache: generic LRU with TTL and a single-flight loader
//   - schema: schema model, SchemaCache and transitive closure resolution
//   - walker: element index and type resolution
//   - decoder: the property tree builder
//   - loader: schema origins (files, directories, FHIR server) and chains of them
//   - registry: FHIR package registry downloads
//   - worker: bounded worker pool used for bundles
//   - pool: pooled builders for error instance paths
//   - summary: FHIRPath-based resource titles
//   - pkg/location: line and column of a failing value in the JSON source
//
// # Errors
//
// All failures are returned as errors; a failed decode never yields a partial
// tree. Use errors.Is with ErrSchemaNotFound, ErrMalformedReference and
// ErrInvalidValue, or errors.As with *TransportError and *DecodeError.
package fhirobject
