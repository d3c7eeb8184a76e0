// Package main implements the fhirobject CLI tool, which decodes FHIR JSON
// resources into typed property trees using schemas loaded at runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	fo "github.com/gofhir/fhirobject"
	"github.com/gofhir/fhirobject/decoder"
	"github.com/gofhir/fhirobject/loader"
	"github.com/gofhir/fhirobject/pkg/location"
	"github.com/gofhir/fhirobject/pkg/logger"
	"github.com/gofhir/fhirobject/registry"
	"github.com/gofhir/fhirobject/schema"
)

const (
	version = "0.1.0"
	usage   = `fhirobject - FHIR resource decoder

Usage:
  fhirobject [options] <file>...
  fhirobject [options] -           (read from stdin)

Examples:
  fhirobject -package hl7.fhir.r4.core#4.0.1 patient.json
  fhirobject -schemas ./definitions -output json bundle.json
  fhirobject -server https://hapi.fhir.org/baseR4 observation.json
  fhirobject -config fhirobject.yaml *.json

Options:
`
)

func main() {
	fs := flag.NewFlagSet("fhirobject", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	cfg, err := parseArgs(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		fmt.Printf("fhirobject v%s\n", version)
		os.Exit(0)
	}
	if len(cfg.Files) == 0 {
		fs.Usage()
		os.Exit(0)
	}

	os.Exit(run(context.Background(), cfg, os.Stdout))
}

func run(ctx context.Context, cfg *Config, out io.Writer) int {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log := logger.New(os.Stderr, level)

	origin, err := buildOrigin(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	metrics := fo.NewMetrics()
	opts := []fo.Option{
		fo.WithParallel(!cfg.Sequential),
		fo.WithStrictContentReferences(cfg.StrictRefs),
		fo.WithMaxConcurrency(cfg.MaxConcurrency),
		fo.WithWorkerCount(cfg.Workers),
		fo.WithMetrics(metrics),
		fo.WithLogger(log),
	}
	dec := decoder.New(origin, opts...)

	var results []Result
	failed := false
	for _, file := range cfg.Files {
		if file == "-" {
			results = append(results, decodeInput(ctx, dec, "stdin", func() ([]byte, error) { return io.ReadAll(os.Stdin) }))
			continue
		}

		matches, err := filepath.Glob(file)
		if err != nil || len(matches) == 0 {
			results = append(results, Result{Resource: file, Error: fmt.Sprintf("no files match pattern %s", file)})
			continue
		}
		for _, match := range matches {
			results = append(results, decodeInput(ctx, dec, match, func() ([]byte, error) { return os.ReadFile(match) }))
		}
	}

	for _, r := range results {
		if r.Error != "" {
			failed = true
		}
	}

	switch cfg.Output {
	case OutputJSON:
		if err := writeJSON(out, results); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	default:
		for i := range results {
			printResult(out, &results[i])
		}
	}

	if log.Enabled(logger.LevelDebug) {
		snap := metrics.Snapshot()
		log.Debug("decodes: %d (%d failed), schema fetches: %d, cache hit rate: %.2f, avg decode: %s",
			snap.DecodesTotal, snap.DecodesFailed, snap.SchemaFetches, snap.CacheHitRate,
			time.Duration(snap.AvgDecodeTimeNs)) //nolint:gosec // nanoseconds within int64 range
	}

	if failed {
		return 1
	}
	return 0
}

// buildOrigin returns the schema origins the configuration names, chained:
// definitions loaded from files and registry packages, then a FHIR server.
func buildOrigin(ctx context.Context, cfg *Config, log *logger.Logger) (schema.Fetcher, error) {
	if cfg.Server == "" && len(cfg.Schemas) == 0 && len(cfg.Packages) == 0 {
		return nil, errors.New("no schema origin: use -schemas, -package or -server")
	}

	chain := loader.NewChain()

	if len(cfg.Schemas) > 0 || len(cfg.Packages) > 0 {
		src, err := loadLocal(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		chain.Add(src)
	}

	// Local definitions shadow the server's.
	if cfg.Server != "" {
		chain.Add(loader.NewHTTPSource(cfg.Server,
			loader.WithRateLimit(cfg.ServerRate, 1),
			loader.WithLogger(log)))
	}

	return chain, nil
}

func loadLocal(ctx context.Context, cfg *Config, log *logger.Logger) (*loader.InMemorySource, error) {
	src := loader.NewInMemorySource()
	src.SetLogger(log)

	if len(cfg.Schemas) > 0 {
		if _, err := src.LoadPaths(cfg.Schemas...); err != nil {
			return nil, err
		}
	}

	if len(cfg.Packages) > 0 {
		refs := make([]registry.PackageRef, 0, len(cfg.Packages))
		for _, p := range cfg.Packages {
			ref, err := registry.ParsePackageRef(p)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}

		clientOpts := []registry.ClientOption{registry.WithLogger(log)}
		if cfg.Registry != "" {
			clientOpts = append(clientOpts, registry.WithRegistryURL(cfg.Registry))
		}
		if cfg.CacheDir != "" {
			clientOpts = append(clientOpts, registry.WithCacheDir(cfg.CacheDir))
		}

		dirs, err := registry.NewResolver(registry.NewClient(clientOpts...)).Resolve(ctx, refs...)
		if err != nil {
			return nil, err
		}
		stats, err := registry.NewPackageLoader(src, cfg.Workers).LoadPackages(ctx, dirs...)
		if err != nil {
			return nil, err
		}
		log.Info("loaded %d definitions from %d packages (%d errors)",
			stats.StructureDefinitions, stats.PackagesLoaded, stats.Errors)
	}

	if src.Count() == 0 && cfg.Server == "" {
		return nil, errors.New("no StructureDefinitions loaded")
	}
	return src, nil
}

// Result is the outcome of decoding one input.
type Result struct {
	Resource string          `json:"resource"`
	Title    string          `json:"title,omitempty"`
	Error    string          `json:"error,omitempty"`
	Location string          `json:"location,omitempty"`
	Duration string          `json:"duration,omitempty"`
	Node     *decoder.Node   `json:"node,omitempty"`
	Entries  []*decoder.Node `json:"entries,omitempty"`
}

func (r *Result) fail(data []byte, err error) {
	r.Error = err.Error()
	if loc := location.FromError(data, err); loc != nil {
		r.Location = loc.String()
	}
}

func decodeInput(ctx context.Context, dec *decoder.Decoder, name string, read func() ([]byte, error)) Result {
	result := Result{Resource: name}

	data, err := read()
	if err != nil {
		result.Error = fmt.Sprintf("failed to read input: %v", err)
		return result
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		result.Error = fmt.Sprintf("invalid JSON: %v", err)
		return result
	}

	start := time.Now()
	if rt, _ := raw["resourceType"].(string); rt == "Bundle" {
		entries, err := dec.DecodeBundle(ctx, raw)
		result.Duration = time.Since(start).Round(time.Microsecond).String()
		if err != nil {
			result.fail(data, err)
			return result
		}
		for _, e := range entries {
			result.Entries = append(result.Entries, e.Resource)
		}
		return result
	}

	node, err := dec.DecodeResource(ctx, raw)
	result.Duration = time.Since(start).Round(time.Microsecond).String()
	if err != nil {
		result.fail(data, err)
		return result
	}
	result.Node = node
	result.Title = title(node)
	return result
}
