package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofhir/fhirobject/loader"
	"github.com/gofhir/fhirobject/worker"
)

// LoadStats contains statistics about package loading.
type LoadStats struct {
	StructureDefinitions int64
	Errors               int64
	PackagesLoaded       int
}

// PackageLoader loads the StructureDefinitions of extracted packages into an
// in-memory schema source.
type PackageLoader struct {
	source  *loader.InMemorySource
	workers int
}

// NewPackageLoader creates a package loader reading files on workers
// goroutines (runtime.NumCPU() when workers <= 0).
func NewPackageLoader(source *loader.InMemorySource, workers int) *PackageLoader {
	return &PackageLoader{source: source, workers: workers}
}

// LoadPackage loads every StructureDefinition-*.json file of a package.
// Files that fail to parse are counted in Errors and skipped.
func (l *PackageLoader) LoadPackage(ctx context.Context, packageDir string) (*LoadStats, error) {
	contentDir := ContentDir(packageDir)
	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "StructureDefinition-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		files = append(files, filepath.Join(contentDir, name))
	}

	stats := &LoadStats{PackagesLoaded: 1}
	pool := worker.NewPool(func(_ context.Context, path string) (struct{}, error) {
		n, err := l.source.LoadFile(path)
		if err != nil {
			atomic.AddInt64(&stats.Errors, 1)
			return struct{}{}, nil
		}
		atomic.AddInt64(&stats.StructureDefinitions, int64(n))
		return struct{}{}, nil
	}, l.workers)

	if _, err := pool.Run(ctx, files); err != nil {
		return nil, err
	}
	return stats, nil
}

// LoadPackages loads several packages in order.
func (l *PackageLoader) LoadPackages(ctx context.Context, packageDirs ...string) (*LoadStats, error) {
	total := &LoadStats{}
	for _, dir := range packageDirs {
		stats, err := l.LoadPackage(ctx, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to load package %s: %w", dir, err)
		}
		total.StructureDefinitions += stats.StructureDefinitions
		total.Errors += stats.Errors
		total.PackagesLoaded += stats.PackagesLoaded
	}
	return total, nil
}
