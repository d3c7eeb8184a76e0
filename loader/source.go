package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/gofhir/fhir/r4"

	fo "github.com/gofhir/fhirobject"
	"github.com/gofhir/fhirobject/pkg/logger"
	"github.com/gofhir/fhirobject/schema"
)

// CanonicalBase is the canonical URL prefix of the core FHIR definitions.
const CanonicalBase = "http://hl7.org/fhir/StructureDefinition/"

// InMemorySource serves schemas loaded from StructureDefinition documents.
// Definitions are indexed by URL; only the base definition of a type (the one
// at CanonicalBase + type) is indexed by type, so profiles never shadow it.
type InMemorySource struct {
	mu        sync.RWMutex
	byURL     map[string]*schema.Schema
	byType    map[string]*schema.Schema
	converter *R4Converter
	log       *logger.Logger
}

// NewInMemorySource creates an empty source.
func NewInMemorySource() *InMemorySource {
	return &InMemorySource{
		byURL:     make(map[string]*schema.Schema),
		byType:    make(map[string]*schema.Schema),
		converter: NewR4Converter(),
		log:       logger.Default().Named("loader"),
	}
}

// SetLogger replaces the source's logger.
func (s *InMemorySource) SetLogger(l *logger.Logger) {
	s.log = l.Named("loader")
}

// Add indexes a schema.
func (s *InMemorySource) Add(sc *schema.Schema) error {
	if sc == nil {
		return fmt.Errorf("schema is nil")
	}
	if sc.URL == "" && sc.TypeName() == "" {
		return fmt.Errorf("schema has neither url nor type")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sc.URL != "" {
		s.byURL[sc.URL] = sc
	}
	if isBaseDefinition(sc) {
		s.byType[sc.TypeName()] = sc
	}
	return nil
}

// AddR4 converts and indexes an R4 StructureDefinition.
func (s *InMemorySource) AddR4(sd *r4.StructureDefinition) error {
	if sd == nil {
		return fmt.Errorf("structure definition is nil")
	}
	return s.Add(s.converter.Convert(sd))
}

// FetchSchema implements schema.Fetcher. Types without a loaded base
// definition yield a *fo.SchemaNotFoundError.
func (s *InMemorySource) FetchSchema(ctx context.Context, typeName string) (*schema.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if sc, ok := s.byType[typeName]; ok {
		return sc, nil
	}
	// Types such as SimpleQuantity are profiles published at the canonical
	// base with a different type.
	if sc, ok := s.byURL[CanonicalBase+typeName]; ok {
		return sc, nil
	}
	return nil, &fo.SchemaNotFoundError{TypeName: typeName, Reason: "no definition loaded"}
}

// FetchByURL returns the schema loaded under a canonical URL.
func (s *InMemorySource) FetchByURL(ctx context.Context, url string) (*schema.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.byURL[url]
	if !ok {
		return nil, &fo.SchemaNotFoundError{TypeName: url, Reason: "no definition loaded"}
	}
	return sc, nil
}

// Count returns the number of loaded definitions.
func (s *InMemorySource) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURL)
}

// Types returns the sorted names of the types with a base definition.
func (s *InMemorySource) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.byType))
	for t := range s.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Clear removes all loaded definitions.
func (s *InMemorySource) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byURL = make(map[string]*schema.Schema)
	s.byType = make(map[string]*schema.Schema)
}

// LoadJSON loads a StructureDefinition or every StructureDefinition of a
// Bundle and returns how many were loaded.
func (s *InMemorySource) LoadJSON(data []byte) (int, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("invalid JSON: %w", err)
	}

	switch probe.ResourceType {
	case "Bundle":
		return s.loadBundle(data)
	case "StructureDefinition":
		if err := s.loadStructureDefinition(data); err != nil {
			return 0, err
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported resourceType %q", probe.ResourceType)
	}
}

func (s *InMemorySource) loadStructureDefinition(data []byte) error {
	var sd r4.StructureDefinition
	if err := json.Unmarshal(data, &sd); err != nil {
		return fmt.Errorf("failed to parse StructureDefinition: %w", err)
	}
	return s.AddR4(&sd)
}

func (s *InMemorySource) loadBundle(data []byte) (int, error) {
	var bundle struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return 0, fmt.Errorf("failed to parse Bundle: %w", err)
	}

	count := 0
	for i, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			continue
		}

		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &probe); err != nil || probe.ResourceType != "StructureDefinition" {
			continue
		}

		if err := s.loadStructureDefinition(entry.Resource); err != nil {
			s.log.Warn("skipping bundle entry %d: %v", i, err)
			continue
		}
		count++
	}
	return count, nil
}

// LoadFile loads the StructureDefinitions of a JSON file.
func (s *InMemorySource) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	n, err := s.LoadJSON(data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// LoadDirectory loads every JSON file under dir, recursively. Files that are
// not StructureDefinitions or Bundles are skipped.
func (s *InMemorySource) LoadDirectory(dir string) (int, error) {
	total, skipped := 0, 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		n, err := s.LoadFile(path)
		if err != nil {
			s.log.Debug("skipping %v", err)
			skipped++
			return nil
		}
		total += n
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	s.log.Info("loaded %d definitions from %s (%d files skipped)", total, dir, skipped)
	return total, nil
}

// LoadPaths loads each path as a directory or a file.
func (s *InMemorySource) LoadPaths(paths ...string) (int, error) {
	total := 0
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return total, err
		}

		var n int
		if info.IsDir() {
			n, err = s.LoadDirectory(path)
		} else {
			n, err = s.LoadFile(path)
		}
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func isBaseDefinition(sc *schema.Schema) bool {
	typeName := sc.TypeName()
	if typeName == "" {
		return false
	}
	if sc.URL == "" {
		return true
	}
	return sc.URL == CanonicalBase+typeName
}

var _ schema.Fetcher = (*InMemorySource)(nil)
