package registry

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gofhir/fhirobject/pkg/logger"
)

const humanNameSD = `{
  "resourceType": "StructureDefinition",
  "url": "http://hl7.org/fhir/StructureDefinition/HumanName",
  "name": "HumanName",
  "kind": "complex-type",
  "type": "HumanName",
  "snapshot": {"element": [
    {"id": "HumanName", "path": "HumanName", "min": 0, "max": "*"},
    {"id": "HumanName.family", "path": "HumanName.family", "min": 0, "max": "1", "type": [{"code": "string"}]}
  ]}
}`

// tarball builds a gzipped tar archive of files.
func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeRegistry serves package metadata and tarballs.
type fakeRegistry struct {
	server    *httptest.Server
	packages  map[string]map[string][]byte // name -> version -> tarball
	latest    map[string]string
	downloads atomic.Int32
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	t.Helper()
	r := &fakeRegistry{
		packages: make(map[string]map[string][]byte),
		latest:   make(map[string]string),
	}
	r.server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.server.Close)
	return r
}

func (r *fakeRegistry) add(name, version string, archive []byte) {
	if r.packages[name] == nil {
		r.packages[name] = make(map[string][]byte)
	}
	r.packages[name][version] = archive
	r.latest[name] = version
}

func (r *fakeRegistry) serve(w http.ResponseWriter, req *http.Request) {
	parts := strings.Split(strings.TrimPrefix(req.URL.Path, "/"), "/")
	versions, ok := r.packages[parts[0]]
	if !ok {
		http.NotFound(w, req)
		return
	}

	if len(parts) == 3 && parts[1] == "-" {
		archive, ok := versions[strings.TrimSuffix(parts[2], ".tgz")]
		if !ok {
			http.NotFound(w, req)
			return
		}
		r.downloads.Add(1)
		_, _ = w.Write(archive)
		return
	}

	var entries []string
	for v := range versions {
		entries = append(entries, fmt.Sprintf(`%q: {"version": %q, "fhirVersion": "4.0.1", "dist": {"tarball": "%s/%s/-/%s.tgz"}}`,
			v, v, r.server.URL, parts[0], v))
	}
	fmt.Fprintf(w, `{"name": %q, "description": "test package", "dist-tags": {"latest": %q}, "versions": {%s}}`,
		parts[0], r.latest[parts[0]], strings.Join(entries, ","))
}

func newTestClient(t *testing.T, registryURL string) *Client {
	t.Helper()
	return NewClient(
		WithRegistryURL(registryURL+"/"),
		WithCacheDir(t.TempDir()),
		WithLogger(logger.New(&bytes.Buffer{}, logger.LevelNone)),
	)
}

func TestClient_GetPackageInfo(t *testing.T) {
	reg := newFakeRegistry(t)
	reg.add("example.fhir.ig", "1.0.0", tarball(t, map[string]string{"package/package.json": `{}`}))
	reg.add("example.fhir.ig", "1.1.0", tarball(t, map[string]string{"package/package.json": `{}`}))
	client := newTestClient(t, reg.server.URL)

	info, err := client.GetPackageInfo(context.Background(), "example.fhir.ig", VersionLatest)
	if err != nil {
		t.Fatalf("GetPackageInfo() error = %v", err)
	}
	if info.Version != "1.1.0" || info.FHIRVersion != "4.0.1" {
		t.Errorf("info = %+v; want version 1.1.0 for FHIR 4.0.1", info)
	}
	if !strings.HasSuffix(info.Tarball, "/example.fhir.ig/-/1.1.0.tgz") {
		t.Errorf("Tarball = %q", info.Tarball)
	}

	if _, err := client.GetPackageInfo(context.Background(), "example.fhir.ig", "9.9.9"); err == nil {
		t.Error("expected error for unknown version")
	}
	if _, err := client.GetPackageInfo(context.Background(), "missing.package", ""); err == nil {
		t.Error("expected error for unknown package")
	}
}

func TestClient_GetPackage(t *testing.T) {
	reg := newFakeRegistry(t)
	reg.add("example.fhir.ig", "1.0.0", tarball(t, map[string]string{
		"package/package.json":                       `{"name": "example.fhir.ig", "version": "1.0.0", "dependencies": {"hl7.fhir.r4.core": "4.0.1"}}`,
		"package/StructureDefinition-HumanName.json": humanNameSD,
	}))
	client := newTestClient(t, reg.server.URL)

	dir, err := client.GetPackage(context.Background(), "example.fhir.ig", "1.0.0")
	if err != nil {
		t.Fatalf("GetPackage() error = %v", err)
	}
	if dir != client.PackagePath("example.fhir.ig", "1.0.0") {
		t.Errorf("dir = %q; want the cache path", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "package", "StructureDefinition-HumanName.json")); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}

	manifest, err := client.ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if diff := cmp.Diff(map[string]string{"hl7.fhir.r4.core": "4.0.1"}, manifest.Dependencies); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}

	// A cached package is not downloaded again.
	if _, err := client.GetPackage(context.Background(), "example.fhir.ig", "1.0.0"); err != nil {
		t.Fatalf("second GetPackage() error = %v", err)
	}
	if n := reg.downloads.Load(); n != 1 {
		t.Errorf("downloads = %d; want 1", n)
	}

	cached, err := client.ListCachedPackages()
	if err != nil {
		t.Fatalf("ListCachedPackages() error = %v", err)
	}
	if diff := cmp.Diff([]string{"example.fhir.ig#1.0.0"}, cached); diff != "" {
		t.Errorf("cached packages mismatch (-want +got):\n%s", diff)
	}

	if err := client.ClearCache(); err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}
	if cached, _ := client.ListCachedPackages(); len(cached) != 0 {
		t.Errorf("cache not cleared: %v", cached)
	}
}

func TestClient_GetPackageRejectsTraversal(t *testing.T) {
	reg := newFakeRegistry(t)
	reg.add("evil.package", "1.0.0", tarball(t, map[string]string{
		"../../escaped.json": `{}`,
	}))
	client := newTestClient(t, reg.server.URL)

	_, err := client.GetPackage(context.Background(), "evil.package", "1.0.0")
	if err == nil || !strings.Contains(err.Error(), "invalid tar path") {
		t.Fatalf("GetPackage() error = %v; want invalid tar path", err)
	}
	if _, err := os.Stat(client.PackagePath("evil.package", "1.0.0")); !os.IsNotExist(err) {
		t.Error("partially extracted package left in the cache")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(client.CacheDir()), "escaped.json")); !os.IsNotExist(err) {
		t.Error("file written outside the package directory")
	}
}

func TestClient_ContentDir(t *testing.T) {
	flat := t.TempDir()
	if got := ContentDir(flat); got != flat {
		t.Errorf("ContentDir(flat) = %q; want %q", got, flat)
	}

	nested := t.TempDir()
	if err := os.Mkdir(filepath.Join(nested, "package"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := ContentDir(nested); got != filepath.Join(nested, "package") {
		t.Errorf("ContentDir(nested) = %q", got)
	}
}
