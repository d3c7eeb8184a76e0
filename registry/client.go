// Package registry provides a client for the FHIR Package Registry.
//
// The FHIR Package Registry (https://packages.fhir.org) hosts FHIR
// Implementation Guides and core packages. Their StructureDefinitions are the
// schemas the decoder loads, so a downloaded package can serve as a local
// schema origin (see PackageLoader).
package registry

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gofhir/fhirobject/pkg/logger"
)

const (
	// DefaultRegistryURL is the primary FHIR package registry.
	DefaultRegistryURL = "https://packages.fhir.org"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 60 * time.Second

	// DefaultCacheDir is the default location for cached packages, relative
	// to the user's home directory.
	DefaultCacheDir = ".fhir/packages"

	// VersionLatest represents the "latest" version tag.
	VersionLatest = "latest"

	// maxFileSize bounds each extracted file.
	maxFileSize = 100 << 20
)

// Client is a FHIR Package Registry client.
type Client struct {
	httpClient  *http.Client
	registryURL string
	cacheDir    string
	log         *logger.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithRegistryURL sets a custom registry URL.
func WithRegistryURL(url string) ClientOption {
	return func(c *Client) {
		c.registryURL = strings.TrimSuffix(url, "/")
	}
}

// WithCacheDir sets a custom cache directory.
func WithCacheDir(dir string) ClientOption {
	return func(c *Client) {
		c.cacheDir = dir
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ClientOption {
	return func(c *Client) {
		c.log = l.Named("registry")
	}
}

// NewClient creates a new registry client.
func NewClient(opts ...ClientOption) *Client {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		registryURL: DefaultRegistryURL,
		cacheDir:    filepath.Join(homeDir, DefaultCacheDir),
		log:         logger.Default().Named("registry"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PackageInfo describes one version of a package.
type PackageInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	FHIRVersion string `json:"fhirVersion"`
	Canonical   string `json:"canonical"`
	Tarball     string `json:"tarball"`
}

// PackageManifest is the package.json in a FHIR package.
type PackageManifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	FHIRVersions []string          `json:"fhirVersions"`
	Dependencies map[string]string `json:"dependencies"`
	Canonical    string            `json:"canonical"`
	Type         string            `json:"type"`
}

// metadata is the registry document listing every version of a package.
type metadata struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	DistTags    map[string]string `json:"dist-tags"`
	Versions    map[string]struct {
		Version     string `json:"version"`
		FHIRVersion string `json:"fhirVersion"`
		Canonical   string `json:"canonical"`
		URL         string `json:"url"`
		Dist        struct {
			Tarball string `json:"tarball"`
		} `json:"dist"`
	} `json:"versions"`
}

// GetPackageInfo retrieves metadata about a package version. An empty
// version or VersionLatest resolves through the package's dist-tags.
func (c *Client) GetPackageInfo(ctx context.Context, name, version string) (*PackageInfo, error) {
	meta, err := c.fetchMetadata(ctx, name)
	if err != nil {
		return nil, err
	}

	resolved := version
	if version == VersionLatest || version == "" {
		latest, ok := meta.DistTags[VersionLatest]
		if !ok {
			return nil, fmt.Errorf("no latest version found for package %s", name)
		}
		resolved = latest
	}

	v, ok := meta.Versions[resolved]
	if !ok {
		return nil, fmt.Errorf("version %s not found for package %s", resolved, name)
	}

	info := &PackageInfo{
		Name:        name,
		Version:     resolved,
		Description: meta.Description,
		FHIRVersion: v.FHIRVersion,
		Canonical:   v.Canonical,
		Tarball:     v.Dist.Tarball,
	}
	if info.Tarball == "" {
		info.Tarball = v.URL
	}
	return info, nil
}

func (c *Client) fetchMetadata(ctx context.Context, name string) (*metadata, error) {
	body, err := c.get(ctx, c.registryURL+"/"+name)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", name, err)
	}
	defer body.Close()

	var meta metadata
	if err := json.NewDecoder(body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode package info for %s: %w", name, err)
	}
	return &meta, nil
}

func (c *Client) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.log.Debug("GET %s", url)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

// GetPackage ensures a package is available in the cache directory,
// downloading and extracting it if needed, and returns its path.
func (c *Client) GetPackage(ctx context.Context, name, version string) (string, error) {
	if version != "" && version != VersionLatest {
		if dir := c.PackagePath(name, version); isPackageCached(dir) {
			return dir, nil
		}
	}

	info, err := c.GetPackageInfo(ctx, name, version)
	if err != nil {
		return "", err
	}

	dir := c.PackagePath(name, info.Version)
	if isPackageCached(dir) {
		return dir, nil
	}
	if info.Tarball == "" {
		return "", fmt.Errorf("no download URL found for %s#%s", name, info.Version)
	}

	c.log.Info("downloading %s#%s", name, info.Version)
	body, err := c.get(ctx, info.Tarball)
	if err != nil {
		return "", fmt.Errorf("failed to download package %s#%s: %w", name, info.Version, err)
	}
	defer body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := extractTarGz(body, dir); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("failed to extract package %s#%s: %w", name, info.Version, err)
	}
	return dir, nil
}

// ReadManifest reads the package.json of an extracted package.
func (c *Client) ReadManifest(packageDir string) (*PackageManifest, error) {
	data, err := os.ReadFile(filepath.Join(ContentDir(packageDir), "package.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}

	var manifest PackageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}
	return &manifest, nil
}

// ListCachedPackages returns the sorted "name#version" directories in the cache.
func (c *Client) ListCachedPackages() ([]string, error) {
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var packages []string
	for _, entry := range entries {
		if entry.IsDir() {
			packages = append(packages, entry.Name())
		}
	}
	sort.Strings(packages)
	return packages, nil
}

// ClearCache removes all cached packages.
func (c *Client) ClearCache() error {
	return os.RemoveAll(c.cacheDir)
}

// CacheDir returns the cache directory path.
func (c *Client) CacheDir() string {
	return c.cacheDir
}

// PackagePath returns the cache location of a package version.
func (c *Client) PackagePath(name, version string) string {
	safeName := strings.ReplaceAll(name, "/", "-")
	return filepath.Join(c.cacheDir, safeName+"#"+version)
}

// ContentDir returns the directory holding a package's resources: the
// "package" subdirectory of npm tarballs when present.
func ContentDir(packageDir string) string {
	sub := filepath.Join(packageDir, "package")
	if info, err := os.Stat(sub); err == nil && info.IsDir() {
		return sub
	}
	return packageDir
}

func isPackageCached(packageDir string) bool {
	_, err := os.Stat(filepath.Join(ContentDir(packageDir), "package.json"))
	return err == nil
}

// extractTarGz extracts a tar.gz archive into destDir. Entries resolving
// outside destDir are rejected.
func extractTarGz(r io.Reader, destDir string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	root := filepath.Clean(destDir) + string(os.PathSeparator)
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		target := filepath.Join(destDir, header.Name) //nolint:gosec // G305: checked against root below
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("invalid tar path: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return err
			}
		}
	}
}

func writeFile(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, io.LimitReader(r, maxFileSize)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	return f.Close()
}
