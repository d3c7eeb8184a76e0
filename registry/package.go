package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// PackageRef identifies a package version.
type PackageRef struct {
	Name    string
	Version string
}

// CorePackage is the FHIR R4 core package, which holds the base definitions
// of every resource and data type.
var CorePackage = PackageRef{Name: "hl7.fhir.r4.core", Version: "4.0.1"}

// ParsePackageRef parses "name#version" or "name@version". A bare name
// refers to the latest version.
func ParsePackageRef(s string) (PackageRef, error) {
	s = strings.TrimSpace(s)
	name, version, found := strings.Cut(s, "#")
	if !found {
		name, version, _ = strings.Cut(s, "@")
	}
	if name == "" {
		return PackageRef{}, fmt.Errorf("invalid package reference %q", s)
	}
	if version == "" {
		version = VersionLatest
	}
	return PackageRef{Name: name, Version: version}, nil
}

// String returns the package reference as "name#version".
func (p PackageRef) String() string {
	if p.Version == "" || p.Version == VersionLatest {
		return p.Name
	}
	return p.Name + "#" + p.Version
}

// Resolver downloads packages together with their dependencies.
type Resolver struct {
	client *Client
}

// NewResolver creates a new package resolver.
func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve downloads refs and, transitively, the dependencies named in their
// manifests. It returns the package directories, dependencies after the
// packages that need them. A dependency that cannot be fetched is logged and
// skipped; a requested package that cannot be fetched fails the call.
func (r *Resolver) Resolve(ctx context.Context, refs ...PackageRef) ([]string, error) {
	seen := make(map[string]bool)
	var dirs []string

	queue := make([]PackageRef, len(refs))
	copy(queue, refs)
	requested := len(refs)

	for i := 0; i < len(queue); i++ {
		ref := queue[i]
		if seen[ref.Name] {
			continue
		}
		seen[ref.Name] = true

		dir, err := r.client.GetPackage(ctx, ref.Name, ref.Version)
		if err != nil {
			if i < requested {
				return nil, fmt.Errorf("failed to get package %s: %w", ref, err)
			}
			r.client.log.Warn("skipping dependency %s: %v", ref, err)
			continue
		}
		dirs = append(dirs, dir)

		manifest, err := r.client.ReadManifest(dir)
		if err != nil {
			continue
		}
		for _, name := range sortedKeys(manifest.Dependencies) {
			queue = append(queue, PackageRef{Name: name, Version: manifest.Dependencies[name]})
		}
	}
	return dirs, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
