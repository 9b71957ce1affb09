package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/specialistvlad/buildbatch/internal/manifest"
)

// VendorSource supplies packages from a vendor directory laid out as
// <dir>/<name>-<version>/package.hcl.
type VendorSource struct {
	dir    string
	loader manifest.Loader
	ext    string

	mu    sync.Mutex
	cache map[string]*manifest.Package
}

// NewVendorSource creates a source over a vendor directory.
func NewVendorSource(dir string, loader manifest.Loader) (*VendorSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve vendor directory %s", dir)
	}
	return &VendorSource{
		dir:    filepath.Clean(abs),
		loader: loader,
		ext:    DefaultExtension,
		cache:  make(map[string]*manifest.Package),
	}, nil
}

// ID implements Source.
func (s *VendorSource) ID() manifest.SourceID {
	return manifest.NewSourceID(manifest.SourceVendor, s.dir)
}

// Versions lists the vendored versions of a package, sorted.
func (s *VendorSource) Versions(name string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read vendor directory %s", s.dir)
	}
	var versions []string
	prefix := name + "-"
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		v := strings.TrimPrefix(e.Name(), prefix)
		// "foo-bar-1.0.0" must not be taken as a version of "foo".
		if v == "" || v[0] < '0' || v[0] > '9' {
			continue
		}
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

// Load implements Source. Versions are matched exactly; with no version
// requested, the package must be vendored exactly once.
func (s *VendorSource) Load(ctx context.Context, name, version string) (*manifest.Package, error) {
	if version == "" {
		versions, err := s.Versions(name)
		if err != nil {
			return nil, err
		}
		switch len(versions) {
		case 0:
			return nil, fmt.Errorf("package %q is not vendored in %s", name, s.dir)
		case 1:
			version = versions[0]
		default:
			return nil, fmt.Errorf("package %q is vendored in several versions (%s), a version must be given", name, strings.Join(versions, ", "))
		}
	}

	key := name + "-" + version
	s.mu.Lock()
	defer s.mu.Unlock()
	if pkg, ok := s.cache[key]; ok {
		return pkg, nil
	}

	pkgDir := filepath.Join(s.dir, key)
	if _, err := os.Stat(pkgDir); err != nil {
		return nil, fmt.Errorf("package %s %s is not vendored in %s", name, version, s.dir)
	}
	pkg, err := s.loader.Load(ctx, pkgDir)
	if err != nil {
		return nil, err
	}
	if pkg.ID.Name != name || pkg.ID.Version != version {
		return nil, fmt.Errorf("vendored directory %s contains %s %s", pkgDir, pkg.ID.Name, pkg.ID.Version)
	}
	pkg.ID.Source = s.ID()
	s.cache[key] = pkg
	return pkg, nil
}

// Files implements Source.
func (s *VendorSource) Files(ctx context.Context, pkg *manifest.Package) ([]string, error) {
	return listFiles(pkg, s.ext)
}
