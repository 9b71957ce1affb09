package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/specialistvlad/buildbatch/internal/fsutil"
	"github.com/specialistvlad/buildbatch/internal/manifest"
)

// PathSource supplies the single package found in a local directory.
type PathSource struct {
	dir    string
	loader manifest.Loader
	ext    string

	once sync.Once
	pkg  *manifest.Package
	err  error
}

// NewPathSource creates a source for the package rooted at dir.
func NewPathSource(dir string, loader manifest.Loader) (*PathSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve path source %s", dir)
	}
	return &PathSource{dir: filepath.Clean(abs), loader: loader, ext: DefaultExtension}, nil
}

// ID implements Source.
func (s *PathSource) ID() manifest.SourceID {
	return manifest.NewSourceID(manifest.SourcePath, s.dir)
}

// Dir returns the package directory.
func (s *PathSource) Dir() string {
	return s.dir
}

// Load implements Source. The manifest is read once and cached.
func (s *PathSource) Load(ctx context.Context, name, version string) (*manifest.Package, error) {
	s.once.Do(func() {
		pkg, err := s.loader.Load(ctx, s.dir)
		if err != nil {
			s.err = err
			return
		}
		pkg.ID.Source = s.ID()
		s.pkg = pkg
	})
	if s.err != nil {
		return nil, s.err
	}
	if name != "" && s.pkg.ID.Name != name {
		return nil, fmt.Errorf("package at %s is named %q, expected %q", s.dir, s.pkg.ID.Name, name)
	}
	if version != "" && s.pkg.ID.Version != version {
		return nil, fmt.Errorf("package %q at %s has version %s, expected %s", name, s.dir, s.pkg.ID.Version, version)
	}
	return s.pkg, nil
}

// Files implements Source.
func (s *PathSource) Files(ctx context.Context, pkg *manifest.Package) ([]string, error) {
	return listFiles(pkg, s.ext)
}

func listFiles(pkg *manifest.Package, ext string) ([]string, error) {
	files, err := fsutil.FindFilesByExtension(pkg.Root, ext)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list sources of %s", pkg.ID)
	}
	return files, nil
}
