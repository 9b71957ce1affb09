// Package pkgset holds the resolved packages of a build together with the
// source registry able to supply their files.
package pkgset

import (
	"sort"

	"github.com/specialistvlad/buildbatch/internal/manifest"
	"github.com/specialistvlad/buildbatch/internal/source"
)

// Set is the resolved package set of a build context.
type Set struct {
	Packages map[manifest.PackageID]*manifest.Package
	Sources  *source.Map
}

// New creates an empty package set.
func New() *Set {
	return &Set{
		Packages: make(map[manifest.PackageID]*manifest.Package),
		Sources:  source.NewMap(),
	}
}

// Add records a resolved package.
func (s *Set) Add(pkg *manifest.Package) {
	s.Packages[pkg.ID] = pkg
}

// Get returns the package with the given identity.
func (s *Set) Get(id manifest.PackageID) (*manifest.Package, bool) {
	pkg, ok := s.Packages[id]
	return pkg, ok
}

// IDs returns every package identity, sorted by name, version and source.
func (s *Set) IDs() []manifest.PackageID {
	ids := make([]manifest.PackageID, 0, len(s.Packages))
	for id := range s.Packages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Source < b.Source
	})
	return ids
}

// Clone returns a copy that can be extended without touching s.
func (s *Set) Clone() *Set {
	out := &Set{
		Packages: make(map[manifest.PackageID]*manifest.Package, len(s.Packages)),
		Sources:  s.Sources.Clone(),
	}
	for id, pkg := range s.Packages {
		out.Packages[id] = pkg
	}
	return out
}

// Extend absorbs other's packages and sources. A package present in both
// sets is expected to be the same resolved package; the entry from other
// is kept.
func (s *Set) Extend(other *Set) {
	if other == nil {
		return
	}
	for id, pkg := range other.Packages {
		s.Packages[id] = pkg
	}
	s.Sources.AddMap(other.Sources)
}
