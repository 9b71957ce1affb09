// Package source implements the places packages are supplied from and the
// source registry that maps a SourceID to the Source able to supply it.
package source

import (
	"context"

	"github.com/specialistvlad/buildbatch/internal/manifest"
)

// DefaultExtension is the file extension of compilable source files.
const DefaultExtension = ".rs"

// Source can load packages from one location and list their input files.
type Source interface {
	// ID returns the identifier stamped onto every package this source loads.
	ID() manifest.SourceID
	// Load returns the package with the given name. An empty version accepts
	// any version as long as the choice is unambiguous.
	Load(ctx context.Context, name, version string) (*manifest.Package, error)
	// Files lists the source files of a package loaded from this source.
	Files(ctx context.Context, pkg *manifest.Package) ([]string, error)
}
