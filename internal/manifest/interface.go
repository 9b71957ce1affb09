package manifest

import "context"

// Loader is the interface for a format-specific package manifest loader.
type Loader interface {
	// Load reads the manifest at the given path (a manifest file or a
	// directory containing one) and translates it into a Package. The
	// returned package's Source is left empty; the caller decides which
	// source the package belongs to.
	Load(ctx context.Context, manifestPath string) (*Package, error)
}
