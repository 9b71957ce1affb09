package hcl

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/specialistvlad/buildbatch/internal/ctxlog"
	"github.com/specialistvlad/buildbatch/internal/manifest"
)

// ManifestFileName is the file a package directory must contain.
const ManifestFileName = "package.hcl"

// Loader is the HCL-specific implementation of the manifest.Loader interface.
// It is safe for concurrent use; every Load call gets its own parser.
type Loader struct{}

// NewLoader creates a new HCL manifest loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ manifest.Loader = (*Loader)(nil)

// Load parses the manifest at path. The path may point at a manifest file or
// at a directory containing package.hcl.
func (l *Loader) Load(ctx context.Context, path string) (*manifest.Package, error) {
	logger := ctxlog.FromContext(ctx)

	file, err := resolveManifestPath(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loading package manifest.", "path", file)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(file)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to parse manifest %s", file)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to decode manifest %s", file)
	}

	switch len(root.Packages) {
	case 0:
		return nil, errors.Errorf("manifest %s declares no package block", file)
	case 1:
	default:
		return nil, errors.Errorf("manifest %s declares %d package blocks, expected exactly one", file, len(root.Packages))
	}

	pkg, err := l.translatePackage(ctx, root.Packages[0], file)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid manifest %s", file)
	}
	logger.Debug("Package manifest loaded.",
		"package", pkg.ID.Name,
		"version", pkg.ID.Version,
		"targets", len(pkg.Targets),
		"dependencies", len(pkg.Dependencies),
	)
	return pkg, nil
}

// resolveManifestPath turns a file or directory path into an absolute
// manifest file path.
func resolveManifestPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve manifest path %s", path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.Wrapf(err, "failed to access manifest path %s", path)
	}
	if info.IsDir() {
		abs = filepath.Join(abs, ManifestFileName)
		if _, err := os.Stat(abs); err != nil {
			return "", errors.Wrapf(err, "no %s in %s", ManifestFileName, path)
		}
	}
	return abs, nil
}
