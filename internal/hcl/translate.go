// This file contains the logic for translating the HCL schema structs into
// the format-agnostic manifest model.

package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/buildbatch/internal/ctxlog"
	"github.com/specialistvlad/buildbatch/internal/manifest"
)

// Conventional source locations used when a package declares no targets.
const (
	defaultLibPath = "src/lib.rs"
	defaultBinPath = "src/main.rs"
)

// translatePackage converts a decoded package block into the manifest model.
func (l *Loader) translatePackage(ctx context.Context, b *packageBlock, file string) (*manifest.Package, error) {
	logger := ctxlog.FromContext(ctx).With("package", b.Name)

	if b.Name == "" {
		return nil, fmt.Errorf("package name cannot be empty")
	}
	if b.Version == "" {
		return nil, fmt.Errorf("package %q: version cannot be empty", b.Name)
	}

	root := filepath.Dir(file)
	pkg := &manifest.Package{
		ID:           manifest.PackageID{Name: b.Name, Version: b.Version},
		ManifestPath: file,
		Root:         root,
		Features:     make(map[string][]string),
	}

	seenTargets := make(map[string]struct{})
	for _, t := range b.Targets {
		target, err := translateTarget(t)
		if err != nil {
			return nil, fmt.Errorf("package %q: %w", b.Name, err)
		}
		key := string(target.Kind) + "/" + target.Name
		if _, dup := seenTargets[key]; dup {
			return nil, fmt.Errorf("package %q: duplicate %s target %q", b.Name, target.Kind, target.Name)
		}
		seenTargets[key] = struct{}{}
		pkg.Targets = append(pkg.Targets, target)
	}

	if len(pkg.Targets) == 0 {
		pkg.Targets = inferTargets(b.Name, root)
		logger.Debug("No targets declared, inferred from layout.", "count", len(pkg.Targets))
	}
	if len(pkg.Targets) == 0 {
		return nil, fmt.Errorf("package %q declares no targets and has neither %s nor %s", b.Name, defaultLibPath, defaultBinPath)
	}

	seenDeps := make(map[string]struct{})
	for _, d := range b.Dependencies {
		dep, err := translateDependency(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("package %q: %w", b.Name, err)
		}
		if _, dup := seenDeps[dep.Extern()]; dup {
			return nil, fmt.Errorf("package %q: dependency %q declared twice", b.Name, dep.Extern())
		}
		seenDeps[dep.Extern()] = struct{}{}
		pkg.Dependencies = append(pkg.Dependencies, dep)
	}

	for _, f := range b.Features {
		if _, dup := pkg.Features[f.Name]; dup {
			return nil, fmt.Errorf("package %q: feature %q declared twice", b.Name, f.Name)
		}
		pkg.Features[f.Name] = f.Enables
	}
	for name, enables := range pkg.Features {
		for _, e := range enables {
			dep, _, _ := strings.Cut(e, "/")
			if !pkg.HasFeature(dep) && !hasDependency(pkg, dep) {
				return nil, fmt.Errorf("package %q: feature %q enables unknown feature or dependency %q", b.Name, name, e)
			}
		}
	}

	return pkg, nil
}

func translateTarget(t *targetBlock) (manifest.Target, error) {
	kind, err := manifest.ParseTargetKind(t.Kind)
	if err != nil {
		return manifest.Target{}, err
	}
	if t.Name == "" {
		return manifest.Target{}, fmt.Errorf("%s target name cannot be empty", kind)
	}
	if t.ProcMacro && kind != manifest.TargetLib {
		return manifest.Target{}, fmt.Errorf("%s target %q: only lib targets can be proc macros", kind, t.Name)
	}
	src := t.Path
	if src == "" {
		src = defaultTargetPath(kind, t.Name)
	}
	return manifest.Target{
		Kind:      kind,
		Name:      t.Name,
		SrcPath:   filepath.ToSlash(src),
		ProcMacro: t.ProcMacro,
	}, nil
}

func translateDependency(ctx context.Context, d *dependencyBlock) (manifest.Dependency, error) {
	if d.Name == "" {
		return manifest.Dependency{}, fmt.Errorf("dependency name cannot be empty")
	}
	if d.Path == "" && d.Version == "" {
		return manifest.Dependency{}, fmt.Errorf("dependency %q must set either path or version", d.Name)
	}
	if d.Path != "" && d.Version != "" {
		return manifest.Dependency{}, fmt.Errorf("dependency %q sets both path and version", d.Name)
	}

	dep := manifest.Dependency{
		Name:            d.Name,
		Path:            d.Path,
		Version:         d.Version,
		Features:        d.Features,
		DefaultFeatures: true,
		Optional:        d.Optional,
		ExternName:      d.Rename,
	}
	if d.DefaultFeatures != nil {
		dep.DefaultFeatures = *d.DefaultFeatures
	}
	if isExprDefined(ctx, d.When, "when") {
		dep.When = d.When
	}
	return dep, nil
}

// inferTargets mirrors the conventional layout: src/lib.rs is the library,
// src/main.rs is a binary named after the package.
func inferTargets(pkgName, root string) []manifest.Target {
	var targets []manifest.Target
	if fileExists(filepath.Join(root, defaultLibPath)) {
		targets = append(targets, manifest.Target{
			Kind:    manifest.TargetLib,
			Name:    libName(pkgName),
			SrcPath: defaultLibPath,
		})
	}
	if fileExists(filepath.Join(root, defaultBinPath)) {
		targets = append(targets, manifest.Target{
			Kind:    manifest.TargetBin,
			Name:    pkgName,
			SrcPath: defaultBinPath,
		})
	}
	return targets
}

func defaultTargetPath(kind manifest.TargetKind, name string) string {
	switch kind {
	case manifest.TargetLib:
		return defaultLibPath
	case manifest.TargetBin:
		return "src/bin/" + name + ".rs"
	case manifest.TargetExample:
		return "examples/" + name + ".rs"
	case manifest.TargetTest:
		return "tests/" + name + ".rs"
	default:
		return "benches/" + name + ".rs"
	}
}

// libName is the crate name used for a library: dashes are not allowed.
func libName(pkgName string) string {
	return strings.ReplaceAll(pkgName, "-", "_")
}

func hasDependency(pkg *manifest.Package, name string) bool {
	for _, d := range pkg.Dependencies {
		if d.Name == name || d.Extern() == name {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// isExprDefined checks if an HCL expression was actually present in the source
// code. The decoder populates omitted optional expression fields with
// zero-width placeholder expressions, so a nil check is insufficient.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	defined := r.End.Byte > r.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName,
		"hcl_range", r.String(),
		"is_defined", defined,
	)
	return defined
}
