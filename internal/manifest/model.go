package manifest

import (
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
)

// PackageID uniquely identifies a resolved package across every request in
// a batch. It is comparable and safe to use as a map key.
type PackageID struct {
	Name    string
	Version string
	Source  SourceID
}

// String renders the identity the way the build tool reports it, e.g.
// "foo 0.1.0 (path+/src/foo)".
func (id PackageID) String() string {
	return fmt.Sprintf("%s %s (%s)", id.Name, id.Version, id.Source)
}

// Package is one loaded package manifest.
type Package struct {
	ID           PackageID
	ManifestPath string
	// Root is the directory containing the manifest. Target source paths
	// are relative to it.
	Root         string
	Targets      []Target
	Dependencies []Dependency
	// Features maps a feature name to the features (or optional
	// dependencies) it enables.
	Features map[string][]string
}

// Target returns the first target of the given kind and name.
func (p *Package) Target(kind TargetKind, name string) (Target, bool) {
	for _, t := range p.Targets {
		if t.Kind == kind && t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// Lib returns the package's library target, if it has one.
func (p *Package) Lib() (Target, bool) {
	for _, t := range p.Targets {
		if t.Kind == TargetLib {
			return t, true
		}
	}
	return Target{}, false
}

// TargetsOfKind returns every target of the given kind in declaration order.
func (p *Package) TargetsOfKind(kind TargetKind) []Target {
	var out []Target
	for _, t := range p.Targets {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// HasFeature reports whether the package declares the named feature or an
// optional dependency of that name.
func (p *Package) HasFeature(name string) bool {
	if _, ok := p.Features[name]; ok {
		return true
	}
	return slices.ContainsFunc(p.Dependencies, func(d Dependency) bool {
		return d.Optional && d.Name == name
	})
}

// TargetKind distinguishes the kinds of compilable targets a package has.
type TargetKind string

const (
	TargetLib     TargetKind = "lib"
	TargetBin     TargetKind = "bin"
	TargetExample TargetKind = "example"
	TargetTest    TargetKind = "test"
	TargetBench   TargetKind = "bench"
)

// ParseTargetKind validates a target kind label from a manifest.
func ParseTargetKind(s string) (TargetKind, error) {
	switch k := TargetKind(s); k {
	case TargetLib, TargetBin, TargetExample, TargetTest, TargetBench:
		return k, nil
	}
	return "", fmt.Errorf("unknown target kind %q", s)
}

// Target is a single compilable artifact declared by a package.
type Target struct {
	Kind    TargetKind
	Name    string
	SrcPath string
	// ProcMacro marks a library that is loaded by the compiler itself and
	// therefore always built for the host platform.
	ProcMacro bool
}

// Dependency is a dependency declaration as written in a manifest.
type Dependency struct {
	// Name is the package name of the dependency.
	Name string
	// Path is set for path dependencies, relative to the declaring manifest.
	Path string
	// Version is set for vendored dependencies and must match exactly.
	Version         string
	Features        []string
	DefaultFeatures bool
	Optional        bool
	// ExternName is the name the dependent uses for this crate, if renamed.
	ExternName string
	// When is an optional condition evaluated against the target platform's
	// cfg values. A nil expression means the dependency always applies.
	When hcl.Expression
}

// Extern returns the name under which the dependent links the dependency.
func (d Dependency) Extern() string {
	if d.ExternName != "" {
		return d.ExternName
	}
	return d.Name
}
