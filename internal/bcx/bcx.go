// Package bcx defines the BuildContext, the fully resolved plan of one build
// request: the unit graph, the roots the user asked for, and everything the
// build runner needs to compile them.
//
// A BuildContext is produced once by the workspace resolver and consumed
// once by the batch merger. It is not safe for concurrent mutation.
package bcx

import (
	"maps"
	"slices"

	"github.com/specialistvlad/buildbatch/internal/pkgset"
	"github.com/specialistvlad/buildbatch/internal/target"
	"github.com/specialistvlad/buildbatch/internal/unit"
	"github.com/specialistvlad/buildbatch/internal/unitgraph"
)

// BuildContext is the resolved plan of a build request, or of several once
// merged.
type BuildContext struct {
	// Request labels the originating request, e.g. "#1 check".
	Request string

	UnitGraph unitgraph.Graph
	// Roots are the units the user asked for, in request order, without
	// duplicates.
	Roots []*unit.Unit
	// ExportDirs maps a root to the directory its artifacts are copied to.
	ExportDirs map[*unit.Unit]string
	// Kinds are the platforms requested, without duplicates.
	Kinds      []unit.CompileKind
	TargetData *target.Data
	Packages   *pkgset.Set
	// ExtraCompilerArgs are appended to the compiler invocation of a unit.
	ExtraCompilerArgs map[*unit.Unit][]string
	// Uplift copies root artifacts to the profile directory after the build.
	Uplift bool
}

// New returns an empty context with every map allocated.
func New(request string) *BuildContext {
	return &BuildContext{
		Request:           request,
		UnitGraph:         unitgraph.New(),
		ExportDirs:        make(map[*unit.Unit]string),
		TargetData:        target.NewData(),
		Packages:          pkgset.New(),
		ExtraCompilerArgs: make(map[*unit.Unit][]string),
	}
}

// AddRoots appends roots that are not already present.
func (b *BuildContext) AddRoots(roots ...*unit.Unit) {
	b.Roots = AppendUnique(b.Roots, roots...)
}

// AddKinds appends compile kinds that are not already present.
func (b *BuildContext) AddKinds(kinds ...unit.CompileKind) {
	b.Kinds = AppendUnique(b.Kinds, kinds...)
}

// IsRoot reports whether u is one of the roots.
func (b *BuildContext) IsRoot(u *unit.Unit) bool {
	return slices.Contains(b.Roots, u)
}

// Clone returns a copy that shares no mutable containers with b. Units and
// packages themselves are immutable and are shared.
func (b *BuildContext) Clone() *BuildContext {
	c := &BuildContext{
		Request:           b.Request,
		UnitGraph:         b.UnitGraph.Clone(),
		Roots:             slices.Clone(b.Roots),
		ExportDirs:        maps.Clone(b.ExportDirs),
		Kinds:             slices.Clone(b.Kinds),
		TargetData:        b.TargetData.Clone(),
		ExtraCompilerArgs: maps.Clone(b.ExtraCompilerArgs),
		Uplift:            b.Uplift,
	}
	if b.Packages != nil {
		c.Packages = b.Packages.Clone()
	} else {
		c.Packages = pkgset.New()
	}
	if c.UnitGraph == nil {
		c.UnitGraph = unitgraph.New()
	}
	if c.ExportDirs == nil {
		c.ExportDirs = make(map[*unit.Unit]string)
	}
	if c.ExtraCompilerArgs == nil {
		c.ExtraCompilerArgs = make(map[*unit.Unit][]string)
	}
	return c
}

// Validate checks the unit graph is acyclic and total over the roots.
func (b *BuildContext) Validate() error {
	return b.UnitGraph.Validate(b.Roots)
}

// AppendUnique appends the items of add that s does not contain yet,
// keeping first-seen order.
func AppendUnique[T comparable](s []T, add ...T) []T {
	for _, v := range add {
		if !slices.Contains(s, v) {
			s = append(s, v)
		}
	}
	return s
}
