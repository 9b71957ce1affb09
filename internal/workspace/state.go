package workspace

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/buildbatch/internal/bcx"
	"github.com/specialistvlad/buildbatch/internal/ctxlog"
	"github.com/specialistvlad/buildbatch/internal/manifest"
	"github.com/specialistvlad/buildbatch/internal/target"
	"github.com/specialistvlad/buildbatch/internal/unit"
	"github.com/specialistvlad/buildbatch/internal/unitgraph"
	"github.com/zclconf/go-cty/cty"
)

// state is the scratch space of one resolution.
type state struct {
	r       *Resolver
	req     Request
	profile unit.Profile
	kinds   []unit.CompileKind
	infos   map[unit.CompileKind]target.Info

	pkgs     map[manifest.PackageID]*manifest.Package
	order    []*manifest.Package
	features map[*manifest.Package]map[string]bool
	// buildKinds are the platforms each package is compiled for. Packages
	// reached through a proc macro are compiled for the host.
	buildKinds map[*manifest.Package][]unit.CompileKind
	// depFeatures holds "dep/feature" enables: package -> dep name -> features.
	depFeatures map[*manifest.Package]map[string][]string
	resolved    map[*manifest.Package]map[string]*manifest.Package

	graph    unitgraph.Graph
	visiting map[*unit.Unit]bool
}

func newState(r *Resolver, req Request, profile unit.Profile) *state {
	return &state{
		r:           r,
		req:         req,
		profile:     profile,
		kinds:       req.kinds(),
		infos:       make(map[unit.CompileKind]target.Info),
		pkgs:        make(map[manifest.PackageID]*manifest.Package),
		features:    make(map[*manifest.Package]map[string]bool),
		buildKinds:  make(map[*manifest.Package][]unit.CompileKind),
		depFeatures: make(map[*manifest.Package]map[string][]string),
		resolved:    make(map[*manifest.Package]map[string]*manifest.Package),
		graph:       unitgraph.New(),
		visiting:    make(map[*unit.Unit]bool),
	}
}

// probe collects platform information for the requested kinds and the
// host, which proc macros are always built for.
func (s *state) probe(ctx context.Context) error {
	for _, kind := range append([]unit.CompileKind{unit.Host}, s.kinds...) {
		info, err := s.r.info(ctx, kind)
		if err != nil {
			return err
		}
		s.infos[kind] = info
	}
	return nil
}

func (s *state) loadRoot(ctx context.Context) (*manifest.Package, error) {
	dir := s.req.ManifestPath
	if filepath.Ext(dir) == ".hcl" {
		dir = filepath.Dir(dir)
	}
	src, err := s.r.pathSource(dir)
	if err != nil {
		return nil, err
	}
	pkg, err := src.Load(ctx, "", "")
	if err != nil {
		return nil, err
	}
	s.visit(pkg)
	s.addKinds(pkg, s.rootKinds(pkg))
	return pkg, nil
}

// visit records pkg as part of the closure. It reports whether pkg is new.
func (s *state) visit(pkg *manifest.Package) bool {
	if _, ok := s.pkgs[pkg.ID]; ok {
		return false
	}
	s.pkgs[pkg.ID] = pkg
	s.order = append(s.order, pkg)
	s.features[pkg] = make(map[string]bool)
	return true
}

// rootKinds are the platforms a requested package is compiled for. A proc
// macro library also needs the host.
func (s *state) rootKinds(pkg *manifest.Package) []unit.CompileKind {
	if lib, ok := pkg.Lib(); ok && lib.ProcMacro {
		return bcx.AppendUnique(slices.Clone(s.kinds), unit.Host)
	}
	return s.kinds
}

// addKinds records that pkg is compiled for kinds.
func (s *state) addKinds(pkg *manifest.Package, kinds []unit.CompileKind) {
	s.buildKinds[pkg] = bcx.AppendUnique(s.buildKinds[pkg], kinds...)
}

// selectPackages resolves -p names against the closure of the root package.
func (s *state) selectPackages(ctx context.Context, root *manifest.Package) ([]*manifest.Package, error) {
	if len(s.req.Packages) == 0 {
		return []*manifest.Package{root}, nil
	}
	// Selection needs the closure, which is only known after a first
	// unification pass over the root.
	if err := s.enableRequested(root); err != nil {
		return nil, err
	}
	if err := s.unify(ctx); err != nil {
		return nil, err
	}
	var out []*manifest.Package
	for _, name := range s.req.Packages {
		var found *manifest.Package
		for _, pkg := range s.order {
			if pkg.ID.Name == name {
				found = pkg
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("package %q is not part of the dependency graph of %s", name, root.ID.Name)
		}
		out = append(out, found)
	}
	return out, nil
}

// enableRequested applies the request's feature flags to a selected package.
func (s *state) enableRequested(pkg *manifest.Package) error {
	if s.req.AllFeatures {
		for _, name := range slices.Sorted(maps.Keys(pkg.Features)) {
			if err := s.enable(pkg, name); err != nil {
				return err
			}
		}
		for _, d := range pkg.Dependencies {
			if d.Optional {
				if err := s.enable(pkg, d.Name); err != nil {
					return err
				}
			}
		}
	}
	if !s.req.NoDefaultFeatures {
		if err := s.enable(pkg, "default"); err != nil {
			return err
		}
	}
	for _, f := range s.req.Features {
		for _, name := range strings.FieldsFunc(f, func(r rune) bool { return r == ',' || r == ' ' }) {
			if err := s.enable(pkg, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// enable turns on a feature of pkg together with everything it enables.
// "default" is silently ignored when the package does not declare it.
func (s *state) enable(pkg *manifest.Package, name string) error {
	if dep, feat, ok := strings.Cut(name, "/"); ok {
		d, found := findDependency(pkg, dep)
		if !found {
			return fmt.Errorf("package %s has no dependency %q (feature %q)", pkg.ID.Name, dep, name)
		}
		if d.Optional {
			if err := s.enable(pkg, d.Name); err != nil {
				return err
			}
		}
		if s.depFeatures[pkg] == nil {
			s.depFeatures[pkg] = make(map[string][]string)
		}
		s.depFeatures[pkg][d.Name] = bcx.AppendUnique(s.depFeatures[pkg][d.Name], feat)
		return nil
	}

	if s.features[pkg][name] {
		return nil
	}
	if !pkg.HasFeature(name) {
		if name == "default" {
			return nil
		}
		return fmt.Errorf("package %s has no feature %q", pkg.ID.Name, name)
	}
	s.features[pkg][name] = true
	for _, e := range pkg.Features[name] {
		if err := s.enable(pkg, e); err != nil {
			return err
		}
	}
	return nil
}

// unify walks the dependency closure until features stop changing. Feature
// sets only grow, so the loop terminates.
func (s *state) unify(ctx context.Context) error {
	for round := 1; ; round++ {
		before := s.featureCount()
		for i := 0; i < len(s.order); i++ {
			pkg := s.order[i]
			kinds := s.buildKinds[pkg]
			deps, err := s.activeDeps(pkg, kinds)
			if err != nil {
				return err
			}
			for _, d := range deps {
				dp, err := s.loadDep(ctx, pkg, d)
				if err != nil {
					return err
				}
				s.visit(dp)
				if err := s.propagateKinds(pkg, d, dp, kinds); err != nil {
					return err
				}
				if d.DefaultFeatures {
					if err := s.enable(dp, "default"); err != nil {
						return err
					}
				}
				for _, f := range append(slices.Clone(d.Features), s.depFeatures[pkg][d.Name]...) {
					if err := s.enable(dp, f); err != nil {
						return fmt.Errorf("%s -> %s: %w", pkg.ID.Name, dp.ID.Name, err)
					}
				}
			}
		}
		if s.featureCount() == before {
			ctxlog.FromContext(ctx).Debug("Feature unification converged.", "rounds", round, "packages", len(s.order))
			return nil
		}
	}
}

// propagateKinds adds to dp the platforms on which pkg uses it.
func (s *state) propagateKinds(pkg *manifest.Package, d manifest.Dependency, dp *manifest.Package, kinds []unit.CompileKind) error {
	if lib, ok := dp.Lib(); ok && lib.ProcMacro {
		s.addKinds(dp, []unit.CompileKind{unit.Host})
		return nil
	}
	for _, k := range kinds {
		ok, err := s.applies(d, k)
		if err != nil {
			return fmt.Errorf("package %s: %w", pkg.ID.Name, err)
		}
		if ok {
			s.addKinds(dp, []unit.CompileKind{k})
		}
	}
	return nil
}

func (s *state) featureCount() int {
	n := len(s.order)
	for _, k := range s.buildKinds {
		n += len(k)
	}
	for _, f := range s.features {
		n += len(f)
	}
	for _, deps := range s.depFeatures {
		for _, f := range deps {
			n += len(f)
		}
	}
	return n
}

// activeDeps returns the dependencies of pkg that apply on at least one of
// the kinds: enabled if optional, and with a matching when condition.
func (s *state) activeDeps(pkg *manifest.Package, kinds []unit.CompileKind) ([]manifest.Dependency, error) {
	var out []manifest.Dependency
	for _, d := range pkg.Dependencies {
		if d.Optional && !s.features[pkg][d.Name] {
			continue
		}
		for _, k := range kinds {
			ok, err := s.applies(d, k)
			if err != nil {
				return nil, fmt.Errorf("package %s: %w", pkg.ID.Name, err)
			}
			if ok {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

// applies evaluates the when condition of d against the platform of kind.
func (s *state) applies(d manifest.Dependency, kind unit.CompileKind) (bool, error) {
	if d.When == nil {
		return true, nil
	}
	info := s.infos[kind]
	evalCtx := &hcl.EvalContext{Variables: info.Variables()}
	val, diags := d.When.Value(evalCtx)
	if diags.HasErrors() {
		return false, fmt.Errorf("dependency %q: invalid when condition: %s", d.Name, diags.Error())
	}
	if val.IsNull() || !val.IsKnown() || val.Type() != cty.Bool {
		return false, fmt.Errorf("dependency %q: when condition must be a bool", d.Name)
	}
	return val.True(), nil
}

// loadDep finds the package a dependency declaration refers to.
func (s *state) loadDep(ctx context.Context, pkg *manifest.Package, d manifest.Dependency) (*manifest.Package, error) {
	if dp, ok := s.resolved[pkg][d.Name]; ok {
		return dp, nil
	}
	var (
		dp  *manifest.Package
		err error
	)
	if d.Path != "" {
		src, serr := s.r.pathSource(filepath.Join(pkg.Root, d.Path))
		if serr != nil {
			return nil, serr
		}
		dp, err = src.Load(ctx, d.Name, "")
	} else {
		src, serr := s.r.vendorSource()
		if serr != nil {
			return nil, fmt.Errorf("dependency %q of %s: %w", d.Name, pkg.ID.Name, serr)
		}
		dp, err = src.Load(ctx, d.Name, d.Version)
	}
	if err != nil {
		return nil, fmt.Errorf("dependency %q of %s: %w", d.Name, pkg.ID.Name, err)
	}
	if s.resolved[pkg] == nil {
		s.resolved[pkg] = make(map[string]*manifest.Package)
	}
	s.resolved[pkg][d.Name] = dp
	return dp, nil
}

// unitFor interns the unit of one target and, recursively, its
// dependencies. Dependencies are always built, never checked or
// documented, so they are shared between requests of different commands.
func (s *state) unitFor(ctx context.Context, pkg *manifest.Package, t manifest.Target, kind unit.CompileKind, mode unit.Mode, args []string) (*unit.Unit, error) {
	if t.ProcMacro {
		kind = unit.Host
	}
	u := s.r.interner.Intern(unit.Spec{
		Package:  pkg,
		Target:   t,
		Profile:  s.profile,
		Kind:     kind,
		Mode:     mode,
		Features: slices.Sorted(maps.Keys(s.features[pkg])),
		Args:     args,
	})
	if _, done := s.graph[u]; done {
		return u, nil
	}
	if s.visiting[u] {
		return nil, fmt.Errorf("dependency cycle detected involving %s", u)
	}
	s.visiting[u] = true
	defer delete(s.visiting, u)

	var deps []unitgraph.Dep
	// Non-library targets link against their own package's library.
	if t.Kind != manifest.TargetLib {
		if lib, ok := pkg.Lib(); ok {
			du, err := s.unitFor(ctx, pkg, lib, kind, unit.ModeBuild, nil)
			if err != nil {
				return nil, err
			}
			deps = append(deps, unitgraph.Dep{Unit: du, ExternName: lib.Name})
		}
	}
	active, err := s.activeDeps(pkg, []unit.CompileKind{kind})
	if err != nil {
		return nil, err
	}
	for _, d := range active {
		dp, err := s.loadDep(ctx, pkg, d)
		if err != nil {
			return nil, err
		}
		lib, ok := dp.Lib()
		if !ok {
			return nil, fmt.Errorf("dependency %q of %s has no lib target", d.Name, pkg.ID.Name)
		}
		du, err := s.unitFor(ctx, dp, lib, kind, unit.ModeBuild, nil)
		if err != nil {
			return nil, err
		}
		deps = append(deps, unitgraph.Dep{Unit: du, ExternName: strings.ReplaceAll(d.Extern(), "-", "_")})
	}
	s.graph.Add(u, deps...)
	return u, nil
}

func findDependency(pkg *manifest.Package, name string) (manifest.Dependency, bool) {
	for _, d := range pkg.Dependencies {
		if d.Name == name || d.Extern() == name {
			return d, true
		}
	}
	return manifest.Dependency{}, false
}
