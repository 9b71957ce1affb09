package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/specialistvlad/buildbatch/internal/bcx"
	"github.com/specialistvlad/buildbatch/internal/ctxlog"
	"github.com/specialistvlad/buildbatch/internal/manifest"
	"github.com/specialistvlad/buildbatch/internal/source"
	"github.com/specialistvlad/buildbatch/internal/target"
	"github.com/specialistvlad/buildbatch/internal/unit"
)

// Settings are the parts of the user configuration the resolver needs.
type Settings struct {
	// VendorDir holds vendored packages. Required only when a manifest has
	// version dependencies.
	VendorDir string
	// TargetConfigs maps a target triple, or "host", to its configuration.
	TargetConfigs map[string]target.Config
}

// Resolver resolves build requests into build contexts. It is safe for
// concurrent use.
type Resolver struct {
	loader   manifest.Loader
	interner *unit.Interner
	prober   target.Prober
	settings Settings

	mu      sync.Mutex
	paths   map[string]*source.PathSource
	vendor  *source.VendorSource
	infos   map[unit.CompileKind]target.Info
	infoErr map[unit.CompileKind]error
}

// NewResolver creates a resolver. Every resolver of a run must be given the
// same interner.
func NewResolver(loader manifest.Loader, interner *unit.Interner, prober target.Prober, settings Settings) *Resolver {
	return &Resolver{
		loader:   loader,
		interner: interner,
		prober:   prober,
		settings: settings,
		paths:    make(map[string]*source.PathSource),
		infos:    make(map[unit.CompileKind]target.Info),
		infoErr:  make(map[unit.CompileKind]error),
	}
}

// Interner returns the interner units are created with.
func (r *Resolver) Interner() *unit.Interner {
	return r.interner
}

// Resolve produces the build context of one request.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*bcx.BuildContext, error) {
	return r.resolve(ctx, string(req.Command), req)
}

func (r *Resolver) resolve(ctx context.Context, label string, req Request) (*bcx.BuildContext, error) {
	ctx, logger := ctxlog.With(ctx, "request", label)

	profile, err := req.profile()
	if err != nil {
		return nil, err
	}
	mode, err := req.rootMode(profile)
	if err != nil {
		return nil, err
	}
	if req.ManifestPath == "" {
		req.ManifestPath = "."
	}

	s := newState(r, req, profile)
	if err := s.probe(ctx); err != nil {
		return nil, err
	}

	rootPkg, err := s.loadRoot(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", req.ManifestPath)
	}
	selected, err := s.selectPackages(ctx, rootPkg)
	if err != nil {
		return nil, err
	}
	for _, pkg := range selected {
		s.addKinds(pkg, s.rootKinds(pkg))
		if err := s.enableRequested(pkg); err != nil {
			return nil, err
		}
	}
	if err := s.unify(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to resolve dependencies of %s", req.ManifestPath)
	}

	bc := bcx.New(label)
	bc.AddKinds(s.kinds...)
	for _, pkg := range selected {
		targets, err := selectTargets(pkg, req)
		if err != nil {
			return nil, err
		}
		for _, kind := range s.kinds {
			for _, t := range targets {
				root, err := s.unitFor(ctx, pkg, t, kind, mode, req.ExtraArgs)
				if err != nil {
					return nil, err
				}
				bc.AddRoots(root)
				if len(req.ExtraArgs) > 0 {
					bc.ExtraCompilerArgs[root] = req.ExtraArgs
				}
			}
		}
	}
	bc.UnitGraph = s.graph

	for kind, info := range s.infos {
		bc.TargetData.Info[kind] = info
		if cfg, ok := r.targetConfig(kind); ok {
			bc.TargetData.Config[kind] = cfg
		}
	}
	for _, pkg := range s.pkgs {
		bc.Packages.Add(pkg)
		src, err := r.sourceOf(pkg)
		if err != nil {
			return nil, err
		}
		bc.Packages.Sources.Add(src)
	}
	bc.Uplift = true

	logger.Info("Resolved build request.",
		"manifest", req.ManifestPath,
		"mode", mode,
		"profile", profile.Name,
		"roots", len(bc.Roots),
		"units", len(bc.UnitGraph),
		"packages", len(bc.Packages.Packages),
	)
	return bc, nil
}

// targetConfig returns the configured settings of a platform.
func (r *Resolver) targetConfig(kind unit.CompileKind) (target.Config, bool) {
	cfg, ok := r.settings.TargetConfigs[kind.String()]
	return cfg, ok
}

// info probes a platform once per resolver.
func (r *Resolver) info(ctx context.Context, kind unit.CompileKind) (target.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.infos[kind]; ok {
		return info, nil
	}
	if err, ok := r.infoErr[kind]; ok {
		return target.Info{}, err
	}
	info, err := r.prober.Probe(ctx, kind)
	if err != nil {
		err = fmt.Errorf("failed to probe target %s: %w", kind, err)
		r.infoErr[kind] = err
		return target.Info{}, err
	}
	ctxlog.FromContext(ctx).Debug("Probed target platform.", "kind", kind.String(), "triple", info.Triple)
	r.infos[kind] = info
	return info, nil
}

// pathSource returns the shared source for a package directory, so every
// request sees the same loaded *manifest.Package.
func (r *Resolver) pathSource(dir string) (*source.PathSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", dir)
	}
	abs = filepath.Clean(abs)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.paths[abs]; ok {
		return s, nil
	}
	s, err := source.NewPathSource(abs, r.loader)
	if err != nil {
		return nil, err
	}
	r.paths[abs] = s
	return s, nil
}

func (r *Resolver) vendorSource() (*source.VendorSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.vendor != nil {
		return r.vendor, nil
	}
	if r.settings.VendorDir == "" {
		return nil, fmt.Errorf("no vendor directory configured")
	}
	v, err := source.NewVendorSource(r.settings.VendorDir, r.loader)
	if err != nil {
		return nil, err
	}
	r.vendor = v
	return v, nil
}

// sourceOf finds the source a loaded package came from.
func (r *Resolver) sourceOf(pkg *manifest.Package) (source.Source, error) {
	switch pkg.ID.Source.Kind() {
	case manifest.SourcePath:
		return r.pathSource(pkg.ID.Source.Location())
	case manifest.SourceVendor:
		return r.vendorSource()
	}
	return nil, fmt.Errorf("package %s has no known source", pkg.ID)
}
