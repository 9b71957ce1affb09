package workspace

import (
	"fmt"

	"github.com/specialistvlad/buildbatch/internal/manifest"
)

// selectTargets picks the root targets of pkg from the request's target
// selection flags.
func selectTargets(pkg *manifest.Package, req Request) ([]manifest.Target, error) {
	if req.AllTargets {
		return pkg.Targets, nil
	}

	explicit := req.Lib || req.AllBins || len(req.Bins) > 0 || len(req.Examples) > 0
	if !explicit {
		return defaultTargets(pkg, req.Command), nil
	}

	var out []manifest.Target
	if req.Lib {
		lib, ok := pkg.Lib()
		if !ok {
			return nil, fmt.Errorf("package %s has no lib target", pkg.ID.Name)
		}
		out = append(out, lib)
	}
	if req.AllBins {
		out = append(out, pkg.TargetsOfKind(manifest.TargetBin)...)
	}
	for _, name := range req.Bins {
		t, ok := pkg.Target(manifest.TargetBin, name)
		if !ok {
			return nil, fmt.Errorf("package %s has no bin target named %q", pkg.ID.Name, name)
		}
		out = append(out, t)
	}
	for _, name := range req.Examples {
		t, ok := pkg.Target(manifest.TargetExample, name)
		if !ok {
			return nil, fmt.Errorf("package %s has no example target named %q", pkg.ID.Name, name)
		}
		out = append(out, t)
	}
	return dedupTargets(out), nil
}

// defaultTargets is the library plus every binary; doc only documents the
// library when there is one.
func defaultTargets(pkg *manifest.Package, cmd Command) []manifest.Target {
	lib, hasLib := pkg.Lib()
	if cmd == CommandDoc && hasLib {
		return []manifest.Target{lib}
	}
	var out []manifest.Target
	if hasLib {
		out = append(out, lib)
	}
	return append(out, pkg.TargetsOfKind(manifest.TargetBin)...)
}

func dedupTargets(targets []manifest.Target) []manifest.Target {
	seen := make(map[manifest.Target]bool, len(targets))
	out := targets[:0]
	for _, t := range targets {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
