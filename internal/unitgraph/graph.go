package unitgraph

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/specialistvlad/buildbatch/internal/unit"
)

// Dep is one edge of the graph.
type Dep struct {
	Unit *unit.Unit
	// ExternName is the name under which the dependent links the dependency.
	ExternName string
}

// Graph maps a unit to its direct dependencies.
type Graph map[*unit.Unit][]Dep

// New returns an empty graph.
func New() Graph {
	return make(Graph)
}

// Add records u with its dependencies, replacing any previous entry.
func (g Graph) Add(u *unit.Unit, deps ...Dep) {
	g[u] = deps
}

// Extend copies every entry of other into g. An entry already present in g
// is overwritten by other's.
func (g Graph) Extend(other Graph) {
	maps.Copy(g, other)
}

// Clone returns a shallow copy. Dependency slices are shared, which is fine
// because they are never mutated after resolution.
func (g Graph) Clone() Graph {
	return maps.Clone(g)
}

// Units returns every unit of the graph in deterministic order.
func (g Graph) Units() []*unit.Unit {
	units := slices.Collect(maps.Keys(g))
	slices.SortFunc(units, Compare)
	return units
}

// Validate checks that every root and every dependency has an entry of its
// own and that the graph is acyclic.
func (g Graph) Validate(roots []*unit.Unit) error {
	for _, r := range roots {
		if _, ok := g[r]; !ok {
			return fmt.Errorf("root %s is missing from the unit graph", r)
		}
	}
	for _, u := range g.Units() {
		for _, d := range g[u] {
			if _, ok := g[d.Unit]; !ok {
				return fmt.Errorf("dependency %s of %s is missing from the unit graph", d.Unit, u)
			}
		}
	}
	return g.detectCycles()
}

// detectCycles checks for circular dependencies in the graph using DFS.
func (g Graph) detectCycles() error {
	visiting := make(map[*unit.Unit]bool)
	visited := make(map[*unit.Unit]bool)

	var visit func(u *unit.Unit) error
	visit = func(u *unit.Unit) error {
		visiting[u] = true
		for _, dep := range g[u] {
			if visiting[dep.Unit] {
				return fmt.Errorf("cycle detected involving %s", dep.Unit)
			}
			if !visited[dep.Unit] {
				if err := visit(dep.Unit); err != nil {
					return err
				}
			}
		}
		delete(visiting, u)
		visited[u] = true
		return nil
	}

	for _, u := range g.Units() {
		if !visited[u] {
			if err := visit(u); err != nil {
				return err
			}
		}
	}
	return nil
}

// Order returns the units in dependency order: every unit appears after all
// of its dependencies. Ties are broken by Compare so the result is stable.
// The graph must be valid.
func (g Graph) Order() []*unit.Unit {
	visited := make(map[*unit.Unit]bool, len(g))
	order := make([]*unit.Unit, 0, len(g))

	var visit func(u *unit.Unit)
	visit = func(u *unit.Unit) {
		if visited[u] {
			return
		}
		visited[u] = true
		deps := slices.Clone(g[u])
		slices.SortFunc(deps, func(a, b Dep) int { return Compare(a.Unit, b.Unit) })
		for _, d := range deps {
			visit(d.Unit)
		}
		order = append(order, u)
	}
	for _, u := range g.Units() {
		visit(u)
	}
	return order
}

// Dependents returns the reverse adjacency of the graph.
func (g Graph) Dependents() map[*unit.Unit][]*unit.Unit {
	out := make(map[*unit.Unit][]*unit.Unit, len(g))
	for _, u := range g.Units() {
		for _, d := range g[u] {
			out[d.Unit] = append(out[d.Unit], u)
		}
	}
	return out
}

// Compare orders units by their identity fields.
func Compare(a, b *unit.Unit) int {
	ka, kb := a.Key(), b.Key()
	return cmp.Or(
		cmp.Compare(ka.Package.Name, kb.Package.Name),
		cmp.Compare(ka.Package.Version, kb.Package.Version),
		cmp.Compare(ka.Package.Source, kb.Package.Source),
		cmp.Compare(ka.TargetKind, kb.TargetKind),
		cmp.Compare(ka.TargetName, kb.TargetName),
		cmp.Compare(ka.Mode, kb.Mode),
		cmp.Compare(ka.Profile.Name, kb.Profile.Name),
		cmp.Compare(ka.Kind.Triple, kb.Kind.Triple),
		cmp.Compare(ka.Features, kb.Features),
		cmp.Compare(ka.Args, kb.Args),
		cmp.Compare(a.Fingerprint(), b.Fingerprint()),
	)
}
