package batch

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"

	"github.com/specialistvlad/buildbatch/internal/bcx"
	"github.com/specialistvlad/buildbatch/internal/ctxlog"
	"github.com/specialistvlad/buildbatch/internal/unit"
	"github.com/specialistvlad/buildbatch/internal/unitgraph"
)

// Merger folds build contexts together.
type Merger struct {
	// Strict turns value conflicts on colliding keys into errors instead of
	// last-write-wins overwrites.
	Strict bool
}

// Item is one request's context together with its export directory.
type Item struct {
	Context   *bcx.BuildContext
	ExportDir string
}

// Merge folds next into acc and returns the new accumulator. acc may be nil
// for the first request. Neither acc nor next is modified; next must not be
// used by the caller afterwards since the result may share its maps.
func (m Merger) Merge(ctx context.Context, acc, next *bcx.BuildContext, exportDir string) (*bcx.BuildContext, error) {
	if next == nil {
		return nil, fmt.Errorf("cannot merge a nil build context")
	}

	if exportDir != "" {
		out := *next
		out.ExportDirs = maps.Clone(next.ExportDirs)
		if out.ExportDirs == nil {
			out.ExportDirs = make(map[*unit.Unit]string, len(next.Roots))
		}
		for _, root := range next.Roots {
			out.ExportDirs[root] = exportDir
		}
		next = &out
	}

	if acc == nil {
		return next, nil
	}

	c := &collector{strict: m.Strict, request: next.Request, logger: ctxlog.FromContext(ctx)}
	out := acc.Clone()
	out.Request = acc.Request + ", " + next.Request

	for u, deps := range next.UnitGraph {
		if old, ok := out.UnitGraph[u]; ok && !slices.Equal(old, deps) {
			if err := c.conflict("unit_graph", u.String(), depNames(old), depNames(deps)); err != nil {
				return nil, err
			}
		}
		out.UnitGraph[u] = deps
	}

	out.AddRoots(next.Roots...)

	for u, dir := range next.ExportDirs {
		if old, ok := out.ExportDirs[u]; ok && old != dir {
			if err := c.conflict("export_dirs", u.String(), old, dir); err != nil {
				return nil, err
			}
		}
		out.ExportDirs[u] = dir
	}

	out.AddKinds(next.Kinds...)

	if next.TargetData != nil {
		for kind, cfg := range next.TargetData.Config {
			if old, ok := out.TargetData.Config[kind]; ok && !reflect.DeepEqual(old, cfg) {
				if err := c.conflict("target_config", kind.String(), fmt.Sprintf("%+v", old), fmt.Sprintf("%+v", cfg)); err != nil {
					return nil, err
				}
			}
			out.TargetData.Config[kind] = cfg
		}
		for kind, info := range next.TargetData.Info {
			if old, ok := out.TargetData.Info[kind]; ok && !reflect.DeepEqual(old, info) {
				if err := c.conflict("target_info", kind.String(), old.Triple, info.Triple); err != nil {
					return nil, err
				}
			}
			out.TargetData.Info[kind] = info
		}
	}

	out.Packages.Extend(next.Packages)

	for u, args := range next.ExtraCompilerArgs {
		if old, ok := out.ExtraCompilerArgs[u]; ok && !slices.Equal(old, args) {
			if err := c.conflict("extra_compiler_args", u.String(), fmt.Sprint(old), fmt.Sprint(args)); err != nil {
				return nil, err
			}
		}
		out.ExtraCompilerArgs[u] = args
	}

	return out, nil
}

// Fold merges items in order.
func (m Merger) Fold(ctx context.Context, items []Item) (*bcx.BuildContext, error) {
	var acc *bcx.BuildContext
	for _, it := range items {
		var err error
		acc, err = m.Merge(ctx, acc, it.Context, it.ExportDir)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// collector decides what happens to a value conflict.
type collector struct {
	strict  bool
	request string
	logger  *slog.Logger
}

func (c *collector) conflict(field, key, existing, incoming string) error {
	if c.strict {
		return &ConflictError{Field: field, Key: key, Existing: existing, Incoming: incoming, Request: c.request}
	}
	c.logger.Warn("Merged request overrides a value set by an earlier request.",
		"request", c.request,
		"field", field,
		"key", key,
		"existing", existing,
		"incoming", incoming,
	)
	return nil
}

func depNames(deps []unitgraph.Dep) string {
	names := make([]string, len(deps))
	for i, d := range deps {
		names[i] = d.Unit.String()
	}
	return fmt.Sprint(names)
}
