package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/specialistvlad/buildbatch/internal/bcx"
	"github.com/specialistvlad/buildbatch/internal/manifest"
	"github.com/specialistvlad/buildbatch/internal/source"
	"github.com/specialistvlad/buildbatch/internal/target"
	"github.com/specialistvlad/buildbatch/internal/unit"
	"github.com/specialistvlad/buildbatch/internal/unitgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// world interns units the way the resolver does: one Interner per run.
type world struct {
	in   *unit.Interner
	pkgs map[string]*manifest.Package
}

func newWorld() *world {
	return &world{in: unit.NewInterner(), pkgs: make(map[string]*manifest.Package)}
}

func (w *world) pkg(name string) *manifest.Package {
	if p, ok := w.pkgs[name]; ok {
		return p
	}
	p := &manifest.Package{
		ID: manifest.PackageID{Name: name, Version: "0.1.0", Source: manifest.NewSourceID(manifest.SourcePath, "/w/"+name)},
		Targets: []manifest.Target{
			{Kind: manifest.TargetLib, Name: name, SrcPath: "src/lib.rs"},
		},
	}
	w.pkgs[name] = p
	return p
}

func (w *world) lib(name string, mode unit.Mode) *unit.Unit {
	p := w.pkg(name)
	return w.in.Intern(unit.Spec{
		Package: p,
		Target:  p.Targets[0],
		Profile: unit.DevProfile,
		Mode:    mode,
	})
}

// request builds a context with one root depending on the given libs.
func (w *world) request(label, root string, mode unit.Mode, deps ...string) *bcx.BuildContext {
	bc := bcx.New(label)
	r := w.lib(root, mode)
	var edges []unitgraph.Dep
	for _, d := range deps {
		du := w.lib(d, unit.ModeBuild)
		bc.UnitGraph.Add(du)
		bc.Packages.Add(w.pkg(d))
		edges = append(edges, unitgraph.Dep{Unit: du, ExternName: d})
	}
	bc.UnitGraph.Add(r, edges...)
	bc.AddRoots(r)
	bc.AddKinds(unit.Host)
	bc.TargetData.Info[unit.Host] = target.Info{Triple: "x86_64-unknown-linux-gnu"}
	bc.Packages.Add(w.pkg(root))
	bc.Packages.Sources.Add(fakeSource(w.pkg(root).ID.Source))
	bc.Uplift = true
	return bc
}

type fakeSource manifest.SourceID

func (s fakeSource) ID() manifest.SourceID { return manifest.SourceID(s) }
func (s fakeSource) Load(context.Context, string, string) (*manifest.Package, error) {
	return nil, errors.New("not implemented")
}
func (s fakeSource) Files(context.Context, *manifest.Package) ([]string, error) { return nil, nil }

var _ source.Source = fakeSource("")

func TestBatch_SharedDependencyScenario(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	w := newWorld()
	a := w.request("#0 build", "foo", unit.ModeBuild, "bar")
	b := w.request("#1 check", "baz", unit.ModeCheck, "bar")

	// --- Act ---
	bt := New(Merger{})
	require.NoError(t, bt.Add(ctx, a, "/out/a"))
	require.NoError(t, bt.Add(ctx, b, "/out/b"))
	merged, err := bt.Finalize(ctx)
	require.NoError(t, err)

	// --- Assert ---
	foo, bar, baz := w.lib("foo", unit.ModeBuild), w.lib("bar", unit.ModeBuild), w.lib("baz", unit.ModeCheck)
	assert.Len(t, merged.UnitGraph, 3, "bar must appear once")
	assert.Equal(t, []*unit.Unit{foo, baz}, merged.Roots)
	assert.Equal(t, map[*unit.Unit]string{foo: "/out/a", baz: "/out/b"}, merged.ExportDirs)
	assert.False(t, merged.Uplift)

	var runs int
	compiled := map[*unit.Unit]int{}
	err = bt.Execute(ctx, RunnerFunc(func(_ context.Context, bc *bcx.BuildContext) error {
		runs++
		for _, u := range bc.UnitGraph.Order() {
			compiled[u]++
		}
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, compiled[bar])
	assert.Equal(t, StateExecuted, bt.State())
}

func TestMerge_ExportDirIsolation(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	a := w.request("#0", "foo", unit.ModeBuild, "bar")
	b := w.request("#1", "baz", unit.ModeBuild, "bar")
	c := w.request("#2", "qux", unit.ModeBuild)

	merged, err := Merger{}.Fold(ctx, []Item{
		{Context: a, ExportDir: "/out/a"},
		{Context: b, ExportDir: "/out/b"},
		{Context: c},
	})
	require.NoError(t, err)

	assert.Equal(t, "/out/a", merged.ExportDirs[w.lib("foo", unit.ModeBuild)])
	assert.Equal(t, "/out/b", merged.ExportDirs[w.lib("baz", unit.ModeBuild)])
	_, ok := merged.ExportDirs[w.lib("qux", unit.ModeBuild)]
	assert.False(t, ok, "a request without export dir gets none")
	_, ok = merged.ExportDirs[w.lib("bar", unit.ModeBuild)]
	assert.False(t, ok, "dependencies are never exported")
	assert.Empty(t, a.ExportDirs, "inputs are not modified")
}

func TestFinalize_UpliftSuppressed(t *testing.T) {
	testCases := []struct {
		name     string
		requests int
	}{
		{name: "single request", requests: 1},
		{name: "two requests", requests: 2},
		{name: "five requests", requests: 5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			w := newWorld()
			bt := New(Merger{})
			for i := range tc.requests {
				bc := w.request("r", string(rune('a'+i)), unit.ModeBuild)
				require.True(t, bc.Uplift)
				require.NoError(t, bt.Add(ctx, bc, ""))
			}
			merged, err := bt.Finalize(ctx)
			require.NoError(t, err)
			assert.False(t, merged.Uplift)
		})
	}
}

func TestMerge_UnionCompleteness(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	arm := unit.Target("aarch64-unknown-linux-gnu")

	a := w.request("#0", "foo", unit.ModeBuild, "bar")
	a.TargetData.Config[unit.Host] = target.Config{Linker: "cc"}
	b := w.request("#1", "baz", unit.ModeBuild, "qux")
	b.AddKinds(arm)
	b.TargetData.Info[arm] = target.Info{Triple: arm.Triple}
	b.TargetData.Config[arm] = target.Config{Linker: "aarch64-linux-gnu-gcc"}
	b.ExtraCompilerArgs[w.lib("baz", unit.ModeBuild)] = []string{"--cfg", "docsrs"}

	merged, err := Merger{}.Fold(ctx, []Item{{Context: a}, {Context: b}})
	require.NoError(t, err)

	assert.ElementsMatch(t, []unit.CompileKind{unit.Host, arm}, merged.Kinds)
	assert.Len(t, merged.TargetData.Info, 2)
	assert.Equal(t, "cc", merged.TargetData.Config[unit.Host].Linker)
	assert.Equal(t, "aarch64-linux-gnu-gcc", merged.TargetData.Config[arm].Linker)
	for _, name := range []string{"foo", "bar", "baz", "qux"} {
		_, ok := merged.Packages.Get(w.pkg(name).ID)
		assert.True(t, ok, name)
	}
	assert.Equal(t, 2, merged.Packages.Sources.Len())
	assert.Equal(t, []string{"--cfg", "docsrs"}, merged.ExtraCompilerArgs[w.lib("baz", unit.ModeBuild)])
	assert.Len(t, merged.UnitGraph, 4)
}

func TestMerge_FoldIsAssociative(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	items := []Item{
		{Context: w.request("#0", "foo", unit.ModeBuild, "bar"), ExportDir: "/out/a"},
		{Context: w.request("#1", "baz", unit.ModeCheck, "bar", "qux"), ExportDir: "/out/b"},
		{Context: w.request("#2", "quux", unit.ModeDoc, "qux")},
	}
	m := Merger{Strict: true}

	direct, err := m.Fold(ctx, items)
	require.NoError(t, err)

	partial, err := m.Fold(ctx, items[:2])
	require.NoError(t, err)
	stepwise, err := m.Merge(ctx, partial, items[2].Context, items[2].ExportDir)
	require.NoError(t, err)

	assert.Equal(t, direct.UnitGraph, stepwise.UnitGraph)
	assert.Equal(t, direct.Roots, stepwise.Roots)
	assert.Equal(t, direct.ExportDirs, stepwise.ExportDirs)
	assert.Equal(t, direct.Kinds, stepwise.Kinds)
	assert.Equal(t, direct.Packages.IDs(), stepwise.Packages.IDs())
	assert.Equal(t, direct.TargetData, stepwise.TargetData)

	var j1, j2 bytes.Buffer
	require.NoError(t, direct.UnitGraph.Write(&j1, direct.Roots, unitgraph.FormatJSON))
	require.NoError(t, stepwise.UnitGraph.Write(&j2, stepwise.Roots, unitgraph.FormatJSON))
	assert.JSONEq(t, j1.String(), j2.String())
}

func TestMerge_RootThatIsAlsoDependencyStaysRoot(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	a := w.request("#0", "bar", unit.ModeBuild)
	b := w.request("#1", "foo", unit.ModeBuild, "bar")

	merged, err := Merger{}.Fold(ctx, []Item{{Context: a, ExportDir: "/out/bar"}, {Context: b}})
	require.NoError(t, err)

	bar := w.lib("bar", unit.ModeBuild)
	assert.True(t, merged.IsRoot(bar))
	assert.Equal(t, "/out/bar", merged.ExportDirs[bar])
	assert.Len(t, merged.UnitGraph, 2)
}

func TestMerge_ConflictingExportDirs(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	mk := func() []Item {
		return []Item{
			{Context: w.request("#0", "foo", unit.ModeBuild), ExportDir: "/out/a"},
			{Context: w.request("#1", "foo", unit.ModeBuild), ExportDir: "/out/b"},
		}
	}

	t.Run("lenient keeps the last value", func(t *testing.T) {
		merged, err := Merger{}.Fold(ctx, mk())
		require.NoError(t, err)
		assert.Equal(t, "/out/b", merged.ExportDirs[w.lib("foo", unit.ModeBuild)])
		assert.Len(t, merged.Roots, 1)
	})

	t.Run("strict refuses", func(t *testing.T) {
		_, err := Merger{Strict: true}.Fold(ctx, mk())
		require.Error(t, err)
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "export_dirs", conflict.Field)
		assert.Equal(t, "/out/a", conflict.Existing)
		assert.Equal(t, "/out/b", conflict.Incoming)
		assert.Equal(t, "#1", conflict.Request)
	})
}

func TestMerge_StrictTargetConfigConflict(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	a := w.request("#0", "foo", unit.ModeBuild)
	a.TargetData.Config[unit.Host] = target.Config{Linker: "cc"}
	b := w.request("#1", "baz", unit.ModeBuild)
	b.TargetData.Config[unit.Host] = target.Config{Linker: "clang"}

	_, err := Merger{Strict: true}.Fold(ctx, []Item{{Context: a}, {Context: b}})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "target_config", conflict.Field)

	// Value-identical collisions are not conflicts.
	c := w.request("#2", "qux", unit.ModeBuild)
	c.TargetData.Config[unit.Host] = target.Config{Linker: "cc"}
	_, err = Merger{Strict: true}.Fold(ctx, []Item{{Context: a}, {Context: c}})
	require.NoError(t, err)
}

func TestMerge_NilContext(t *testing.T) {
	_, err := Merger{}.Merge(context.Background(), nil, nil, "")
	require.Error(t, err)
}

func TestBatch_IllegalTransitions(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	noop := RunnerFunc(func(context.Context, *bcx.BuildContext) error { return nil })

	t.Run("empty batch", func(t *testing.T) {
		_, err := New(Merger{}).Finalize(ctx)
		assert.ErrorIs(t, err, ErrEmptyBatch)
	})

	t.Run("handoff before finalize", func(t *testing.T) {
		bt := New(Merger{})
		require.NoError(t, bt.Add(ctx, w.request("#0", "foo", unit.ModeBuild), ""))
		assert.ErrorIs(t, bt.Execute(ctx, noop), ErrNotFinalized)
		assert.ErrorIs(t, bt.Report(ctx, &bytes.Buffer{}, unitgraph.FormatJSON), ErrNotFinalized)
	})

	t.Run("add after finalize", func(t *testing.T) {
		bt := New(Merger{})
		require.NoError(t, bt.Add(ctx, w.request("#0", "foo", unit.ModeBuild), ""))
		_, err := bt.Finalize(ctx)
		require.NoError(t, err)
		assert.ErrorIs(t, bt.Add(ctx, w.request("#1", "baz", unit.ModeBuild), ""), ErrFinalized)
		_, err = bt.Finalize(ctx)
		assert.ErrorIs(t, err, ErrFinalized)
	})

	t.Run("report then execute", func(t *testing.T) {
		bt := New(Merger{})
		require.NoError(t, bt.Add(ctx, w.request("#0", "foo", unit.ModeBuild, "bar"), ""))
		_, err := bt.Finalize(ctx)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, bt.Report(ctx, &buf, unitgraph.FormatJSON))
		assert.Equal(t, StateReported, bt.State())
		assert.True(t, json.Valid(buf.Bytes()))

		assert.ErrorIs(t, bt.Execute(ctx, noop), ErrHandedOff)
		assert.ErrorIs(t, bt.Report(ctx, &buf, unitgraph.FormatJSON), ErrHandedOff)
	})

	t.Run("failed execution still counts", func(t *testing.T) {
		bt := New(Merger{})
		require.NoError(t, bt.Add(ctx, w.request("#0", "foo", unit.ModeBuild), ""))
		_, err := bt.Finalize(ctx)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = bt.Execute(ctx, RunnerFunc(func(context.Context, *bcx.BuildContext) error { return boom }))
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, bt.Execute(ctx, noop), ErrHandedOff)
	})
}

func TestFinalize_RejectsInvalidGraph(t *testing.T) {
	ctx := context.Background()
	w := newWorld()
	bc := w.request("#0", "foo", unit.ModeBuild)
	// A root whose dependency has no entry of its own.
	bc.UnitGraph.Add(w.lib("foo", unit.ModeBuild), unitgraph.Dep{Unit: w.lib("ghost", unit.ModeBuild)})

	bt := New(Merger{})
	require.NoError(t, bt.Add(ctx, bc, ""))
	_, err := bt.Finalize(ctx)
	require.Error(t, err)
	assert.Equal(t, StateAccumulating, bt.State())
	assert.True(t, bc.Uplift, "a failed Finalize leaves the added context untouched")
	assert.True(t, bt.Context().Uplift)
}

func TestFinalize_DoesNotModifyAddedContext(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	w := newWorld()
	bc := w.request("#0", "foo", unit.ModeBuild, "bar")
	bt := New(Merger{})
	require.NoError(t, bt.Add(ctx, bc, ""))

	// --- Act ---
	merged, err := bt.Finalize(ctx)

	// --- Assert ---
	require.NoError(t, err)
	assert.False(t, merged.Uplift)
	assert.NotSame(t, bc, merged)
	assert.True(t, bc.Uplift, "the single request's context keeps its own uplift flag")
}
