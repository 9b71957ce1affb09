package runner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/specialistvlad/buildbatch/internal/bcx"
	"github.com/specialistvlad/buildbatch/internal/hcl"
	"github.com/specialistvlad/buildbatch/internal/manifest"
	"github.com/specialistvlad/buildbatch/internal/source"
	"github.com/specialistvlad/buildbatch/internal/unit"
	"github.com/specialistvlad/buildbatch/internal/unitgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingCompiler wraps StampCompiler, counts calls per unit and fails
// the units named in failOn.
type recordingCompiler struct {
	mu     sync.Mutex
	calls  map[string]int
	jobs   map[string]Job
	failOn map[string]error
}

func newRecordingCompiler() *recordingCompiler {
	return &recordingCompiler{calls: map[string]int{}, jobs: map[string]Job{}, failOn: map[string]error{}}
}

func (c *recordingCompiler) Compile(ctx context.Context, job Job) error {
	name := job.Unit.Key().TargetName
	c.mu.Lock()
	c.calls[name]++
	c.jobs[name] = job
	failErr := c.failOn[name]
	c.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	return StampCompiler{}.Compile(ctx, job)
}

type graphFixture struct {
	in   *unit.Interner
	root string
}

func newGraphFixture(t *testing.T) *graphFixture {
	return &graphFixture{in: unit.NewInterner(), root: t.TempDir()}
}

func (f *graphFixture) lib(t *testing.T, name string, mode unit.Mode) *unit.Unit {
	dir := filepath.Join(f.root, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "lib.rs"), []byte("// "+name), 0644))
	pkg := &manifest.Package{
		ID:   manifest.PackageID{Name: name, Version: "0.1.0", Source: manifest.NewSourceID(manifest.SourcePath, dir)},
		Root: dir,
		Targets: []manifest.Target{
			{Kind: manifest.TargetLib, Name: name, SrcPath: "src/lib.rs"},
		},
	}
	return f.in.Intern(unit.Spec{Package: pkg, Target: pkg.Targets[0], Profile: unit.DevProfile, Mode: mode})
}

// sharedContext is foo and baz both depending on bar, exported to
// separate directories.
func sharedContext(t *testing.T, f *graphFixture) (*bcx.BuildContext, map[string]*unit.Unit) {
	foo := f.lib(t, "foo", unit.ModeBuild)
	bar := f.lib(t, "bar", unit.ModeBuild)
	baz := f.lib(t, "baz", unit.ModeCheck)

	bc := bcx.New("merged")
	bc.UnitGraph.Add(bar)
	bc.UnitGraph.Add(foo, unitgraph.Dep{Unit: bar, ExternName: "bar"})
	bc.UnitGraph.Add(baz, unitgraph.Dep{Unit: bar, ExternName: "bar"})
	bc.AddRoots(foo, baz)
	bc.ExportDirs[foo] = filepath.Join(f.root, "out", "a")
	bc.ExportDirs[baz] = filepath.Join(f.root, "out", "b")
	for _, u := range []*unit.Unit{foo, bar, baz} {
		bc.Packages.Add(u.Package())
		src, err := source.NewPathSource(u.Package().Root, hcl.NewLoader())
		require.NoError(t, err)
		bc.Packages.Sources.Add(src)
	}
	return bc, map[string]*unit.Unit{"foo": foo, "bar": bar, "baz": baz}
}

func TestRun_CompilesSharedDependencyOnce(t *testing.T) {
	// --- Arrange ---
	f := newGraphFixture(t)
	bc, units := sharedContext(t, f)
	compiler := newRecordingCompiler()
	reg := prometheus.NewRegistry()
	targetDir := filepath.Join(f.root, "target")
	r := New(compiler, targetDir, WithJobs(4), WithMetrics(NewMetrics(reg)))

	// --- Act ---
	summary, err := r.RunWithSummary(context.Background(), bc)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, Summary{Compiled: 3}, summary)
	assert.Equal(t, map[string]int{"foo": 1, "bar": 1, "baz": 1}, compiler.calls)

	barArtifact := r.Layout().ArtifactPath(units["bar"])
	assert.FileExists(t, barArtifact)
	assert.Equal(t, []Extern{{Name: "bar", Path: barArtifact}}, compiler.jobs["foo"].Externs)
	assert.Equal(t, []Extern{{Name: "bar", Path: barArtifact}}, compiler.jobs["baz"].Externs)
	assert.Len(t, compiler.jobs["foo"].Inputs, 1, "source files come from the source registry")

	assert.FileExists(t, filepath.Join(f.root, "out", "a", "libfoo.rlib"))
	assert.FileExists(t, filepath.Join(f.root, "out", "b", "libbaz.rmeta"))
	assert.NoFileExists(t, filepath.Join(f.root, "out", "a", "libbaz.rmeta"))
	assert.NoFileExists(t, filepath.Join(f.root, "out", "a", "libbar.rlib"), "dependencies are not exported")
	assert.NoFileExists(t, filepath.Join(targetDir, "debug", "libfoo.rlib"), "uplift is off")

	assert.Equal(t, 3.0, testutil.ToFloat64(r.metrics.units.WithLabelValues("compiled")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.metrics.artifacts.WithLabelValues("export")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.metrics.inFlight))
}

func TestRun_Uplift(t *testing.T) {
	f := newGraphFixture(t)
	foo := f.lib(t, "foo", unit.ModeBuild)
	bc := bcx.New("#0 build")
	bc.UnitGraph.Add(foo)
	bc.AddRoots(foo)
	bc.Uplift = true

	targetDir := filepath.Join(f.root, "target")
	r := New(StampCompiler{}, targetDir, WithJobs(1))
	require.NoError(t, r.Run(context.Background(), bc))

	uplifted := filepath.Join(targetDir, "debug", "libfoo.rlib")
	require.FileExists(t, uplifted)

	var s stamp
	data, err := os.ReadFile(uplifted)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, foo.FingerprintHex(), s.Fingerprint)
	assert.Equal(t, "host", s.Platform)
}

func TestRun_FailureSkipsDependents(t *testing.T) {
	f := newGraphFixture(t)
	bc, _ := sharedContext(t, f)
	qux := f.lib(t, "qux", unit.ModeBuild)
	bc.UnitGraph.Add(qux)
	bc.AddRoots(qux)

	compiler := newRecordingCompiler()
	boom := errors.New("syntax error")
	compiler.failOn["bar"] = boom
	reg := prometheus.NewRegistry()
	r := New(compiler, filepath.Join(f.root, "target"), WithJobs(1), WithMetrics(NewMetrics(reg)))

	summary, err := r.RunWithSummary(context.Background(), bc)
	require.Error(t, err)

	var unitErr *UnitError
	require.ErrorAs(t, err, &unitErr)
	assert.Equal(t, "bar", unitErr.Unit.Key().TargetName)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Compiled+summary.Failed+summary.Skipped)
	assert.GreaterOrEqual(t, summary.Skipped, 2, "foo and baz are skipped")
	assert.Zero(t, compiler.calls["foo"])
	assert.Zero(t, compiler.calls["baz"])
	assert.Equal(t, 1.0, testutil.ToFloat64(r.metrics.units.WithLabelValues("failed")))
}

func TestRun_CancelledContext(t *testing.T) {
	f := newGraphFixture(t)
	bc, _ := sharedContext(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	compiler := newRecordingCompiler()
	summary, err := New(compiler, filepath.Join(f.root, "target")).RunWithSummary(ctx, bc)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, summary.Skipped)
	assert.Empty(t, compiler.calls)
}

func TestRun_InvalidGraph(t *testing.T) {
	f := newGraphFixture(t)
	foo := f.lib(t, "foo", unit.ModeBuild)
	bc := bcx.New("broken")
	bc.AddRoots(foo)

	err := New(StampCompiler{}, f.root).Run(context.Background(), bc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid unit graph")
}
