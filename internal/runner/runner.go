package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/buildbatch/internal/bcx"
	"github.com/specialistvlad/buildbatch/internal/ctxlog"
	"github.com/specialistvlad/buildbatch/internal/fsutil"
	"github.com/specialistvlad/buildbatch/internal/unit"
)

// Runner compiles every unit of a build context.
type Runner struct {
	compiler Compiler
	layout   Layout
	jobs     int
	metrics  *Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithJobs sets the number of parallel workers.
func WithJobs(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.jobs = n
		}
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a runner writing below targetDir.
func New(compiler Compiler, targetDir string, opts ...Option) *Runner {
	r := &Runner{
		compiler: compiler,
		layout:   Layout{TargetDir: targetDir},
		jobs:     runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Layout returns the artifact layout of the runner.
func (r *Runner) Layout() Layout {
	return r.layout
}

// Summary counts the outcome of a run.
type Summary struct {
	Compiled int
	Failed   int
	Skipped  int
}

// run is the state of one Run call.
type run struct {
	*Runner
	bc         *bcx.BuildContext
	store      *store
	depCounts  map[*unit.Unit]*atomic.Int32
	dependents map[*unit.Unit][]*unit.Unit
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// Run compiles the context and returns the first failure as a *UnitError.
func (r *Runner) Run(ctx context.Context, bc *bcx.BuildContext) error {
	_, err := r.RunWithSummary(ctx, bc)
	return err
}

// RunWithSummary is Run that also reports how many units were compiled,
// failed or skipped.
func (r *Runner) RunWithSummary(ctx context.Context, bc *bcx.BuildContext) (Summary, error) {
	logger := ctxlog.FromContext(ctx)
	if err := bc.Validate(); err != nil {
		return Summary{}, fmt.Errorf("refusing to run an invalid unit graph: %w", err)
	}

	order := bc.UnitGraph.Order()
	rn := &run{
		Runner:     r,
		bc:         bc,
		store:      newStore(order),
		depCounts:  make(map[*unit.Unit]*atomic.Int32, len(order)),
		dependents: bc.UnitGraph.Dependents(),
	}
	for _, u := range order {
		n := &atomic.Int32{}
		n.Store(int32(len(uniqueDeps(bc, u))))
		rn.depCounts[u] = n
	}
	// Dependents lists a unit once per edge; the counters count distinct
	// dependencies, so the reverse lists must be distinct too.
	for u, ds := range rn.dependents {
		rn.dependents[u] = bcx.AppendUnique(nil, ds...)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rn.cancel = cancel

	ready := make(chan *unit.Unit, len(order))
	rn.wg.Add(len(order))
	roots := 0
	for _, u := range order {
		if rn.depCounts[u].Load() == 0 {
			ready <- u
			roots++
		}
	}
	logger.Debug("Starting worker pool.", "workers", r.jobs, "units", len(order), "ready", roots)

	var workers sync.WaitGroup
	for i := 0; i < r.jobs; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			rn.worker(runCtx, ready, id)
		}(i)
	}

	rn.wg.Wait()
	close(ready)
	workers.Wait()

	var (
		summary   Summary
		rootCause error
		cancelled error
	)
	for _, u := range order {
		switch rn.store.status(u) {
		case StatusDone:
			summary.Compiled++
		case StatusSkipped:
			summary.Skipped++
		case StatusFailed:
			summary.Failed++
			err := &UnitError{Unit: u, Err: rn.store.err(u)}
			// A unit interrupted by the cancellation is a symptom.
			if errors.Is(err.Err, context.Canceled) {
				if cancelled == nil {
					cancelled = err
				}
			} else if rootCause == nil {
				rootCause = err
			}
		}
	}
	if rootCause == nil {
		rootCause = cancelled
	}
	logger.Info("Build finished.",
		"compiled", summary.Compiled,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	if rootCause != nil {
		return summary, rootCause
	}
	if err := ctx.Err(); err != nil && summary.Skipped > 0 {
		return summary, err
	}
	return summary, nil
}

// worker is the processing loop of one worker.
func (rn *run) worker(ctx context.Context, ready chan *unit.Unit, id int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", id)

	for u := range ready {
		if ctx.Err() != nil {
			rn.skip(ctx, u, context.Cause(ctx).Error())
			continue
		}
		if !rn.store.claim(u) {
			continue
		}
		unitCtx, unitLogger := ctxlog.With(ctx, "workerID", id, "unit", u.String())
		unitLogger.Debug("Worker picked up unit.")

		if err := rn.execute(unitCtx, u); err != nil {
			unitLogger.Error("Unit failed.", "error", err)
			rn.store.fail(u, err)
			rn.metrics.result("failed")
			rn.cancel()
			rn.skipDependents(ctx, u)
			rn.wg.Done()
			continue
		}
		rn.store.setStatus(u, StatusDone)
		rn.metrics.result("compiled")

		for _, dependent := range rn.dependents[u] {
			if rn.depCounts[dependent].Add(-1) == 0 {
				unitLogger.Debug("Unlocking dependent unit.", "dependent", dependent.String())
				ready <- dependent
			}
		}
		rn.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", id)
}

// skip marks a pending unit and, recursively, its dependents as skipped.
func (rn *run) skip(ctx context.Context, u *unit.Unit, cause string) {
	if !rn.store.skip(u, &skippedError{cause: cause}) {
		return
	}
	ctxlog.FromContext(ctx).Warn("Skipping unit.", "unit", u.String(), "reason", cause)
	rn.metrics.result("skipped")
	rn.wg.Done()
	rn.skipDependents(ctx, u)
}

func (rn *run) skipDependents(ctx context.Context, u *unit.Unit) {
	for _, dependent := range rn.dependents[u] {
		rn.skip(ctx, dependent, fmt.Sprintf("dependency %s did not complete", u))
	}
}

// execute compiles u and places its artifact.
func (rn *run) execute(ctx context.Context, u *unit.Unit) error {
	job, err := rn.job(ctx, u)
	if err != nil {
		return err
	}

	rn.metrics.started()
	start := time.Now()
	err = rn.compiler.Compile(ctx, job)
	rn.metrics.finished()
	rn.metrics.observeCompile(u.Mode(), time.Since(start))
	if err != nil {
		return err
	}
	rn.store.setArtifact(u, job.Output)

	if !rn.bc.IsRoot(u) {
		return nil
	}
	if dir := rn.bc.ExportDirs[u]; dir != "" {
		dst := filepath.Join(dir, PlainName(u))
		if err := fsutil.CopyFile(job.Output, dst); err != nil {
			return fmt.Errorf("failed to export artifact to %s: %w", dst, err)
		}
		rn.metrics.copied("export")
		ctxlog.FromContext(ctx).Debug("Exported artifact.", "path", dst)
	}
	if rn.bc.Uplift {
		dst := rn.layout.UpliftPath(u)
		if err := fsutil.CopyFile(job.Output, dst); err != nil {
			return fmt.Errorf("failed to uplift artifact to %s: %w", dst, err)
		}
		rn.metrics.copied("uplift")
	}
	return nil
}

// job assembles the compiler input of u.
func (rn *run) job(ctx context.Context, u *unit.Unit) (Job, error) {
	pkg := u.Package()
	job := Job{
		Unit:   u,
		Src:    filepath.Join(pkg.Root, filepath.FromSlash(u.Target().SrcPath)),
		Output: rn.layout.ArtifactPath(u),
		Args:   rn.bc.ExtraCompilerArgs[u],
	}
	if rn.bc.TargetData != nil {
		job.Config = rn.bc.TargetData.Config[u.Kind()]
		job.Info = rn.bc.TargetData.Info[u.Kind()]
	}
	if rn.bc.Packages != nil {
		if src, ok := rn.bc.Packages.Sources.Get(pkg.ID.Source); ok {
			files, err := src.Files(ctx, pkg)
			if err != nil {
				return Job{}, err
			}
			job.Inputs = files
		}
	}
	for _, d := range rn.bc.UnitGraph[u] {
		path, ok := rn.store.artifact(d.Unit)
		if !ok {
			return Job{}, errors.New("internal error: dependency artifact missing for " + d.Unit.String())
		}
		job.Externs = append(job.Externs, Extern{Name: d.ExternName, Path: path})
	}
	return job, nil
}

func uniqueDeps(bc *bcx.BuildContext, u *unit.Unit) []*unit.Unit {
	var out []*unit.Unit
	for _, d := range bc.UnitGraph[u] {
		out = bcx.AppendUnique(out, d.Unit)
	}
	return out
}
