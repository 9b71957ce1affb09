package batch

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/specialistvlad/buildbatch/internal/bcx"
	"github.com/specialistvlad/buildbatch/internal/ctxlog"
	"github.com/specialistvlad/buildbatch/internal/unitgraph"
)

// Runner compiles a merged build context. It is called at most once per
// batch.
type Runner interface {
	Run(ctx context.Context, bc *bcx.BuildContext) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, bc *bcx.BuildContext) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, bc *bcx.BuildContext) error {
	return f(ctx, bc)
}

// State is the lifecycle state of a Batch.
type State int

const (
	StateAccumulating State = iota
	StateFinalized
	StateReported
	StateExecuted
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateFinalized:
		return "finalized"
	case StateReported:
		return "reported"
	case StateExecuted:
		return "executed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Batch accumulates request contexts and hands the merged result off once.
type Batch struct {
	merger Merger

	mu    sync.Mutex
	state State
	acc   *bcx.BuildContext
	count int
}

// New creates an empty batch that folds with m.
func New(m Merger) *Batch {
	return &Batch{merger: m}
}

// Add folds next into the batch. exportDir, if set, is where next's root
// artifacts must be copied.
func (b *Batch) Add(ctx context.Context, next *bcx.BuildContext, exportDir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateAccumulating {
		return ErrFinalized
	}
	acc, err := b.merger.Merge(ctx, b.acc, next, exportDir)
	if err != nil {
		return err
	}
	b.acc = acc
	b.count++

	ctxlog.FromContext(ctx).Debug("Folded build context into batch.",
		"request", next.Request,
		"export_dir", exportDir,
		"requests", b.count,
		"units", len(acc.UnitGraph),
		"roots", len(acc.Roots),
	)
	return nil
}

// Len returns the number of contexts folded so far.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// State returns the current lifecycle state.
func (b *Batch) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Finalize closes the batch, disables uplift and checks the merged graph.
// It returns the merged context, which must not be modified.
func (b *Batch) Finalize(ctx context.Context) (*bcx.BuildContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateAccumulating {
		return nil, ErrFinalized
	}
	if b.count == 0 {
		return nil, ErrEmptyBatch
	}
	if err := b.acc.Validate(); err != nil {
		return nil, fmt.Errorf("merged unit graph is invalid: %w", err)
	}
	// A single request's context may still be the caller's value.
	final := *b.acc
	final.Uplift = false
	b.acc = &final
	b.state = StateFinalized

	ctxlog.FromContext(ctx).Info("Build requests merged.",
		"requests", b.count,
		"units", len(b.acc.UnitGraph),
		"roots", len(b.acc.Roots),
		"packages", len(b.acc.Packages.Packages),
	)
	return b.acc, nil
}

// Context returns the merged context, or nil while nothing was added.
func (b *Batch) Context() *bcx.BuildContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acc
}

// Report serializes the merged unit graph and roots to w instead of
// compiling anything.
func (b *Batch) Report(ctx context.Context, w io.Writer, format unitgraph.Format) error {
	acc, err := b.handoff(StateReported)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Writing merged unit graph.", "format", format)
	return acc.UnitGraph.Write(w, acc.Roots, format)
}

// Execute hands the merged context to r.
func (b *Batch) Execute(ctx context.Context, r Runner) error {
	acc, err := b.handoff(StateExecuted)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Handing merged build context to the runner.", "units", len(acc.UnitGraph))
	return r.Run(ctx, acc)
}

// handoff moves the batch into its terminal state. A failed report or run
// still counts as the one handoff.
func (b *Batch) handoff(to State) (*bcx.BuildContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateAccumulating:
		return nil, ErrNotFinalized
	case StateReported, StateExecuted:
		return nil, ErrHandedOff
	}
	b.state = to
	return b.acc, nil
}
