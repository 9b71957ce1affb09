package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/buildbatch/internal/batch"
	"github.com/specialistvlad/buildbatch/internal/ctxlog"
	"github.com/specialistvlad/buildbatch/internal/workspace"
)

// Run resolves every request, merges them into one build context and
// either prints the merged unit graph or builds it.
func (a *App) Run(ctx context.Context, reqs []workspace.Request) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "requests", len(reqs))

	if len(reqs) == 0 {
		return errors.New("no build requests given")
	}

	if a.config.MetricsAddr != "" {
		if err := a.startServer(ctx, a.config.MetricsAddr); err != nil {
			return err
		}
		defer a.closeServer(ctx)
	}

	for i := range reqs {
		if reqs[i].ExportDir == "" {
			reqs[i].ExportDir = a.config.ArtifactDir
		}
	}

	contexts, err := a.newResolver().ResolveAll(ctx, reqs)
	if err != nil {
		return err
	}

	b := batch.New(batch.Merger{Strict: a.config.StrictMerge})
	for i, bc := range contexts {
		if err := b.Add(ctx, bc, reqs[i].ExportDir); err != nil {
			return fmt.Errorf("failed to merge request #%d: %w", i, err)
		}
	}
	if a.config.UnitGraph {
		if _, err := b.Finalize(ctx); err != nil {
			return err
		}
		return b.Report(ctx, a.outW, a.config.UnitGraphFormat)
	}

	// The runner is ready before Finalize, so a finalized batch is always
	// handed off.
	r, err := a.newRunner()
	if err != nil {
		return err
	}
	if _, err := b.Finalize(ctx); err != nil {
		return err
	}
	a.logger.Info("Starting build.", "jobs", a.config.Jobs, "target_dir", a.config.TargetDir, "dry_run", a.config.DryRun)
	if err := b.Execute(ctx, r); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}
