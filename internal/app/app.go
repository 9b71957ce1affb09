package app

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/specialistvlad/buildbatch/internal/hcl"
	"github.com/specialistvlad/buildbatch/internal/runner"
	"github.com/specialistvlad/buildbatch/internal/target"
	"github.com/specialistvlad/buildbatch/internal/unit"
	"github.com/specialistvlad/buildbatch/internal/workspace"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	runID    string
	registry *prom.Registry
	metrics  *runner.Metrics

	httpServer *http.Server
	serverAddr string
}

// NewApp creates an application that writes reports to outW and logs to
// logW. Every App gets its own logger, metrics registry and run id.
func NewApp(outW, logW io.Writer, cfg *Config) *App {
	runID := uuid.NewString()
	logger := newLogger(cfg, runID, logW)
	logger.Debug("Logger configured successfully.")

	reg := prom.NewRegistry()
	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		runID:    runID,
		registry: reg,
		metrics:  runner.NewMetrics(reg),
	}
}

// RunID identifies this run in logs.
func (a *App) RunID() string {
	return a.runID
}

// Registry returns the application's metrics registry. This is primarily
// for testing.
func (a *App) Registry() *prom.Registry {
	return a.registry
}

// newResolver builds a resolver with a fresh interner for one run.
func (a *App) newResolver() *workspace.Resolver {
	return workspace.NewResolver(
		hcl.NewLoader(),
		unit.NewInterner(),
		target.StaticProber{HostTriple: a.config.HostTriple},
		workspace.Settings{
			VendorDir:     a.config.VendorDir,
			TargetConfigs: a.config.TargetConfigs,
		},
	)
}

// newRunner builds the runner the merged context is executed by.
func (a *App) newRunner() (*runner.Runner, error) {
	var compiler runner.Compiler = runner.StampCompiler{}
	if !a.config.DryRun {
		c, err := runner.NewCommandCompiler(a.config.Compiler)
		if err != nil {
			return nil, err
		}
		compiler = c
	}
	return runner.New(compiler, a.config.TargetDir,
		runner.WithJobs(a.config.Jobs),
		runner.WithMetrics(a.metrics),
	), nil
}
