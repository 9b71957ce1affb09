package app

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/buildbatch/internal/runner"
	"github.com/specialistvlad/buildbatch/internal/target"
	"github.com/specialistvlad/buildbatch/internal/unitgraph"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	LogFormat string
	LogLevel  string

	// TargetDir is the root of all build output.
	TargetDir string
	// ArtifactDir is the export directory of requests that name none.
	ArtifactDir string
	Jobs        int

	// UnitGraph prints the merged unit graph instead of building.
	UnitGraph       bool
	UnitGraphFormat unitgraph.Format

	StrictMerge bool
	// DryRun writes stamp files instead of invoking the compiler.
	DryRun bool
	// Compiler is the command template run for every unit.
	Compiler string

	VendorDir     string
	HostTriple    string
	TargetConfigs map[string]target.Config

	// MetricsAddr serves /health and /metrics while the run lasts. Empty
	// disables the server.
	MetricsAddr string
}

// NewConfig validates cfg and fills defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.TargetDir == "" {
		cfg.TargetDir = "target"
	}
	format, err := unitgraph.ParseFormat(string(cfg.UnitGraphFormat))
	if err != nil {
		return nil, err
	}
	cfg.UnitGraphFormat = format

	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.Jobs < 0 {
		return nil, errors.New("jobs cannot be negative")
	}
	if !cfg.UnitGraph && !cfg.DryRun && cfg.Compiler == "" {
		return nil, errors.New("no compiler command configured: set build.compiler or use --dry-run")
	}
	if cfg.Compiler != "" {
		if _, err := runner.NewCommandCompiler(cfg.Compiler); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
