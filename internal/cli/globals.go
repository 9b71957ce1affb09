package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/specialistvlad/buildbatch/internal/app"
	"github.com/specialistvlad/buildbatch/internal/target"
	"github.com/specialistvlad/buildbatch/internal/unitgraph"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// SettingsEnv names an explicit settings file. Without it buildbatch.yaml,
// .toml or .json is looked up in the working directory.
const SettingsEnv = "BUILDBATCH_SETTINGS"

// globals are the flags of the first segment.
type globals struct {
	unitGraph       bool
	unitGraphFormat string
	targetDir       string
	verbose         int
	logFormat       string
	logLevel        string
	jobs            int
	strictMerge     bool
	dryRun          bool
	metricsAddr     string
	overrides       []string

	v *viper.Viper
}

// flagKeys maps global flags onto settings keys. Flags always win.
var flagKeys = map[string]string{
	"target-dir":        "build.target-dir",
	"jobs":              "build.jobs",
	"log-format":        "log.format",
	"log-level":         "log.level",
	"unit-graph-format": "build.unit-graph-format",
}

func newGlobalCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "buildbatch",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd.Flags())
		},
	}
	fs := cmd.Flags()
	fs.BoolVar(&g.unitGraph, "unit-graph", false, "Print the merged unit graph instead of building.")
	fs.StringVar(&g.unitGraphFormat, "unit-graph-format", "json", "Unit graph output format. Options: 'json' or 'yaml'.")
	fs.StringVar(&g.targetDir, "target-dir", "target", "Directory for all generated artifacts.")
	fs.CountVarP(&g.verbose, "verbose", "v", "Use verbose output (debug logging).")
	fs.StringVar(&g.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	fs.StringVar(&g.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.IntVarP(&g.jobs, "jobs", "j", 0, "Number of parallel jobs. 0 uses the number of CPUs.")
	fs.BoolVar(&g.strictMerge, "strict-merge", false, "Fail when two requests set different values for the same key.")
	fs.BoolVar(&g.dryRun, "dry-run", false, "Write stamp files instead of invoking the compiler.")
	fs.StringVar(&g.metricsAddr, "metrics-addr", "", "Serve /health and /metrics on this address while building.")
	fs.StringArrayVar(&g.overrides, "config", nil, "Override a setting, as KEY=VALUE. May be repeated.")
	return cmd
}

func parseGlobals(args []string, output io.Writer) (*globals, bool, error) {
	g := &globals{}
	cmd := newGlobalCommand(g)
	cmd.SetArgs(args)
	cmd.SetOut(output)
	cmd.SetErr(output)
	if err := cmd.Execute(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if g.v == nil {
		// Help was printed, RunE never ran.
		return nil, true, nil
	}
	return g, false, nil
}

// load reads the settings file, the environment and --config overrides,
// then lets every changed flag take precedence.
func (g *globals) load(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetEnvPrefix("BUILDBATCH")
	v.AutomaticEnv()

	explicit := os.Getenv(SettingsEnv)
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("buildbatch")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read settings: %w", err)
		}
	}

	for _, o := range g.overrides {
		key, value, ok := strings.Cut(o, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("invalid --config value %q: expected KEY=VALUE", o)
		}
		v.Set(strings.TrimSpace(key), value)
	}

	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f.Changed || !v.IsSet(key) {
			continue
		}
		if err := f.Value.Set(v.GetString(key)); err != nil {
			return fmt.Errorf("invalid setting %s: %w", key, err)
		}
	}
	if g.verbose > 0 {
		g.logLevel = "debug"
	}
	g.v = v
	return nil
}

// config builds the validated application config.
func (g *globals) config() (*app.Config, error) {
	targets, err := targetConfigs(g.v)
	if err != nil {
		return nil, err
	}
	return app.NewConfig(app.Config{
		LogFormat:       strings.ToLower(g.logFormat),
		LogLevel:        strings.ToLower(g.logLevel),
		TargetDir:       g.targetDir,
		ArtifactDir:     g.v.GetString("build.artifact-dir"),
		Jobs:            g.jobs,
		UnitGraph:       g.unitGraph,
		UnitGraphFormat: unitgraph.Format(strings.ToLower(g.unitGraphFormat)),
		StrictMerge:     g.strictMerge,
		DryRun:          g.dryRun,
		Compiler:        g.v.GetString("build.compiler"),
		VendorDir:       g.v.GetString("vendor-dir"),
		HostTriple:      g.v.GetString("build.host-triple"),
		TargetConfigs:   targets,
		MetricsAddr:     g.metricsAddr,
	})
}

// targetConfigs reads the target.<triple> tables. The key "host" applies
// to host builds.
func targetConfigs(v *viper.Viper) (map[string]target.Config, error) {
	seen := make(map[string]struct{})
	var triples []string
	for _, key := range v.AllKeys() {
		rest, ok := strings.CutPrefix(key, "target.")
		if !ok {
			continue
		}
		triple, _, _ := strings.Cut(rest, ".")
		if _, dup := seen[triple]; dup {
			continue
		}
		seen[triple] = struct{}{}
		triples = append(triples, triple)
	}
	if len(triples) == 0 {
		return nil, nil
	}
	sort.Strings(triples)

	out := make(map[string]target.Config, len(triples))
	for _, triple := range triples {
		prefix := "target." + triple + "."
		flags, err := stringList(v.Get(prefix + "flags"))
		if err != nil {
			return nil, fmt.Errorf("invalid setting %sflags: %w", prefix, err)
		}
		out[triple] = target.Config{
			Linker: v.GetString(prefix + "linker"),
			Runner: v.GetString(prefix + "runner"),
			Flags:  flags,
		}
	}
	return out, nil
}

// stringList accepts a list or a shell-quoted string.
func stringList(raw any) ([]string, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return shellwords.Parse(val)
	case []string:
		return val, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list or a string, got %T", raw)
}
