package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/specialistvlad/buildbatch/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// requestFlags are the flags of one request segment.
type requestFlags struct {
	req          workspace.Request
	features     []string
	outputFormat string
	ran          bool
}

func newRequestCommand(command workspace.Command, rf *requestFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           string(command),
		Short:         fmt.Sprintf("One %s request of the batch.", command),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rf.ran = true
			return rf.finish(cmd, args)
		},
	}
	if command == workspace.CommandDoc {
		cmd.Use = "doc [options] [-- doc args]"
		cmd.Args = func(cmd *cobra.Command, args []string) error {
			if cmd.ArgsLenAtDash() != 0 && len(args) > 0 {
				return fmt.Errorf("unexpected argument %q: pass extra doc args after --", args[0])
			}
			return nil
		}
	}

	fs := cmd.Flags()
	r := &rf.req
	fs.StringVar(&r.ManifestPath, "manifest-path", ".", "Path to the package manifest or its directory.")
	fs.StringArrayVarP(&r.Packages, "package", "p", nil, "Package to build. May be repeated.")
	fs.BoolVar(&r.Lib, "lib", false, "Build only this package's library.")
	fs.StringArrayVar(&r.Bins, "bin", nil, "Build only the named binary. May be repeated.")
	fs.BoolVar(&r.AllBins, "bins", false, "Build all binaries.")
	fs.StringArrayVar(&r.Examples, "example", nil, "Build only the named example. May be repeated.")
	fs.BoolVar(&r.AllTargets, "all-targets", false, "Build all targets.")
	fs.BoolVar(&r.Release, "release", false, "Build with the release profile.")
	fs.StringVar(&r.Profile, "profile", "", "Build with the given profile.")
	fs.StringArrayVarP(&rf.features, "features", "F", nil, "Space or comma separated list of features to activate.")
	fs.BoolVar(&r.AllFeatures, "all-features", false, "Activate all available features.")
	fs.BoolVar(&r.NoDefaultFeatures, "no-default-features", false, "Do not activate the default feature.")
	fs.StringArrayVar(&r.Targets, "target", nil, "Build for the target triple. May be repeated.")
	fs.StringVar(&r.ExportDir, "artifact-dir", "", "Copy final artifacts to this directory.")
	if command == workspace.CommandDoc {
		fs.StringVar(&rf.outputFormat, "output-format", "html", "Documentation format. Options: 'html' or 'json'.")
	}
	fs.SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "out-dir" {
			name = "artifact-dir"
		}
		return pflag.NormalizedName(name)
	})
	return cmd
}

// finish applies the flags that need post-processing.
func (rf *requestFlags) finish(cmd *cobra.Command, args []string) error {
	for _, f := range rf.features {
		rf.req.Features = append(rf.req.Features, strings.FieldsFunc(f, func(r rune) bool {
			return r == ',' || r == ' '
		})...)
	}
	if rf.req.Command != workspace.CommandDoc {
		return nil
	}
	switch strings.ToLower(rf.outputFormat) {
	case "html":
	case "json":
		rf.req.DocJSON = true
	default:
		return fmt.Errorf("invalid output format %q: must be 'html' or 'json'", rf.outputFormat)
	}
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		rf.req.ExtraArgs = append([]string(nil), args[dash:]...)
	}
	return nil
}

// parseRequest parses one segment, which starts with the command name.
func parseRequest(seg []string, output io.Writer) (workspace.Request, bool, error) {
	if len(seg) == 0 {
		return workspace.Request{}, false, fmt.Errorf("empty request: expected build, check or doc")
	}
	command, err := workspace.ParseCommand(seg[0])
	if err != nil {
		return workspace.Request{}, false, err
	}

	rf := &requestFlags{req: workspace.Request{Command: command}}
	cmd := newRequestCommand(command, rf)
	cmd.SetArgs(seg[1:])
	cmd.SetOut(output)
	cmd.SetErr(output)
	if err := cmd.Execute(); err != nil {
		return workspace.Request{}, false, err
	}
	if !rf.ran {
		return workspace.Request{}, true, nil
	}
	return rf.req, false, nil
}
