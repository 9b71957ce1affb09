package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/specialistvlad/buildbatch/internal/ctxlog"
)

// CommandCompiler runs an external command per unit. The command template
// is split like a shell would and every token is expanded:
//
//	{name} {src} {out} {mode} {profile} {opt_level} {target} {pkg} {version}
//
// are replaced inside tokens, while the whole-token placeholders
//
//	{externs}   --extern name=path for every dependency
//	{features}  --cfg feature="x" for every enabled feature
//	{args}      the platform's flags followed by the unit's extra arguments
//
// expand to any number of arguments.
type CommandCompiler struct {
	argv []string
}

var _ Compiler = (*CommandCompiler)(nil)

// NewCommandCompiler parses the command template.
func NewCommandCompiler(template string) (*CommandCompiler, error) {
	argv, err := shellwords.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("invalid compiler command %q: %w", template, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("compiler command is empty")
	}
	return &CommandCompiler{argv: argv}, nil
}

// Command returns the expanded argv for a job.
func (c *CommandCompiler) Command(job Job) []string {
	u := job.Unit
	triple := job.Info.Triple
	replacer := strings.NewReplacer(
		"{name}", strings.ReplaceAll(u.Target().Name, "-", "_"),
		"{src}", job.Src,
		"{out}", job.Output,
		"{mode}", string(u.Mode()),
		"{profile}", u.Profile().Name,
		"{opt_level}", u.Profile().OptLevel,
		"{target}", triple,
		"{pkg}", u.Key().Package.Name,
		"{version}", u.Key().Package.Version,
	)

	var out []string
	for _, tok := range c.argv {
		switch tok {
		case "{externs}":
			for _, e := range job.Externs {
				out = append(out, "--extern", e.Name+"="+e.Path)
			}
		case "{features}":
			for _, f := range u.Features() {
				out = append(out, "--cfg", fmt.Sprintf("feature=%q", f))
			}
		case "{args}":
			out = append(out, job.Config.Flags...)
			out = append(out, job.Args...)
		default:
			out = append(out, replacer.Replace(tok))
		}
	}
	return out
}

// Compile implements Compiler.
func (c *CommandCompiler) Compile(ctx context.Context, job Job) error {
	argv := c.Command(job)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running compiler.", "argv", argv)

	if err := os.MkdirAll(filepath.Dir(job.Output), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = job.Unit.Package().Root
	cmd.Env = append(os.Environ(),
		"BUILDBATCH_PKG_NAME="+job.Unit.Key().Package.Name,
		"BUILDBATCH_PKG_VERSION="+job.Unit.Key().Package.Version,
		"BUILDBATCH_PROFILE="+job.Unit.Profile().Name,
		"BUILDBATCH_TARGET="+job.Info.Triple,
		"BUILDBATCH_OUT="+job.Output,
	)
	if job.Config.Linker != "" {
		cmd.Env = append(cmd.Env, "BUILDBATCH_LINKER="+job.Config.Linker)
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(output.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", argv[0], err)
		}
		return fmt.Errorf("%s: %w\n%s", argv[0], err, msg)
	}
	if output.Len() > 0 {
		logger.Debug("Compiler output.", "output", strings.TrimSpace(output.String()))
	}
	if _, err := os.Stat(job.Output); err != nil {
		return fmt.Errorf("%s did not produce %s", argv[0], job.Output)
	}
	return nil
}
