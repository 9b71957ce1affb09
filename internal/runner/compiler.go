package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/buildbatch/internal/target"
	"github.com/specialistvlad/buildbatch/internal/unit"
)

// Compiler produces the artifact of one unit.
type Compiler interface {
	Compile(ctx context.Context, job Job) error
}

// Extern is a dependency artifact a job links against.
type Extern struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Job is everything a compiler needs for one unit.
type Job struct {
	Unit *unit.Unit
	// Src is the absolute path of the target's entry point.
	Src string
	// Inputs are all source files of the package.
	Inputs []string
	// Output is the artifact path the compiler must write.
	Output  string
	Externs []Extern
	// Args are extra compiler arguments for this unit.
	Args   []string
	Config target.Config
	Info   target.Info
}

// StampCompiler writes a small JSON stamp instead of invoking a compiler.
// It is used for dry runs and tests.
type StampCompiler struct{}

var _ Compiler = StampCompiler{}

type stamp struct {
	Package     string   `json:"package"`
	Target      string   `json:"target"`
	Mode        string   `json:"mode"`
	Profile     string   `json:"profile"`
	Platform    string   `json:"platform"`
	Features    []string `json:"features"`
	Fingerprint string   `json:"fingerprint"`
	Src         string   `json:"src"`
	Inputs      int      `json:"inputs"`
	Externs     []Extern `json:"externs"`
	Args        []string `json:"args,omitempty"`
}

// Compile implements Compiler.
func (StampCompiler) Compile(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u := job.Unit
	data, err := json.MarshalIndent(stamp{
		Package:     u.Key().Package.String(),
		Target:      u.Target().Name,
		Mode:        string(u.Mode()),
		Profile:     u.Profile().Name,
		Platform:    u.Kind().String(),
		Features:    u.Features(),
		Fingerprint: u.FingerprintHex(),
		Src:         job.Src,
		Inputs:      len(job.Inputs),
		Externs:     job.Externs,
		Args:        job.Args,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return os.WriteFile(job.Output, append(data, '\n'), 0644)
}
