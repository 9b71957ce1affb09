package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/specialistvlad/buildbatch/internal/app"
	"github.com/specialistvlad/buildbatch/internal/workspace"
)

// SegmentSeparator splits the command line into the global segment and one
// segment per build request.
const SegmentSeparator = "---"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// Invocation is a fully parsed command line.
type Invocation struct {
	Config   *app.Config
	Requests []workspace.Request
}

// Parse processes command-line arguments. It returns the parsed invocation,
// a boolean indicating if the program should exit cleanly (help was
// printed), or an ExitError.
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	slog.Debug("CLI parser started.")

	if len(args) > 0 && args[0] == "batch" {
		args = args[1:]
	}
	segments := splitSegments(args)
	if len(args) == 0 || len(segments) == 1 && containsHelp(segments[0]) {
		printUsage(output)
		return nil, true, nil
	}
	if len(segments) == 1 {
		return nil, false, usageError("no build requests given: separate each request with %q, e.g. buildbatch --- build --- check", SegmentSeparator)
	}

	g, shouldExit, err := parseGlobals(segments[0], output)
	if err != nil || shouldExit {
		return nil, shouldExit, err
	}
	slog.Debug("Global arguments parsed successfully.")

	reqs := make([]workspace.Request, 0, len(segments)-1)
	for i, seg := range segments[1:] {
		req, shouldExit, err := parseRequest(seg, output)
		if err != nil {
			return nil, false, usageError("request #%d: %s", i, err.Error())
		}
		if shouldExit {
			return nil, true, nil
		}
		reqs = append(reqs, req)
	}

	config, err := g.config()
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "requests", len(reqs))
	return &Invocation{Config: config, Requests: reqs}, false, nil
}

// splitSegments cuts args at every SegmentSeparator. The first segment
// holds the global flags and may be empty.
func splitSegments(args []string) [][]string {
	segments := [][]string{{}}
	for _, a := range args {
		if a == SegmentSeparator {
			segments = append(segments, []string{})
			continue
		}
		last := len(segments) - 1
		segments[last] = append(segments[last], a)
	}
	return segments
}

func containsHelp(args []string) bool {
	for _, a := range args {
		if a == "-h" || a == "--help" {
			return true
		}
	}
	return false
}

func printUsage(output io.Writer) {
	fmt.Fprint(output, `
buildbatch - Build several requests as one merged unit graph.

Usage:
  buildbatch [global options] --- build [options] --- check [options] --- doc [options] [-- doc args]

Every segment after "---" is one build request. Shared dependencies are
compiled once for the whole batch. Use "buildbatch --- <command> --help"
for the options of a request.

Global options:
`)
	fs := newGlobalCommand(&globals{}).Flags()
	fs.SetOutput(output)
	fs.PrintDefaults()
}
