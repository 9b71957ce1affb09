package workspace

import (
	"fmt"

	"github.com/specialistvlad/buildbatch/internal/unit"
)

// Command is the kind of build a request asks for.
type Command string

const (
	CommandBuild Command = "build"
	CommandCheck Command = "check"
	CommandDoc   Command = "doc"
)

// ParseCommand validates a command name.
func ParseCommand(s string) (Command, error) {
	switch c := Command(s); c {
	case CommandBuild, CommandCheck, CommandDoc:
		return c, nil
	}
	return "", fmt.Errorf("unknown command %q (expected build, check or doc)", s)
}

// Request is one build request as given on the command line.
type Request struct {
	Command Command
	// ManifestPath is the package manifest, or the directory holding it.
	ManifestPath string
	// Packages selects packages of the dependency closure by name. Empty
	// selects the package of ManifestPath.
	Packages []string

	Lib        bool
	Bins       []string
	AllBins    bool
	Examples   []string
	AllTargets bool

	Release bool
	Profile string

	Features          []string
	AllFeatures       bool
	NoDefaultFeatures bool

	// Targets are the target triples to build for. Empty builds for the host.
	Targets []string
	// ExportDir is where the artifacts of the request's roots are copied.
	ExportDir string
	// ExtraArgs are passed to the compiler for the root units only.
	ExtraArgs []string
	// DocJSON renders documentation as JSON instead of HTML.
	DocJSON bool
}

// Label identifies the request in logs and errors.
func (r Request) Label(index int) string {
	return fmt.Sprintf("#%d %s", index, r.Command)
}

// profile picks the compilation profile of the request.
func (r Request) profile() (unit.Profile, error) {
	if r.Profile != "" {
		if r.Release && r.Profile != "release" {
			return unit.Profile{}, fmt.Errorf("conflicting profile selection: --release and --profile %s", r.Profile)
		}
		return unit.ProfileByName(r.Profile)
	}
	if r.Release {
		return unit.ReleaseProfile, nil
	}
	return unit.DevProfile, nil
}

// rootMode is the mode of the request's root units.
func (r Request) rootMode(profile unit.Profile) (unit.Mode, error) {
	switch r.Command {
	case CommandBuild:
		return unit.ModeBuild, nil
	case CommandCheck:
		if profile.Name == unit.TestProfile.Name {
			return unit.ModeCheckTest, nil
		}
		return unit.ModeCheck, nil
	case CommandDoc:
		if r.DocJSON {
			return unit.ModeDocJSON, nil
		}
		return unit.ModeDoc, nil
	}
	return "", fmt.Errorf("unknown command %q", r.Command)
}

// kinds returns the compile kinds requested, host when none.
func (r Request) kinds() []unit.CompileKind {
	if len(r.Targets) == 0 {
		return []unit.CompileKind{unit.Host}
	}
	kinds := make([]unit.CompileKind, 0, len(r.Targets))
	for _, t := range r.Targets {
		k := unit.Target(t)
		if t == "host" {
			k = unit.Host
		}
		kinds = append(kinds, k)
	}
	return kinds
}
