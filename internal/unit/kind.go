package unit

import "fmt"

// CompileKind is the platform a unit is compiled for. The zero value is the
// host platform.
type CompileKind struct {
	Triple string
}

// Host is the compile kind of units built for the machine running the build.
var Host = CompileKind{}

// Target returns the compile kind for a cross-compilation target triple.
func Target(triple string) CompileKind {
	return CompileKind{Triple: triple}
}

// IsHost reports whether the kind is the host platform.
func (k CompileKind) IsHost() bool {
	return k.Triple == ""
}

// String returns "host" or the target triple.
func (k CompileKind) String() string {
	if k.IsHost() {
		return "host"
	}
	return k.Triple
}

// Mode is what the compiler is asked to produce for a unit.
type Mode string

const (
	// ModeBuild produces a linkable artifact.
	ModeBuild Mode = "build"
	// ModeCheck type-checks and emits metadata only.
	ModeCheck Mode = "check"
	// ModeCheckTest type-checks with the test harness enabled.
	ModeCheckTest Mode = "check-test"
	// ModeDoc renders HTML documentation.
	ModeDoc Mode = "doc"
	// ModeDocJSON renders documentation as JSON.
	ModeDocJSON Mode = "doc-json"
)

// IsDoc reports whether the mode produces documentation.
func (m Mode) IsDoc() bool {
	return m == ModeDoc || m == ModeDocJSON
}

// IsCheck reports whether the mode only type-checks.
func (m Mode) IsCheck() bool {
	return m == ModeCheck || m == ModeCheckTest
}

// Profile is the set of compiler settings a unit is built with.
type Profile struct {
	Name     string `json:"name" yaml:"name"`
	OptLevel string `json:"opt_level" yaml:"opt_level"`
	Debug    bool   `json:"debuginfo" yaml:"debuginfo"`
	Strip    bool   `json:"strip" yaml:"strip"`
}

// Built-in profiles.
var (
	DevProfile     = Profile{Name: "dev", OptLevel: "0", Debug: true}
	ReleaseProfile = Profile{Name: "release", OptLevel: "3", Strip: true}
	TestProfile    = Profile{Name: "test", OptLevel: "0", Debug: true}
	BenchProfile   = Profile{Name: "bench", OptLevel: "3"}
)

// ProfileByName returns a built-in profile.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case "", "dev", "debug":
		return DevProfile, nil
	case "release":
		return ReleaseProfile, nil
	case "test":
		return TestProfile, nil
	case "bench":
		return BenchProfile, nil
	}
	return Profile{}, fmt.Errorf("unknown profile %q (expected dev, release, test or bench)", name)
}

// DirName is the directory the profile's artifacts live in. The dev
// profile keeps its historical "debug" directory name.
func (p Profile) DirName() string {
	if p.Name == "dev" {
		return "debug"
	}
	return p.Name
}
