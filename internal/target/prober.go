package target

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"github.com/specialistvlad/buildbatch/internal/unit"
)

// Prober discovers platform information.
type Prober interface {
	Probe(ctx context.Context, kind unit.CompileKind) (Info, error)
}

// StaticProber derives platform information from the target triple alone.
type StaticProber struct {
	// HostTriple overrides the detected host triple.
	HostTriple string
}

var _ Prober = StaticProber{}

// Probe parses the triple of kind, or of the host for the host kind.
func (p StaticProber) Probe(_ context.Context, kind unit.CompileKind) (Info, error) {
	triple := kind.Triple
	if kind.IsHost() {
		triple = p.HostTriple
		if triple == "" {
			triple = HostTriple()
		}
	}
	return ParseTriple(triple)
}

// HostTriple returns the triple of the running machine.
func HostTriple() string {
	arch := map[string]string{
		"amd64":   "x86_64",
		"arm64":   "aarch64",
		"386":     "i686",
		"arm":     "armv7",
		"riscv64": "riscv64gc",
	}[runtime.GOARCH]
	if arch == "" {
		arch = runtime.GOARCH
	}
	switch runtime.GOOS {
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	case "linux":
		return arch + "-unknown-linux-gnu"
	}
	return arch + "-unknown-" + runtime.GOOS
}

// ParseTriple splits a target triple of the form arch-vendor-os[-env].
func ParseTriple(triple string) (Info, error) {
	parts := strings.Split(triple, "-")
	if len(parts) < 3 || slices.Contains(parts, "") {
		return Info{}, fmt.Errorf("malformed target triple %q", triple)
	}
	info := Info{
		Triple: triple,
		Arch:   parts[0],
		Vendor: parts[1],
		OS:     parts[2],
	}
	if len(parts) > 3 {
		info.Env = strings.Join(parts[3:], "-")
	}
	// Bare-metal triples have no vendor: arch-none-abi.
	if info.Vendor == "none" {
		info.Vendor = "unknown"
		info.OS = "none"
		info.Env = strings.Join(parts[2:], "-")
	}
	if info.OS == "darwin" {
		info.OS = "macos"
	}
	switch {
	case info.OS == "windows":
		info.Family = "windows"
	case strings.HasPrefix(info.Arch, "wasm"):
		info.Family = "wasm"
	case info.OS == "none":
		info.Family = ""
	default:
		info.Family = "unix"
	}
	info.Cfg = []string{
		fmt.Sprintf("target_arch=%q", info.Arch),
		fmt.Sprintf("target_vendor=%q", info.Vendor),
		fmt.Sprintf("target_os=%q", info.OS),
		fmt.Sprintf("target_env=%q", info.Env),
	}
	if info.Family != "" {
		info.Cfg = append(info.Cfg, info.Family, fmt.Sprintf("target_family=%q", info.Family))
	}
	return info, nil
}
