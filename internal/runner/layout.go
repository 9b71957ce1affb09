package runner

import (
	"path/filepath"
	"strings"

	"github.com/specialistvlad/buildbatch/internal/manifest"
	"github.com/specialistvlad/buildbatch/internal/unit"
)

// Layout maps units to paths below the target directory:
//
//	<target-dir>/[<triple>/]<profile>/deps/<file>-<fingerprint><ext>
//	<target-dir>/[<triple>/]<profile>/<file><ext>     (uplifted roots)
//	<target-dir>/[<triple>/]doc/<file><ext>           (uplifted docs)
//
// Host units have no triple component.
type Layout struct {
	TargetDir string
}

// KindDir is the directory of one platform.
func (l Layout) KindDir(kind unit.CompileKind) string {
	if kind.IsHost() {
		return l.TargetDir
	}
	return filepath.Join(l.TargetDir, kind.Triple)
}

// ProfileDir is where uplifted artifacts of u land.
func (l Layout) ProfileDir(u *unit.Unit) string {
	if u.Mode().IsDoc() {
		return filepath.Join(l.KindDir(u.Kind()), "doc")
	}
	return filepath.Join(l.KindDir(u.Kind()), u.Profile().DirName())
}

// DepsDir is where every artifact of u's platform and profile is built.
func (l Layout) DepsDir(u *unit.Unit) string {
	return filepath.Join(l.KindDir(u.Kind()), u.Profile().DirName(), "deps")
}

// ArtifactPath is the fingerprinted build location of u's artifact.
func (l Layout) ArtifactPath(u *unit.Unit) string {
	stem, ext := fileName(u)
	return filepath.Join(l.DepsDir(u), stem+"-"+u.FingerprintHex()+ext)
}

// UpliftPath is the conventional location of a root's artifact.
func (l Layout) UpliftPath(u *unit.Unit) string {
	return filepath.Join(l.ProfileDir(u), PlainName(u))
}

// PlainName is the artifact file name without fingerprint, used for export
// and uplift.
func PlainName(u *unit.Unit) string {
	stem, ext := fileName(u)
	return stem + ext
}

func fileName(u *unit.Unit) (string, string) {
	t := u.Target()
	crate := strings.ReplaceAll(t.Name, "-", "_")
	switch {
	case u.Mode() == unit.ModeDoc:
		return crate, ".html"
	case u.Mode() == unit.ModeDocJSON:
		return crate, ".json"
	case t.Kind == manifest.TargetLib && u.Mode().IsCheck():
		return "lib" + crate, ".rmeta"
	case t.Kind == manifest.TargetLib && t.ProcMacro:
		return "lib" + crate, ".so"
	case t.Kind == manifest.TargetLib:
		return "lib" + crate, ".rlib"
	case u.Mode().IsCheck():
		return t.Name, ".rmeta"
	}
	if strings.Contains(u.Kind().Triple, "windows") {
		return t.Name, ".exe"
	}
	return t.Name, ""
}
