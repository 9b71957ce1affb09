package unit

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/minio/highwayhash"
	"github.com/specialistvlad/buildbatch/internal/manifest"
)

// argSep separates extra compiler arguments inside Key.Args. It cannot occur
// in a shell-split argument.
const argSep = "\x1f"

// Key is the full identity of a unit. It is comparable, and two units are
// the same unit exactly when their keys are equal.
type Key struct {
	Package    manifest.PackageID
	TargetKind manifest.TargetKind
	TargetName string
	Profile    Profile
	Kind       CompileKind
	Mode       Mode
	// Features is the sorted, comma-joined set of enabled features.
	Features string
	// Args is the joined list of extra compiler arguments.
	Args string
}

// Spec describes a unit to intern.
type Spec struct {
	Package  *manifest.Package
	Target   manifest.Target
	Profile  Profile
	Kind     CompileKind
	Mode     Mode
	Features []string
	Args     []string
}

// Key derives the identity of the unit the spec describes.
func (s Spec) Key() Key {
	return Key{
		Package:    s.Package.ID,
		TargetKind: s.Target.Kind,
		TargetName: s.Target.Name,
		Profile:    s.Profile,
		Kind:       s.Kind,
		Mode:       s.Mode,
		Features:   FeatureString(s.Features),
		Args:       strings.Join(s.Args, argSep),
	}
}

// Unit is one compilable artifact target. Units are created by an Interner
// and never modified afterwards.
type Unit struct {
	key         Key
	pkg         *manifest.Package
	target      manifest.Target
	fingerprint uint64
}

// Key returns the unit's identity.
func (u *Unit) Key() Key { return u.key }

// Package returns the package the unit belongs to.
func (u *Unit) Package() *manifest.Package { return u.pkg }

// Target returns the package target the unit compiles.
func (u *Unit) Target() manifest.Target { return u.target }

// Profile returns the compiler settings of the unit.
func (u *Unit) Profile() Profile { return u.key.Profile }

// Kind returns the platform the unit is compiled for.
func (u *Unit) Kind() CompileKind { return u.key.Kind }

// Mode returns what the unit produces.
func (u *Unit) Mode() Mode { return u.key.Mode }

// Features returns the enabled features, sorted.
func (u *Unit) Features() []string {
	if u.key.Features == "" {
		return []string{}
	}
	return strings.Split(u.key.Features, ",")
}

// Args returns the extra compiler arguments baked into the unit identity.
func (u *Unit) Args() []string {
	if u.key.Args == "" {
		return nil
	}
	return strings.Split(u.key.Args, argSep)
}

// Fingerprint is a stable hash of the unit identity. It disambiguates
// artifact file names of units that share a target name.
func (u *Unit) Fingerprint() uint64 { return u.fingerprint }

// FingerprintHex renders the fingerprint as 16 hex digits.
func (u *Unit) FingerprintHex() string {
	return fmt.Sprintf("%016x", u.fingerprint)
}

// String renders a human readable description used in logs and errors.
func (u *Unit) String() string {
	return fmt.Sprintf("%s %s %s %q (%s, %s, %s)",
		u.key.Package.Name, u.key.Package.Version,
		u.key.TargetKind, u.key.TargetName,
		u.key.Mode, u.key.Profile.Name, u.key.Kind)
}

// FeatureString canonicalizes a feature list: sorted, deduplicated, joined
// by commas.
func FeatureString(features []string) string {
	if len(features) == 0 {
		return ""
	}
	sorted := slices.Clone(features)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return strings.Join(sorted, ",")
}

// fingerprintKey is the fixed highwayhash key. Changing it changes every
// artifact name.
var fingerprintKey = []byte("buildbatch-unit-fingerprint-v1!!")

func fingerprint(k Key) uint64 {
	parts := []string{
		k.Package.Name, k.Package.Version, string(k.Package.Source),
		string(k.TargetKind), k.TargetName,
		k.Profile.Name, k.Profile.OptLevel,
		strconv.FormatBool(k.Profile.Debug), strconv.FormatBool(k.Profile.Strip),
		k.Kind.Triple, string(k.Mode), k.Features, k.Args,
	}
	return highwayhash.Sum64([]byte(strings.Join(parts, "\x00")), fingerprintKey)
}
