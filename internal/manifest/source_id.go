package manifest

import (
	"fmt"
	"strings"
)

// SourceKind is the kind of location a package is supplied from.
type SourceKind string

const (
	SourcePath   SourceKind = "path"
	SourceVendor SourceKind = "vendor"
)

// SourceID identifies where a package comes from, in the form
// "<kind>+<location>".
type SourceID string

// NewSourceID builds a SourceID for the given kind and location.
func NewSourceID(kind SourceKind, location string) SourceID {
	return SourceID(string(kind) + "+" + location)
}

// Kind returns the kind part of the identifier.
func (s SourceID) Kind() SourceKind {
	kind, _, _ := strings.Cut(string(s), "+")
	return SourceKind(kind)
}

// Location returns the location part of the identifier.
func (s SourceID) Location() string {
	_, loc, _ := strings.Cut(string(s), "+")
	return loc
}

// Validate checks the identifier is well formed.
func (s SourceID) Validate() error {
	kind, loc, ok := strings.Cut(string(s), "+")
	if !ok || loc == "" {
		return fmt.Errorf("malformed source id %q", string(s))
	}
	switch SourceKind(kind) {
	case SourcePath, SourceVendor:
		return nil
	}
	return fmt.Errorf("unsupported source kind %q in %q", kind, string(s))
}
