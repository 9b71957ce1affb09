// Package manifest defines the format-agnostic package model used by the
// resolver: package identities, build targets, declared dependencies and
// features, along with the Loader interface for reading a package manifest
// from disk.
//
// Concrete implementations of the Loader, such as for HCL, are provided in
// separate packages.
package manifest
