// Package unit defines the build unit, the smallest schedulable piece of
// compilation work, and the Interner that canonicalizes units.
//
// # Identity
//
// A unit is identified by its Key: package, target kind and name, profile,
// compile kind (host or a target triple), mode, feature set and extra
// compiler arguments. Units are immutable once created.
//
// # Interning
//
// Every unit is created through an Interner, which guarantees that two
// requests for identity-equal keys return the same *Unit. The pointer is
// therefore the identity: unit graphs, export maps and argument maps are all
// keyed by *Unit, and a dependency shared by several build requests collapses
// into one graph node when their contexts are merged.
//
// An Interner is an explicit object, never package-level state. Every
// resolution performed in one run must share the same Interner, otherwise
// identical units from different requests would be distinct keys and would
// be compiled more than once. The Interner is safe for concurrent use so that
// requests can be resolved in parallel.
package unit
