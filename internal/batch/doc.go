// Package batch folds the build contexts of several independent requests
// into one merged context and hands that context off exactly once.
//
// # Merging
//
// Merger.Merge folds one request's context into the accumulator. Every
// field is a union; on colliding keys the later request wins. Because units
// are interned, a dependency shared by several requests is the same unit
// graph key in each of them and is compiled once. A request's export
// directory is applied to that request's roots only.
//
// A lenient Merger logs a warning when a colliding key carries a different
// value. A strict Merger refuses the merge with a *ConflictError instead.
//
// # Handoff
//
// Batch wraps the fold in a small state machine:
//
//	Accumulating -> Finalized -> Reported | Executed
//
// Finalize turns uplift off on the merged context, since uplifting the
// roots of several requests into one shared directory would let one
// request's artifact overwrite another's. After finalizing, exactly one of
// Report or Execute may be called.
package batch
