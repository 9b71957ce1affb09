// Package runner compiles a merged build context.
//
// # Scheduling
//
// The runner is a worker pool over the unit graph. Every unit starts with a
// counter of unfinished dependencies; units whose counter is zero are sent
// to a ready channel and picked up by one of the workers. When a unit
// finishes, the counters of its dependents are decremented and the ones
// reaching zero become ready. Each unit is compiled exactly once, however
// many roots depend on it.
//
// # Failure
//
// The first failing unit cancels the run. Its dependents, and any unit that
// was still waiting when the run was cancelled, are marked skipped. The
// error returned is a *UnitError naming the first failure in dependency
// order; skipped units are symptoms and never reported as the cause.
//
// # Artifacts
//
// Every unit writes its artifact into the deps directory of its platform
// and profile, with the unit fingerprint in the file name. Once a root
// succeeds its artifact is copied, under its plain name, into the export
// directory of the request that asked for it and, when uplift is on, into
// the profile directory.
package runner
