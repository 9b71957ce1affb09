// Package target describes the platforms units are compiled for: the
// user-level configuration of each platform (linker, runner, extra flags)
// and the information probed about it (architecture, operating system,
// cfg values).
package target
