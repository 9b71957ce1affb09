// Package unitgraph holds the unit dependency graph of a build plan and
// the graph-inspection report it can be serialized into.
//
// A Graph maps every unit to the units it directly depends on. Keys are
// interned *unit.Unit pointers, so merging the graphs of several build
// contexts is a plain key-wise union: a dependency shared by two requests is
// the same key in both and ends up as a single node.
package unitgraph
