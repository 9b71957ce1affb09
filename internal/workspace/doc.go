// Package workspace turns a build request into a resolved build context.
//
// A Resolver loads the requested package and the transitive closure of its
// dependencies, unifies features across that closure, selects the root
// targets and interns one unit per compilation. Resolvers that take part in
// the same run must share one unit.Interner so that identical units from
// different requests are the same *unit.Unit.
//
// Dependencies are found either next to the depending package (path
// dependencies) or in a vendor directory laid out as <name>-<version>.
// Versions are matched exactly.
package workspace
