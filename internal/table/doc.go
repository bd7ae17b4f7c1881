// Package table holds the static dependency table of a project and resolves
// it into per-package search paths and a build order.
//
// The table is hand-maintained data: each package lists, in order, the
// relative paths that must be importable while its build procedure runs. An
// entry may name a sibling package or a directory nested inside one (for
// example its test-support tree); both belong to the same logical package.
//
// Resolving a search path is a pure lookup. Ordering treats the table as a
// directed acyclic graph and sorts it topologically, breaking ties by the
// declared position so that an already valid declared sequence is returned
// unchanged.
package table
