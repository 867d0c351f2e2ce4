// SPDX-License-Identifier: MPL-2.0

// Package resolve turns module manifests into fully pinned dependency graphs.
//
// For every coordinate the version is chosen by precedence: a pin in the
// shared ConstraintTable, then a module-local override, then the version
// inherited from an internal dependency's already resolved Graph, and only
// then the configured Policy over versions discovered transitively.
// Internal-module edges are never re-resolved; the referenced module's Graph
// is imported as-is.
//
// Graphs are deterministic: nodes are ordered by coordinate key and render to
// a byte-stable lock file.
package resolve
