// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"slices"
	"strings"

	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/manifest"
)

const (
	// OriginConstraint means the version came from the constraint table.
	OriginConstraint Origin = "constraint"
	// OriginOverride means the version came from the module's own override.
	OriginOverride Origin = "override"
	// OriginInternal means the version was inherited from an internal module's graph.
	OriginInternal Origin = "internal"
	// OriginTransitive means the conflict policy chose among discovered versions.
	OriginTransitive Origin = "transitive"
)

type (
	// Origin records which precedence rule pinned a node's version.
	Origin string

	// Node is one pinned third-party library in a module's graph.
	Node struct {
		Coordinate coord.Coordinate
		Version    coord.Version
		Scope      coord.Scope
		Origin     Origin
		// Direct is true when the module itself requested the coordinate.
		Direct bool
		// Dependents are the coordinate keys of nodes that declare this one,
		// plus module ids for direct requests and inherited nodes. Sorted.
		Dependents []string
	}

	// InternalEdge is a direct or transitive internal-module dependency with
	// its propagated scope.
	InternalEdge struct {
		Module manifest.ModuleID
		Scope  coord.Scope
	}

	// Graph is the fully pinned dependency graph of one module. A Graph is
	// immutable once returned by the resolver.
	Graph struct {
		Module   manifest.ModuleID
		Policy   Policy
		Profiles []string
		Internal []InternalEdge
		Nodes    []Node

		index map[coord.Coordinate]int
	}
)

func newGraph(module manifest.ModuleID, policy Policy, profiles []string, internal []InternalEdge, nodes []Node) *Graph {
	slices.SortFunc(nodes, func(a, b Node) int { return strings.Compare(a.Coordinate.Key(), b.Coordinate.Key()) })
	slices.SortFunc(internal, func(a, b InternalEdge) int { return strings.Compare(string(a.Module), string(b.Module)) })
	g := &Graph{
		Module:   module,
		Policy:   policy,
		Profiles: profiles,
		Internal: internal,
		Nodes:    nodes,
	}
	g.reindex()
	return g
}

func (g *Graph) reindex() {
	g.index = make(map[coord.Coordinate]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.index[n.Coordinate] = i
	}
}

// Node returns the node for c.
func (g *Graph) Node(c coord.Coordinate) (Node, bool) {
	if g.index == nil {
		i := slices.IndexFunc(g.Nodes, func(n Node) bool { return n.Coordinate == c })
		if i < 0 {
			return Node{}, false
		}
		return g.Nodes[i], true
	}
	i, ok := g.index[c]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Version returns the pinned version of c, or "" when c is not in the graph.
func (g *Graph) Version(c coord.Coordinate) coord.Version {
	n, _ := g.Node(c)
	return n.Version
}

// Select returns the nodes whose scope satisfies keep, in graph order.
func (g *Graph) Select(keep func(coord.Scope) bool) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if keep(n.Scope) {
			out = append(out, n)
		}
	}
	return out
}

// Packaged returns the compile and runtime nodes, the closure an assembled
// archive includes.
func (g *Graph) Packaged() []Node { return g.Select(coord.Scope.Packaged) }

// CompileClasspath returns the nodes visible to main compilation.
func (g *Graph) CompileClasspath() []Node { return g.Select(coord.Scope.OnCompileClasspath) }

// TestClasspath returns the nodes visible to test compilation and execution.
func (g *Graph) TestClasspath() []Node { return g.Select(coord.Scope.OnTestClasspath) }

// InternalModules returns the ids of internal modules whose scope satisfies keep.
func (g *Graph) InternalModules(keep func(coord.Scope) bool) []manifest.ModuleID {
	var out []manifest.ModuleID
	for _, e := range g.Internal {
		if keep(e.Scope) {
			out = append(out, e.Module)
		}
	}
	return out
}
