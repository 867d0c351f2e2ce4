// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"slices"
	"strings"

	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/manifest"
)

const (
	// ChangeMissing means the coordinate is only in the left graph.
	ChangeMissing ChangeKind = "missing"
	// ChangeExtra means the coordinate is only in the right graph.
	ChangeExtra ChangeKind = "extra"
	// ChangeVersion means both graphs pin the coordinate to different versions.
	ChangeVersion ChangeKind = "version-mismatch"
	// ChangeScope means both graphs pin the same version in different scopes.
	ChangeScope ChangeKind = "scope-mismatch"
	// ChangeModule means a whole module is present on one side only.
	ChangeModule ChangeKind = "module"
)

type (
	// ChangeKind classifies one difference between two graphs.
	ChangeKind string

	// Change is one difference between two graphs of the same module.
	Change struct {
		Module     manifest.ModuleID
		Kind       ChangeKind
		Coordinate coord.Coordinate
		Left       coord.Version
		Right      coord.Version
		LeftScope  coord.Scope
		RightScope coord.Scope
	}

	// DiffOptions control which nodes are compared.
	DiffOptions struct {
		// IncludeNonPackaged also compares test and compile-only nodes, which
		// are ignored by default.
		IncludeNonPackaged bool
	}
)

// Diff compares two graphs of the same module.
func Diff(a, b *Graph, opts DiffOptions) []Change {
	keep := func(n Node) bool { return opts.IncludeNonPackaged || n.Scope.Packaged() }

	left := make(map[coord.Coordinate]Node)
	for _, n := range a.Nodes {
		if keep(n) {
			left[n.Coordinate] = n
		}
	}
	right := make(map[coord.Coordinate]Node)
	for _, n := range b.Nodes {
		if keep(n) {
			right[n.Coordinate] = n
		}
	}

	var changes []Change
	for c, l := range left {
		r, ok := right[c]
		switch {
		case !ok:
			changes = append(changes, Change{Module: a.Module, Kind: ChangeMissing, Coordinate: c, Left: l.Version, LeftScope: l.Scope})
		case l.Version != r.Version:
			changes = append(changes, Change{Module: a.Module, Kind: ChangeVersion, Coordinate: c, Left: l.Version, Right: r.Version, LeftScope: l.Scope, RightScope: r.Scope})
		case l.Scope != r.Scope:
			changes = append(changes, Change{Module: a.Module, Kind: ChangeScope, Coordinate: c, Left: l.Version, Right: r.Version, LeftScope: l.Scope, RightScope: r.Scope})
		}
	}
	for c, r := range right {
		if _, ok := left[c]; !ok {
			changes = append(changes, Change{Module: a.Module, Kind: ChangeExtra, Coordinate: c, Right: r.Version, RightScope: r.Scope})
		}
	}
	sortChanges(changes)
	return changes
}

// DiffLocks compares two locks module by module.
func DiffLocks(a, b *Lock, opts DiffOptions) []Change {
	var changes []Change
	for _, ga := range a.Modules {
		gb, ok := b.Graph(ga.Module)
		if !ok {
			changes = append(changes, Change{Module: ga.Module, Kind: ChangeModule, Left: "present"})
			continue
		}
		changes = append(changes, Diff(ga, gb, opts)...)
	}
	for _, gb := range b.Modules {
		if _, ok := a.Graph(gb.Module); !ok {
			changes = append(changes, Change{Module: gb.Module, Kind: ChangeModule, Right: "present"})
		}
	}
	sortChanges(changes)
	return changes
}

func sortChanges(changes []Change) {
	slices.SortFunc(changes, func(x, y Change) int {
		if c := strings.Compare(string(x.Module), string(y.Module)); c != 0 {
			return c
		}
		if c := strings.Compare(x.Coordinate.Key(), y.Coordinate.Key()); c != 0 {
			return c
		}
		return strings.Compare(string(x.Kind), string(y.Kind))
	})
}
