// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/manifest"
	"github.com/masonbuild/mason/pkg/repository"
)

const (
	// HighestWins picks the highest discovered version. This is the default.
	HighestWins Policy = "highest-wins"
	// FirstSeenWins picks the version discovered first in breadth-first order
	// from the module's requests.
	FirstSeenWins Policy = "first-seen-wins"
)

// maxSelectionRounds bounds the select/re-walk loop. Selections normally
// settle after two or three rounds.
const maxSelectionRounds = 8

type (
	// Policy decides between unconstrained transitive versions of one coordinate.
	Policy string

	// Resolver resolves module manifests against one shared constraint table.
	// It holds no per-module state and is safe for concurrent use.
	Resolver struct {
		table  *manifest.ConstraintTable
		source repository.MetadataSource
		policy Policy
		logger *slog.Logger
	}

	// Option configures a Resolver.
	Option func(*Resolver)

	fixedVersion struct {
		version coord.Version
		origin  Origin
	}

	inheritedNode struct {
		version coord.Version
		scope   coord.Scope
		from    []string
	}

	walkItem struct {
		coordinate coord.Coordinate
		declared   coord.Version
		scope      coord.Scope
		exclusions []string
		parent     string
		direct     bool
	}

	walkNode struct {
		scope      coord.Scope
		dependents map[string]bool
		direct     bool
	}

	walkResult struct {
		candidates map[coord.Coordinate][]coord.Version
		nodes      map[coord.Coordinate]*walkNode
	}

	// resolution is the per-call state of Resolve.
	resolution struct {
		r         *Resolver
		module    *manifest.Module
		fixed     map[coord.Coordinate]fixedVersion
		inherited map[coord.Coordinate]*inheritedNode
		deps      map[string][]repository.Dependency
	}
)

// Validate returns an error for unknown policies.
func (p Policy) Validate() error {
	switch p {
	case HighestWins, FirstSeenWins:
		return nil
	}
	return fmt.Errorf("unknown conflict policy %q (want %s or %s)", p, HighestWins, FirstSeenWins)
}

func (p Policy) pick(versions []coord.Version) coord.Version {
	if len(versions) == 0 {
		return ""
	}
	if p == FirstSeenWins {
		return versions[0]
	}
	return coord.Highest(versions...)
}

// WithPolicy sets the conflict policy for unconstrained transitive versions.
func WithPolicy(p Policy) Option {
	return func(r *Resolver) {
		if p != "" {
			r.policy = p
		}
	}
}

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New returns a Resolver bound to the shared constraint table and metadata source.
func New(table *manifest.ConstraintTable, source repository.MetadataSource, opts ...Option) *Resolver {
	r := &Resolver{table: table, source: source, policy: HighestWins, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured conflict policy.
func (r *Resolver) Policy() Policy { return r.policy }

// Resolve produces the pinned graph of m. internal must hold the already
// resolved graph of every module m depends on directly.
func (r *Resolver) Resolve(ctx context.Context, m *manifest.Module, internal map[manifest.ModuleID]*Graph) (*Graph, error) {
	res := &resolution{
		r:         r,
		module:    m,
		fixed:     make(map[coord.Coordinate]fixedVersion),
		inherited: make(map[coord.Coordinate]*inheritedNode),
		deps:      make(map[string][]repository.Dependency),
	}

	internalEdges, err := res.importInternal(internal)
	if err != nil {
		return nil, err
	}
	if err := res.pinDirect(); err != nil {
		return nil, err
	}

	// Walk with the current selection, re-select, repeat until stable. The
	// first walk follows declared versions; later walks only follow selected
	// ones so that versions reachable solely through evicted versions drop out.
	selected := res.fixedSelection()
	var walk *walkResult
	for round := 0; ; round++ {
		walk, err = res.walk(ctx, selected)
		if err != nil {
			return nil, err
		}
		next := res.fixedSelection()
		for c, vs := range walk.candidates {
			if _, ok := next[c]; !ok {
				next[c] = r.policy.pick(vs)
			}
		}
		if maps.Equal(next, selected) || round == maxSelectionRounds {
			break
		}
		selected = next
	}

	for _, req := range m.Requests {
		if _, ok := selected[req.Coordinate]; !ok {
			return nil, &ResolutionError{Kind: KindUnpinnedCoordinate, Module: m.ID, Coordinate: req.Coordinate}
		}
	}

	nodes := res.buildNodes(walk, selected)
	var profiles []string
	if r.table != nil {
		profiles = r.table.Profiles()
	}
	g := newGraph(m.ID, r.policy, profiles, internalEdges, nodes)
	r.logger.Debug("resolved module", "module", m.ID, "nodes", len(g.Nodes), "internal", len(g.Internal))
	return g, nil
}

// importInternal collects the nodes and internal edges inherited from the
// graphs of m's internal dependencies.
func (res *resolution) importInternal(internal map[manifest.ModuleID]*Graph) ([]InternalEdge, error) {
	edges := make(map[manifest.ModuleID]coord.Scope)
	for _, ref := range res.module.Internal {
		ig, ok := internal[ref.Module]
		if !ok || ig == nil {
			return nil, &ResolutionError{
				Kind:   KindMissingInternalGraph,
				Module: res.module.ID,
				Err:    fmt.Errorf("%w: %s", ErrMissingInternalGraph, ref.Module),
			}
		}
		edges[ref.Module] = coord.Merge(edges[ref.Module], ref.Scope)
		for _, e := range ig.Internal {
			if s, ok := coord.Propagate(ref.Scope, e.Scope); ok {
				edges[e.Module] = coord.Merge(edges[e.Module], s)
			}
		}
		for _, n := range ig.Nodes {
			s, ok := coord.Propagate(ref.Scope, n.Scope)
			if !ok {
				continue
			}
			in, ok := res.inherited[n.Coordinate]
			if !ok {
				in = &inheritedNode{version: n.Version}
				res.inherited[n.Coordinate] = in
			} else if in.version != n.Version {
				in.version = res.r.policy.pick([]coord.Version{in.version, n.Version})
			}
			in.scope = coord.Merge(in.scope, s)
			in.from = append(in.from, string(ref.Module))
		}
	}

	out := make([]InternalEdge, 0, len(edges))
	for id, s := range edges {
		out = append(out, InternalEdge{Module: id, Scope: s})
	}
	return out, nil
}

// pinDirect applies constraint, override and inherited precedence to every
// coordinate whose version does not depend on transitive discovery.
func (res *resolution) pinDirect() error {
	overrides := make(map[coord.Coordinate][]coord.Version)
	for _, req := range res.module.Requests {
		if req.Override != "" && !slices.Contains(overrides[req.Coordinate], req.Override) {
			overrides[req.Coordinate] = append(overrides[req.Coordinate], req.Override)
		}
	}

	for c, in := range res.inherited {
		res.fixed[c] = fixedVersion{version: in.version, origin: OriginInternal}
	}
	for _, req := range res.module.Requests {
		c := req.Coordinate
		vs := overrides[c]
		if len(vs) == 0 {
			continue
		}
		if _, pinned := res.lookupTable(c); !pinned && len(vs) > 1 {
			return &ResolutionError{Kind: KindConflictingPin, Module: res.module.ID, Coordinate: c, Versions: vs}
		}
		res.fixed[c] = fixedVersion{version: vs[0], origin: OriginOverride}
	}
	return nil
}

func (res *resolution) lookupTable(c coord.Coordinate) (coord.Version, bool) {
	if res.r.table == nil {
		return "", false
	}
	return res.r.table.Lookup(c)
}

// fixedSelection returns the versions known before any transitive walk. The
// constraint table is consulted lazily for transitive coordinates in version.
func (res *resolution) fixedSelection() map[coord.Coordinate]coord.Version {
	sel := make(map[coord.Coordinate]coord.Version, len(res.fixed))
	for c, f := range res.fixed {
		sel[c] = f.version
	}
	for _, req := range res.module.Requests {
		if v, ok := res.lookupTable(req.Coordinate); ok {
			sel[req.Coordinate] = v
		}
	}
	for c := range res.inherited {
		if v, ok := res.lookupTable(c); ok {
			sel[c] = v
		}
	}
	return sel
}

// version returns the version the walk follows for c, preferring the
// constraint table over everything else.
func (res *resolution) version(c coord.Coordinate, selected map[coord.Coordinate]coord.Version, declared coord.Version) coord.Version {
	if v, ok := res.lookupTable(c); ok {
		return v
	}
	if v, ok := selected[c]; ok {
		return v
	}
	return declared
}

func (res *resolution) walk(ctx context.Context, selected map[coord.Coordinate]coord.Version) (*walkResult, error) {
	out := &walkResult{
		candidates: make(map[coord.Coordinate][]coord.Version),
		nodes:      make(map[coord.Coordinate]*walkNode),
	}
	root := string(res.module.ID)

	queue := make([]walkItem, 0, len(res.module.Requests))
	for _, req := range res.module.Requests {
		queue = append(queue, walkItem{
			coordinate: req.Coordinate,
			scope:      req.Scope,
			exclusions: req.Exclusions,
			parent:     root,
			direct:     true,
		})
	}

	visited := make(map[string]bool)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		it := queue[0]
		queue = queue[1:]

		if it.declared != "" && !slices.Contains(out.candidates[it.coordinate], it.declared) {
			out.candidates[it.coordinate] = append(out.candidates[it.coordinate], it.declared)
		}
		v := res.version(it.coordinate, selected, it.declared)
		if v == "" {
			// direct request still waiting for a transitively discovered version
			continue
		}

		n, ok := out.nodes[it.coordinate]
		if !ok {
			n = &walkNode{dependents: make(map[string]bool)}
			out.nodes[it.coordinate] = n
		}
		n.scope = coord.Merge(n.scope, it.scope)
		n.dependents[it.parent] = true
		n.direct = n.direct || it.direct

		key := it.coordinate.Key() + "@" + string(v) + "|" + string(it.scope) + "|" + strings.Join(it.exclusions, ",")
		if visited[key] {
			continue
		}
		visited[key] = true

		deps, err := res.dependencies(ctx, it.coordinate, v)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if d.Optional || excluded(d.Coordinate, it.exclusions) {
				continue
			}
			s, ok := coord.Propagate(it.scope, d.Scope)
			if !ok {
				continue
			}
			queue = append(queue, walkItem{
				coordinate: d.Coordinate,
				declared:   d.Version,
				scope:      s,
				exclusions: mergeExclusions(it.exclusions, d.Exclusions),
				parent:     it.coordinate.Key(),
			})
		}
	}
	return out, nil
}

func (res *resolution) dependencies(ctx context.Context, c coord.Coordinate, v coord.Version) ([]repository.Dependency, error) {
	key := c.Key() + "@" + string(v)
	if deps, ok := res.deps[key]; ok {
		return deps, nil
	}
	if res.r.source == nil {
		res.deps[key] = nil
		return nil, nil
	}
	deps, err := res.r.source.Dependencies(ctx, c, v)
	if err != nil {
		return nil, &ResolutionError{Kind: KindMissingMetadata, Module: res.module.ID, Coordinate: c, Err: err}
	}
	res.deps[key] = deps
	return deps, nil
}

func (res *resolution) buildNodes(walk *walkResult, selected map[coord.Coordinate]coord.Version) []Node {
	byCoord := make(map[coord.Coordinate]*Node)
	get := func(c coord.Coordinate) *Node {
		n, ok := byCoord[c]
		if !ok {
			n = &Node{Coordinate: c, Version: res.version(c, selected, ""), Origin: res.origin(c)}
			if n.Version == "" {
				n.Version = res.r.policy.pick(walk.candidates[c])
			}
			byCoord[c] = n
		}
		return n
	}

	dependents := make(map[coord.Coordinate]map[string]bool)
	for c, wn := range walk.nodes {
		n := get(c)
		n.Scope = coord.Merge(n.Scope, wn.scope)
		n.Direct = n.Direct || wn.direct
		dependents[c] = maps.Clone(wn.dependents)
	}
	for c, in := range res.inherited {
		n := get(c)
		n.Scope = coord.Merge(n.Scope, in.scope)
		if dependents[c] == nil {
			dependents[c] = make(map[string]bool)
		}
		for _, from := range in.from {
			dependents[c][from] = true
		}
	}

	nodes := make([]Node, 0, len(byCoord))
	for c, n := range byCoord {
		n.Dependents = slices.Sorted(maps.Keys(dependents[c]))
		nodes = append(nodes, *n)
	}
	return nodes
}

func (res *resolution) origin(c coord.Coordinate) Origin {
	if _, ok := res.lookupTable(c); ok {
		return OriginConstraint
	}
	if f, ok := res.fixed[c]; ok {
		return f.origin
	}
	return OriginTransitive
}

func excluded(c coord.Coordinate, patterns []string) bool {
	for _, p := range patterns {
		if c.Matches(p) {
			return true
		}
	}
	return false
}

func mergeExclusions(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := slices.Concat(a, b)
	slices.Sort(out)
	return slices.Compact(out)
}
