// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/masonbuild/mason/internal/dag"
	"github.com/masonbuild/mason/internal/scheduler"
	"github.com/masonbuild/mason/pkg/manifest"
)

// WorkspaceResult holds the per-module outcome of ResolveWorkspace.
type WorkspaceResult struct {
	// Order is the topological order modules were scheduled in.
	Order  []manifest.ModuleID
	Graphs map[manifest.ModuleID]*Graph
	// Errors holds a ResolutionError for failed modules and a
	// scheduler.BlockedError for modules whose dependencies failed.
	Errors map[manifest.ModuleID]error
}

// ModuleGraph returns the internal module graph of ws with an edge from each
// dependency to its dependent.
func ModuleGraph(ws *manifest.Workspace) *dag.Graph {
	g := dag.New()
	for _, m := range ws.Modules {
		g.AddNode(string(m.ID))
	}
	for _, m := range ws.Modules {
		for _, ref := range m.Internal {
			g.AddEdge(string(ref.Module), string(m.ID))
		}
	}
	return g
}

// CheckCycles returns a KindCyclicInternalDependency error when the internal
// module graph of ws has a cycle, and the topological order otherwise.
func CheckCycles(ws *manifest.Workspace) ([]manifest.ModuleID, error) {
	order, err := ModuleGraph(ws).TopologicalSort()
	if err != nil {
		return nil, cycleError(err)
	}
	ids := make([]manifest.ModuleID, len(order))
	for i, id := range order {
		ids[i] = manifest.ModuleID(id)
	}
	return ids, nil
}

// ResolveWorkspace resolves every module of ws on a worker pool that honors
// internal dependency order. A cycle is detected before anything is resolved
// and returned as the only error; per-module failures are reported in the
// result and block only the dependents of the failed module.
func (r *Resolver) ResolveWorkspace(ctx context.Context, ws *manifest.Workspace, workers int) (*WorkspaceResult, error) {
	order, err := CheckCycles(ws)
	if err != nil {
		return nil, err
	}

	out := &WorkspaceResult{
		Order:  order,
		Graphs: make(map[manifest.ModuleID]*Graph, len(order)),
		Errors: make(map[manifest.ModuleID]error),
	}
	var mu sync.Mutex

	res, err := scheduler.Run(ctx, ModuleGraph(ws), scheduler.Options{Workers: workers, Logger: r.logger}, func(ctx context.Context, node string) error {
		m, _ := ws.Module(manifest.ModuleID(node))
		internal := make(map[manifest.ModuleID]*Graph, len(m.Internal))
		mu.Lock()
		for _, ref := range m.Internal {
			internal[ref.Module] = out.Graphs[ref.Module]
		}
		mu.Unlock()

		g, err := r.Resolve(ctx, m, internal)
		if err != nil {
			return err
		}
		mu.Lock()
		out.Graphs[m.ID] = g
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, cycleError(err)
	}

	for id, o := range res.Outcomes {
		if o.Err != nil {
			out.Errors[manifest.ModuleID(id)] = o.Err
		}
	}
	return out, nil
}

// OK reports whether every module resolved.
func (w *WorkspaceResult) OK() bool { return len(w.Errors) == 0 }

// Failed returns the modules with errors in topological order.
func (w *WorkspaceResult) Failed() []manifest.ModuleID {
	var out []manifest.ModuleID
	for _, id := range w.Order {
		if _, ok := w.Errors[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// cycleError converts a dag cycle (dependency -> dependent) into a
// depends-on path.
func cycleError(err error) error {
	var ce *dag.CycleError
	if !errors.As(err, &ce) {
		return err
	}
	path := slices.Clone(ce.Cycle)
	slices.Reverse(path)
	ids := make([]manifest.ModuleID, len(path))
	for i, id := range path {
		ids[i] = manifest.ModuleID(id)
	}
	return &ResolutionError{Kind: KindCyclicInternalDependency, Cycle: ids, Err: err}
}
