// SPDX-License-Identifier: MPL-2.0

// Package scheduler runs one task per node of a dependency graph on a bounded
// worker pool. A node starts only after every predecessor succeeded; a failed
// node blocks its descendants and nothing else.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/masonbuild/mason/internal/dag"
)

const (
	// StateSucceeded means the task returned nil.
	StateSucceeded State = "succeeded"
	// StateFailed means the task returned an error.
	StateFailed State = "failed"
	// StateBlocked means a predecessor failed or was blocked.
	StateBlocked State = "blocked"
	// StateCanceled means the context ended before the task could start.
	StateCanceled State = "canceled"
)

// ErrBlocked is the sentinel error wrapped by BlockedError.
var ErrBlocked = errors.New("blocked by failed dependency")

type (
	// State is the terminal state of a node.
	State string

	// Task is the unit of work run for one node.
	Task func(ctx context.Context, node string) error

	// Options configure a Run.
	Options struct {
		// Workers bounds concurrently running tasks. Values below 1 mean 1.
		Workers int
		// OnDone, when set, is called from the coordinating goroutine as each
		// node reaches a terminal state.
		OnDone func(*Outcome)
		Logger *slog.Logger
	}

	// Outcome records how one node ended.
	Outcome struct {
		Node  string
		State State
		Err   error
		// BlockedBy is the chain from the immediate dependency to the node that
		// actually failed, e.g. [fe-core plugin-common].
		BlockedBy []string
		Duration  time.Duration
	}

	// Result holds every node's outcome.
	Result struct {
		// Order is the topological order the graph was scheduled in.
		Order    []string
		Outcomes map[string]*Outcome
	}

	// BlockedError is the error recorded for a blocked node.
	BlockedError struct {
		Node  string
		Chain []string
	}
)

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s blocked: depends on %s (failed)", e.Node, strings.Join(e.Chain, " -> "))
}

// Unwrap returns ErrBlocked for errors.Is() compatibility.
func (e *BlockedError) Unwrap() error { return ErrBlocked }

// Run executes task for every node of g. It returns an error only when g has
// a cycle, in which case no task runs. Task failures are reported through the
// Result.
func Run(ctx context.Context, g *dag.Graph, opts Options, task Task) (*Result, error) {
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := max(opts.Workers, 1)

	rank := make(map[string]int, len(order))
	pending := make(map[string]int, len(order))
	var ready []string
	for i, n := range order {
		rank[n] = i
		pending[n] = len(g.Predecessors(n))
		if pending[n] == 0 {
			ready = append(ready, n)
		}
	}

	res := &Result{Order: order, Outcomes: make(map[string]*Outcome, len(order))}
	record := func(o *Outcome) {
		res.Outcomes[o.Node] = o
		if opts.OnDone != nil {
			opts.OnDone(o)
		}
	}

	results := make(chan *Outcome, len(order))
	var eg errgroup.Group
	running := 0

	for len(res.Outcomes) < len(order) {
		for len(ready) > 0 && running < workers && ctx.Err() == nil {
			node := ready[0]
			ready = ready[1:]
			running++
			logger.Debug("starting", "node", node)
			eg.Go(func() error {
				start := time.Now()
				err := task(ctx, node)
				results <- &Outcome{Node: node, Err: err, Duration: time.Since(start)}
				return nil
			})
		}
		if running == 0 {
			break
		}

		out := <-results
		running--
		if out.Err != nil {
			out.State = StateFailed
			logger.Debug("failed", "node", out.Node, "error", out.Err)
			record(out)
			blockDescendants(g, out.Node, res, record)
			continue
		}
		out.State = StateSucceeded
		logger.Debug("finished", "node", out.Node, "duration", out.Duration)
		record(out)
		for _, succ := range g.Successors(out.Node) {
			pending[succ]--
			if _, done := res.Outcomes[succ]; !done && pending[succ] == 0 {
				ready = append(ready, succ)
			}
		}
		slices.SortFunc(ready, func(a, b string) int { return rank[a] - rank[b] })
	}
	_ = eg.Wait()

	for _, n := range order {
		if _, ok := res.Outcomes[n]; !ok {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			record(&Outcome{Node: n, State: StateCanceled, Err: err})
		}
	}
	return res, nil
}

// blockDescendants marks every descendant of failed as blocked, recording
// the shortest chain back to failed.
func blockDescendants(g *dag.Graph, failed string, res *Result, record func(*Outcome)) {
	type item struct {
		node  string
		chain []string
	}
	queue := []item{}
	for _, succ := range g.Successors(failed) {
		queue = append(queue, item{node: succ, chain: []string{failed}})
	}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if _, done := res.Outcomes[it.node]; done {
			continue
		}
		record(&Outcome{
			Node:      it.node,
			State:     StateBlocked,
			BlockedBy: it.chain,
			Err:       &BlockedError{Node: it.node, Chain: it.chain},
		})
		next := append([]string{it.node}, it.chain...)
		for _, succ := range g.Successors(it.node) {
			queue = append(queue, item{node: succ, chain: next})
		}
	}
}

// Failed returns the nodes that failed, in topological order.
func (r *Result) Failed() []string { return r.inState(StateFailed) }

// Blocked returns the nodes that were blocked, in topological order.
func (r *Result) Blocked() []string { return r.inState(StateBlocked) }

// Succeeded returns the nodes that succeeded, in topological order.
func (r *Result) Succeeded() []string { return r.inState(StateSucceeded) }

// OK reports whether every node succeeded.
func (r *Result) OK() bool { return len(r.Succeeded()) == len(r.Order) }

func (r *Result) inState(s State) []string {
	var out []string
	for _, n := range r.Order {
		if o := r.Outcomes[n]; o != nil && o.State == s {
			out = append(out, n)
		}
	}
	return out
}
