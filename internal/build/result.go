// SPDX-License-Identifier: MPL-2.0

package build

import (
	"time"

	"github.com/masonbuild/mason/internal/assembly"
	"github.com/masonbuild/mason/internal/codegen"
	"github.com/masonbuild/mason/internal/compile"
	"github.com/masonbuild/mason/internal/scheduler"
	"github.com/masonbuild/mason/internal/testrun"
	"github.com/masonbuild/mason/pkg/manifest"
	"github.com/masonbuild/mason/pkg/resolve"
)

type (
	// StageResult records one stage of one module.
	StageResult struct {
		Stage    Stage
		State    scheduler.State
		Duration time.Duration
		Err      error
	}

	// ModuleResult is the outcome of one module.
	ModuleResult struct {
		Module manifest.ModuleID
		State  scheduler.State
		// Stage is the last stage the module reached; for a failed module,
		// the stage that failed.
		Stage Stage
		// Err is the first stage error, or a scheduler.BlockedError.
		Err error
		// BlockedBy is the chain from the immediate dependency to the module
		// that failed.
		BlockedBy []manifest.ModuleID
		Stages    []StageResult
		Duration  time.Duration

		Graph       *resolve.Graph
		Generated   []*codegen.GeneratedSources
		Classes     *compile.Output
		TestClasses *compile.Output
		Artifact    *assembly.Artifact
		Tests       *testrun.Report
	}

	// Result is the outcome of a build run.
	Result struct {
		// ID identifies the run in logs.
		ID   string
		Goal Goal
		// Order is the topological order modules were scheduled in.
		Order    []manifest.ModuleID
		Modules  map[manifest.ModuleID]*ModuleResult
		Duration time.Duration
	}
)

// failedStage returns the first failed stage result.
func (m *ModuleResult) failedStage() (StageResult, bool) {
	for _, s := range m.Stages {
		if s.State == scheduler.StateFailed {
			return s, true
		}
	}
	return StageResult{}, false
}

// OK reports whether every module succeeded.
func (r *Result) OK() bool {
	for _, m := range r.Modules {
		if m.State != scheduler.StateSucceeded {
			return false
		}
	}
	return true
}

// InState returns the results in state s in topological order.
func (r *Result) InState(s scheduler.State) []*ModuleResult {
	var out []*ModuleResult
	for _, id := range r.Order {
		if m, ok := r.Modules[id]; ok && m.State == s {
			out = append(out, m)
		}
	}
	return out
}

// Failed returns the failed modules in topological order.
func (r *Result) Failed() []*ModuleResult { return r.InState(scheduler.StateFailed) }

// Blocked returns the blocked modules in topological order.
func (r *Result) Blocked() []*ModuleResult { return r.InState(scheduler.StateBlocked) }

// Err returns the error of the first failed module, or nil.
func (r *Result) Err() error {
	if failed := r.Failed(); len(failed) > 0 {
		return failed[0].Err
	}
	if blocked := r.Blocked(); len(blocked) > 0 {
		return blocked[0].Err
	}
	for _, id := range r.Order {
		if m, ok := r.Modules[id]; ok && m.Err != nil {
			return m.Err
		}
	}
	return nil
}

// Lock returns a lock of every resolved module graph.
func (r *Result) Lock() *resolve.Lock {
	var graphs []*resolve.Graph
	for _, id := range r.Order {
		if m, ok := r.Modules[id]; ok && m.Graph != nil {
			graphs = append(graphs, m.Graph)
		}
	}
	return resolve.NewLock(graphs...)
}
