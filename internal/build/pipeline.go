// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/masonbuild/mason/internal/assembly"
	"github.com/masonbuild/mason/internal/codegen"
	"github.com/masonbuild/mason/internal/compile"
	"github.com/masonbuild/mason/internal/metrics"
	"github.com/masonbuild/mason/internal/scheduler"
	"github.com/masonbuild/mason/internal/testrun"
	"github.com/masonbuild/mason/pkg/manifest"
	"github.com/masonbuild/mason/pkg/resolve"
)

type (
	// Components are the stage implementations a Pipeline drives. Only the
	// components needed by a goal must be set.
	Components struct {
		Resolver  *resolve.Resolver
		Codegen   *codegen.Pipeline
		Compiler  *compile.Compiler
		Assembler *assembly.Engine
		Tests     *testrun.Runner
	}

	// Plan selects what a Run builds.
	Plan struct {
		Workspace *manifest.Workspace
		Goal      Goal
		// Lock, when set, supplies module graphs instead of resolving them.
		Lock *resolve.Lock
	}

	// Pipeline runs module stages over the workspace graph.
	Pipeline struct {
		components Components
		workers    int
		logger     *slog.Logger
		recorder   metrics.Recorder
		progress   func(*ModuleResult)
	}

	// Option configures a Pipeline.
	Option func(*Pipeline)

	// run is the state of one Pipeline.Run.
	run struct {
		*Pipeline
		plan   Plan
		logger *slog.Logger

		mu      sync.Mutex
		results map[manifest.ModuleID]*ModuleResult
		classes map[manifest.ModuleID]string
	}
)

// WithWorkers bounds the modules built concurrently. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithProgress registers fn to be called once per module as it finishes.
// Calls are serialized.
func WithProgress(fn func(*ModuleResult)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// New returns a pipeline driving c.
func New(c Components, opts ...Option) *Pipeline {
	p := &Pipeline{
		components: c,
		workers:    1,
		logger:     slog.Default(),
		recorder:   metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run builds every module of plan.Workspace up to plan.Goal. A cyclic
// internal module graph is returned as an error before any stage runs;
// stage failures are reported per module in the Result.
func (p *Pipeline) Run(ctx context.Context, plan Plan) (*Result, error) {
	if err := plan.Goal.Validate(); err != nil {
		return nil, err
	}
	order, err := resolve.CheckCycles(plan.Workspace)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	id := uuid.NewString()
	r := &run{
		Pipeline: p,
		plan:     plan,
		logger:   p.logger.With("build", id),
		results:  make(map[manifest.ModuleID]*ModuleResult, len(order)),
		classes:  make(map[manifest.ModuleID]string, len(order)),
	}
	r.logger.Info("build started", "goal", plan.Goal, "modules", len(order), "workers", p.workers)

	_, err = scheduler.Run(ctx, resolve.ModuleGraph(plan.Workspace), scheduler.Options{
		Workers: p.workers,
		Logger:  r.logger,
		OnDone:  r.done,
	}, r.module)
	if err != nil {
		return nil, err
	}

	res := &Result{ID: id, Goal: plan.Goal, Order: order, Modules: r.results, Duration: time.Since(start)}
	p.recorder.ObserveBuildDuration(res.Duration)
	r.logger.Info("build finished",
		"ok", res.OK(),
		"failed", len(res.Failed()),
		"blocked", len(res.Blocked()),
		"duration", res.Duration)
	return res, nil
}

// module runs the goal's stages for one module. The returned error blocks
// the module's dependents, so test failures are only recorded.
func (r *run) module(ctx context.Context, node string) error {
	id := manifest.ModuleID(node)
	m, _ := r.plan.Workspace.Module(id)
	mr := r.result(id)
	goal := r.plan.Goal

	if err := r.step(mr, StageResolve, func() (err error) {
		mr.Graph, err = r.resolve(ctx, m)
		return err
	}); err != nil {
		return err
	}

	if goal.has(StageGenerate) && len(m.Codegen) > 0 {
		if err := r.step(mr, StageGenerate, func() (err error) {
			mr.Generated, err = r.components.Codegen.Generate(ctx, m)
			return err
		}); err != nil {
			return err
		}
	}

	if !goal.has(StageCompile) {
		return nil
	}
	if err := r.step(mr, StageCompile, func() (err error) {
		mr.Classes, err = r.components.Compiler.Compile(ctx, compile.Request{
			Module:    m,
			Graph:     mr.Graph,
			SourceSet: compile.SourceSetMain,
			Generated: mr.Generated,
			Modules:   r.classDirs(),
		})
		return err
	}); err != nil {
		return err
	}
	r.mu.Lock()
	r.classes[id] = mr.Classes.ClassDir
	r.mu.Unlock()

	var (
		branches    errgroup.Group
		assembleErr error
	)
	if goal.has(StageAssemble) {
		branches.Go(func() error {
			assembleErr = r.step(mr, StageAssemble, func() (err error) {
				mr.Artifact, err = r.components.Assembler.Assemble(ctx, assembly.Request{
					Module:  m,
					Output:  mr.Classes,
					Graph:   mr.Graph,
					Modules: r.classDirs(),
				})
				return err
			})
			return nil
		})
	}
	if goal.has(StageTest) {
		branches.Go(func() error {
			r.step(mr, StageTest, func() error { return r.test(ctx, m, mr) }) //nolint:errcheck // recorded in mr.Stages
			return nil
		})
	}
	branches.Wait() //nolint:errcheck // branches record their own errors
	return assembleErr
}

// step runs fn as stage s of mr, recording its duration and outcome.
func (r *run) step(mr *ModuleResult, s Stage, fn func() error) error {
	r.mu.Lock()
	mr.Stage = s
	r.mu.Unlock()

	start := time.Now()
	err := fn()
	d := time.Since(start)

	sr := StageResult{Stage: s, State: scheduler.StateSucceeded, Duration: d}
	result := metrics.ResultSuccess
	if err != nil {
		err = &StageError{Module: mr.Module, Stage: s, Err: err}
		sr.State, sr.Err = scheduler.StateFailed, err
		result = metrics.ResultFailed
	}
	r.recorder.ObserveStageDuration(s.label(), d)
	r.recorder.IncStageResult(s.label(), result)

	r.mu.Lock()
	mr.Stages = append(mr.Stages, sr)
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("stage failed", "module", mr.Module, "stage", s, "duration", d, "error", err)
	} else {
		r.logger.Debug("stage finished", "module", mr.Module, "stage", s, "duration", d)
	}
	return err
}

func (r *run) resolve(ctx context.Context, m *manifest.Module) (*resolve.Graph, error) {
	if r.plan.Lock != nil {
		g, ok := r.plan.Lock.Graph(m.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotLocked, m.ID)
		}
		return g, nil
	}
	internal := make(map[manifest.ModuleID]*resolve.Graph, len(m.Internal))
	r.mu.Lock()
	for _, ref := range m.Internal {
		if dep, ok := r.results[ref.Module]; ok {
			internal[ref.Module] = dep.Graph
		}
	}
	r.mu.Unlock()
	return r.components.Resolver.Resolve(ctx, m, internal)
}

// test compiles the module's test sources, then discovers and runs the
// test classes.
func (r *run) test(ctx context.Context, m *manifest.Module, mr *ModuleResult) error {
	out, err := r.components.Compiler.Compile(ctx, compile.Request{
		Module:      m,
		Graph:       mr.Graph,
		SourceSet:   compile.SourceSetTest,
		Modules:     r.classDirs(),
		MainClasses: mr.Classes.ClassDir,
	})
	if err != nil {
		return err
	}
	mr.TestClasses = out

	tests, err := testrun.Discover(out.ClassDir, m.Test)
	if err != nil {
		return err
	}
	if len(tests) == 0 {
		r.logger.Info("no tests", "module", m.ID)
		mr.Tests = &testrun.Report{Module: m.ID}
		return nil
	}
	report, err := r.components.Tests.Run(ctx, tests, testrun.Options{
		Module:    m.ID,
		Dir:       m.Dir,
		Classpath: append([]string{out.ClassDir}, out.Classpath...),
		Settings:  m.Test,
	})
	if err != nil {
		return err
	}
	mr.Tests = report
	if !report.OK() {
		return &TestFailureError{Module: m.ID, Failed: report.Failed(), Total: len(report.Results)}
	}
	return nil
}

// result returns the result record of id, creating it on first use.
func (r *run) result(id manifest.ModuleID) *ModuleResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resultLocked(id)
}

func (r *run) resultLocked(id manifest.ModuleID) *ModuleResult {
	mr, ok := r.results[id]
	if !ok {
		mr = &ModuleResult{Module: id}
		r.results[id] = mr
	}
	return mr
}

// classDirs snapshots the main class directories compiled so far.
func (r *run) classDirs() map[manifest.ModuleID]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.classes)
}

// done settles a module's state once the scheduler reports its outcome.
func (r *run) done(o *scheduler.Outcome) {
	r.mu.Lock()
	mr := r.resultLocked(manifest.ModuleID(o.Node))
	mr.Duration = o.Duration
	mr.State = o.State
	switch o.State {
	case scheduler.StateBlocked:
		mr.Err = o.Err
		for _, dep := range o.BlockedBy {
			mr.BlockedBy = append(mr.BlockedBy, manifest.ModuleID(dep))
		}
		r.recorder.IncStageResult(StageResolve.label(), metrics.ResultBlocked)
	case scheduler.StateCanceled:
		mr.Err = o.Err
	default:
		mr.Err = o.Err
		if failed, ok := mr.failedStage(); ok {
			mr.State, mr.Stage, mr.Err = scheduler.StateFailed, failed.Stage, failed.Err
		}
	}
	r.mu.Unlock()

	if mr.State == scheduler.StateSucceeded {
		r.logger.Info("module finished", "module", mr.Module, "stage", mr.Stage, "duration", mr.Duration)
	} else {
		r.logger.Warn("module did not finish", "module", mr.Module, "state", mr.State, "stage", mr.Stage, "error", mr.Err)
	}
	if r.progress != nil {
		r.progress(mr)
	}
}
