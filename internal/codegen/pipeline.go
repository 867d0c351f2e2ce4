// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/masonbuild/mason/internal/dag"
	"github.com/masonbuild/mason/internal/metrics"
	"github.com/masonbuild/mason/internal/scheduler"
	"github.com/masonbuild/mason/pkg/manifest"
)

// stagingPattern names the per-run staging directory created next to a
// unit's output directory, on the same filesystem so promotion is a rename.
const stagingPattern = ".mason-staging-*"

type (
	// Pipeline runs generation units. One Pipeline tracks output ownership
	// for every unit it runs, so it should span a whole build invocation.
	Pipeline struct {
		registry *Registry
		store    FingerprintStore
		logger   *slog.Logger
		recorder metrics.Recorder
		stdout   io.Writer
		stderr   io.Writer

		mu     sync.Mutex
		owners map[string]string
		last   map[string]*GeneratedSources
	}

	// Option configures a Pipeline.
	Option func(*Pipeline)
)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithOutput tees generator output to stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(p *Pipeline) { p.stdout, p.stderr = stdout, stderr }
}

// NewPipeline returns a pipeline dispatching through registry and recording
// fingerprints in store.
func NewPipeline(registry *Registry, store FingerprintStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: registry,
		store:    store,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		owners:   make(map[string]string),
		last:     make(map[string]*GeneratedSources),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run generates one unit, or returns its recorded output when the unit's
// fingerprint is unchanged and every recorded file is still present.
func (p *Pipeline) Run(ctx context.Context, u *Unit) (*GeneratedSources, error) {
	gen, err := p.registry.Lookup(u.Kind)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", u.Module, err)
	}
	fp, err := Fingerprint(u, gen.Command())
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", u.Module, err)
	}
	rec, found, err := p.store.Get(ctx, u.ID())
	if err != nil {
		return nil, err
	}

	if found && rec.Fingerprint == fp && outputPresent(u.Output, rec.Files) {
		if err := p.claim(u, rec.Files); err != nil {
			return nil, err
		}
		p.recorder.IncCodegenCache(string(u.Kind), true)
		p.logger.Debug("generated sources up to date", "unit", u.ID(), "files", len(rec.Files))
		return p.remember(u, fp, rec.Files), nil
	}
	p.recorder.IncCodegenCache(string(u.Kind), false)

	if err := gen.Validate(ctx, u); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(u.Output), 0o755); err != nil {
		return nil, fmt.Errorf("create output parent: %w", err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(u.Output), stagingPattern)
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging) //nolint:errcheck // best-effort cleanup

	if err := gen.Generate(ctx, Invocation{Unit: u, OutDir: staging, Stdout: p.stdout, Stderr: p.stderr}); err != nil {
		return nil, err
	}
	files, err := listFiles(staging)
	if err != nil {
		return nil, err
	}
	if err := p.claim(u, files); err != nil {
		return nil, err
	}
	var stale []string
	if found {
		stale = rec.Files
	}
	if err := promote(staging, u.Output, files, stale); err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, u.ID(), Record{Fingerprint: fp, Files: files}); err != nil {
		return nil, err
	}

	p.logger.Info("generated sources", "unit", u.ID(), "files", len(files), "duration", time.Since(start))
	return p.remember(u, fp, files), nil
}

// RunModule runs the units of one module. Grammar units run before schema
// units whose output namespace they overlap; other units run concurrently.
// The result is indexed like units; entries of failed or blocked units are nil.
func (p *Pipeline) RunModule(ctx context.Context, units []*Unit) ([]*GeneratedSources, error) {
	out := make([]*GeneratedSources, len(units))
	if len(units) == 0 {
		return out, nil
	}

	g := dag.New()
	index := make(map[string]int, len(units))
	for i, u := range units {
		g.AddNode(u.ID())
		index[u.ID()] = i
	}
	for _, a := range units {
		if a.Kind != manifest.KindGrammar {
			continue
		}
		for _, b := range units {
			if b.Kind == manifest.KindSchema && overlaps(a, b) {
				g.AddEdge(a.ID(), b.ID())
			}
		}
	}

	res, err := scheduler.Run(ctx, g, scheduler.Options{Workers: len(units), Logger: p.logger}, func(ctx context.Context, id string) error {
		i := index[id]
		gs, err := p.Run(ctx, units[i])
		out[i] = gs
		return err
	})
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, u := range units {
		o := res.Outcomes[u.ID()]
		switch o.State {
		case scheduler.StateFailed:
			errs = append(errs, o.Err)
		case scheduler.StateCanceled:
			return out, o.Err
		}
	}
	return out, errors.Join(errs...)
}

// Generate plans and runs the codegen stages of m.
func (p *Pipeline) Generate(ctx context.Context, m *manifest.Module) ([]*GeneratedSources, error) {
	units, err := Plan(m)
	if err != nil {
		return nil, err
	}
	return p.RunModule(ctx, units)
}

// claim records u as the owner of its output files, failing when another
// unit already owns one of them.
func (p *Pipeline) claim(u *Unit, files []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := u.ID()
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(u.Output, filepath.FromSlash(f))
		if owner, ok := p.owners[paths[i]]; ok && owner != id {
			return &GenerationError{Kind: KindOutputCollision, Module: u.Module, Unit: id, Path: paths[i], Other: owner}
		}
	}
	for path, owner := range p.owners {
		if owner == id {
			delete(p.owners, path)
		}
	}
	for _, path := range paths {
		p.owners[path] = id
	}
	return nil
}

// remember returns the previous GeneratedSources of u when nothing changed,
// so repeated runs hand out the same value.
func (p *Pipeline) remember(u *Unit, fp string, files []string) *GeneratedSources {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.last[u.ID()]; ok && prev.Fingerprint == fp && prev.Dir == u.Output && slices.Equal(prev.Files, files) {
		return prev
	}
	gs := &GeneratedSources{Unit: u.ID(), Dir: u.Output, Files: slices.Clone(files), Fingerprint: fp}
	p.last[u.ID()] = gs
	return gs
}

// outputPresent reports whether every recorded file still exists. An empty
// record never counts as present.
func outputPresent(dir string, files []string) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f)))
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list generated files: %w", err)
	}
	slices.Sort(files)
	return files, nil
}

// promote moves files from staging into out and removes files the unit
// produced last time but not this time.
func promote(staging, out string, files, stale []string) error {
	if err := os.MkdirAll(out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, f := range stale {
		if _, ok := slices.BinarySearch(files, f); ok {
			continue
		}
		if err := os.Remove(filepath.Join(out, filepath.FromSlash(f))); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale output: %w", err)
		}
	}
	for _, f := range files {
		src := filepath.Join(staging, filepath.FromSlash(f))
		dst := filepath.Join(out, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("promote %s: %w", f, err)
		}
	}
	return nil
}
