// SPDX-License-Identifier: MPL-2.0

package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/masonbuild/mason/internal/classfile"
	"github.com/masonbuild/mason/internal/compile"
	"github.com/masonbuild/mason/internal/metrics"
	"github.com/masonbuild/mason/pkg/manifest"
	"github.com/masonbuild/mason/pkg/repository"
	"github.com/masonbuild/mason/pkg/resolve"
)

// LibsDir is the module-relative directory archives are written to by default.
const LibsDir = "build/libs"

type (
	// Request is the input of one assembly.
	Request struct {
		// Module supplies the assembly rules, manifest attributes and version.
		Module *manifest.Module
		// Output is the module's main compilation output; its entries are the
		// minimization roots.
		Output *compile.Output
		// Graph is the module's resolved graph. Compile and runtime nodes and
		// internal modules are collected.
		Graph *resolve.Graph
		// Modules maps internal dependencies to their main class directories.
		Modules map[manifest.ModuleID]string
	}

	// Artifact is a packaged archive.
	Artifact struct {
		Module manifest.ModuleID
		Path   string
		// SHA256 is the hex digest of the archive bytes.
		SHA256 string
		Size   int64
		// Entries are the file members in archive order.
		Entries []string
		// Kept and Dropped count classes retained and removed by minimization.
		Kept, Dropped int
		Relocated     int
		Excluded      int
		Stripped      int
		// Services maps service interfaces to their merged providers.
		Services map[string][]string
	}

	// Engine assembles module archives.
	Engine struct {
		locator  repository.ArtifactLocator
		logger   *slog.Logger
		recorder metrics.Recorder
	}

	// Option configures an Engine.
	Option func(*Engine)
)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// New returns an Engine that reads third-party archives through locator.
func New(locator repository.ArtifactLocator, opts ...Option) *Engine {
	e := &Engine{locator: locator, logger: slog.Default(), recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ArchivePath returns where the archive of m is written.
func ArchivePath(m *manifest.Module) string {
	if m.Assembly != nil && m.Assembly.Output != "" {
		if filepath.IsAbs(m.Assembly.Output) {
			return m.Assembly.Output
		}
		return filepath.Join(m.Dir, filepath.FromSlash(m.Assembly.Output))
	}
	name := string(m.ID)
	if m.Version != "" {
		name += "-" + m.Version
	}
	return filepath.Join(m.Dir, filepath.FromSlash(LibsDir), name+".jar")
}

// Assemble collects, relocates, minimizes, merges service registrations,
// strips signatures and writes the archive.
func (e *Engine) Assemble(ctx context.Context, req Request) (*Artifact, error) {
	m := req.Module
	rules := m.Assembly
	if rules == nil {
		rules = &manifest.AssemblyRules{MergeServiceFiles: true}
	}
	start := time.Now()

	c := newCollection()
	if err := e.collectRoot(c, req); err != nil {
		return nil, err
	}
	if err := e.collectClosure(ctx, c, req); err != nil {
		return nil, fmt.Errorf("module %s: %w", m.ID, err)
	}
	art := &Artifact{Module: m.ID, Path: ArchivePath(m)}
	art.Excluded = c.exclude(rules.Exclude)

	relocator := classfile.NewRelocator(relocationRules(rules.Relocations)...)
	var err error
	if art.Relocated, err = c.relocate(relocator); err != nil {
		return nil, fmt.Errorf("module %s: %w", m.ID, err)
	}

	attrs := maps.Clone(m.Attributes)
	if attrs == nil {
		attrs = make(map[string]string)
	}
	mainClass := relocator.Dotted(attrs["Main-Class"])
	if mainClass != "" {
		attrs["Main-Class"] = mainClass
		if _, ok := c.byName[classfile.EntryName(classfile.InternalName(mainClass))]; !ok {
			return nil, &AssemblyError{Kind: KindRootUnreachable, Module: m.ID, Entry: mainClass, Err: errMainClass}
		}
	}
	if _, ok := attrs["Implementation-Version"]; !ok && m.Version != "" {
		attrs["Implementation-Version"] = m.Version
	}

	services := c.providers(rules.MergeServiceFiles)
	if rules.Minimize {
		if art.Kept, art.Dropped, err = c.minimize(m.ID, rules.Keep, mainClass, services, e.logger); err != nil {
			return nil, err
		}
		e.recorder.ObserveAssemblyEntries(string(m.ID), art.Kept, art.Dropped)
	}
	if err := c.checkProviders(m.ID, services); err != nil {
		return nil, err
	}
	art.Services = make(map[string][]string, len(services))
	for iface, providers := range services {
		if len(providers) > 0 {
			art.Services[iface] = providers
		}
	}
	art.Stripped = c.strip()

	entries := c.archiveEntries(renderServices(art.Services))
	data, err := encodeArchive(append([]ArchiveEntry{{Name: ManifestName, Data: renderManifest(attrs)}}, entries...))
	if err != nil {
		return nil, fmt.Errorf("module %s: encode archive: %w", m.ID, err)
	}
	if art.SHA256, err = writeArchive(art.Path, data); err != nil {
		return nil, fmt.Errorf("module %s: %w", m.ID, err)
	}
	art.Size = int64(len(data))
	art.Entries = append([]string{ManifestName}, entryNames(entries)...)

	e.logger.Info("assembled archive",
		"module", m.ID,
		"path", art.Path,
		"entries", len(art.Entries),
		"dropped", art.Dropped,
		"relocated", art.Relocated,
		"duration", time.Since(start))
	return art, nil
}

// archiveEntries returns entries and rendered service files sorted by name.
func (c *collection) archiveEntries(services map[string][]byte) []ArchiveEntry {
	out := make([]ArchiveEntry, 0, len(c.entries)+len(services))
	for _, e := range c.entries {
		if _, replaced := services[e.name]; replaced {
			continue
		}
		out = append(out, ArchiveEntry{Name: e.name, Data: e.data})
	}
	for name, data := range services {
		out = append(out, ArchiveEntry{Name: name, Data: data})
	}
	slices.SortFunc(out, func(a, b ArchiveEntry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func entryNames(entries []ArchiveEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func relocationRules(rs []manifest.Relocation) []classfile.Rule {
	out := make([]classfile.Rule, 0, len(rs))
	for _, r := range rs {
		out = append(out, classfile.Rule{From: r.From, To: r.To})
	}
	return out
}
