// SPDX-License-Identifier: MPL-2.0

package compile

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
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/masonbuild/mason/internal/codegen"
	"github.com/masonbuild/mason/internal/runtime"
	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/manifest"
	"github.com/masonbuild/mason/pkg/repository"
	"github.com/masonbuild/mason/pkg/resolve"
)

const (
	// DefaultCommand is the compiler command template. The argument file
	// holds every option and source path.
	DefaultCommand = `javac "@$MASON_ARGFILE"`

	// BuildDir is the module-relative directory for build outputs.
	BuildDir = "build"

	// SourceSetMain is the production source set.
	SourceSetMain SourceSet = "main"
	// SourceSetTest is the test source set, compiled against main classes.
	SourceSetTest SourceSet = "test"
)

type (
	// SourceSet selects which sources of a module are compiled.
	SourceSet string

	// Request describes one compilation.
	Request struct {
		Module *manifest.Module
		// Graph is the module's resolved graph. Nil means no third-party classpath.
		Graph     *resolve.Graph
		SourceSet SourceSet
		// Generated sources are compiled with the main source set.
		Generated []*codegen.GeneratedSources
		// Modules maps internal dependencies to their main class directories.
		Modules map[manifest.ModuleID]string
		// MainClasses is the module's own main class directory, placed first
		// on the test classpath.
		MainClasses string
	}

	// Output is the result of a successful compilation.
	Output struct {
		Module    manifest.ModuleID
		SourceSet SourceSet
		ClassDir  string
		// Entries are the produced class and resource paths, slash-separated,
		// relative to ClassDir and sorted.
		Entries   []string
		Classpath []string
		// Argfile is the argument file passed to the compiler, kept for
		// diagnosis. Empty when there was nothing to compile.
		Argfile string
	}

	// Compiler runs the compiler command template.
	Compiler struct {
		command string
		release int
		locator repository.ArtifactLocator
		logger  *slog.Logger
		stdout  io.Writer
		stderr  io.Writer
	}

	// Option configures a Compiler.
	Option func(*Compiler)
)

// String returns the source set name.
func (s SourceSet) String() string { return string(s) }

// Validate returns an error for unknown source sets.
func (s SourceSet) Validate() error {
	switch s {
	case SourceSetMain, SourceSetTest:
		return nil
	}
	return fmt.Errorf("unknown source set %q", s)
}

// WithCommand replaces DefaultCommand. An empty template keeps the default.
func WithCommand(command string) Option {
	return func(c *Compiler) {
		if command != "" {
			c.command = command
		}
	}
}

// WithRelease sets the release level used for modules that do not declare one.
func WithRelease(release int) Option {
	return func(c *Compiler) { c.release = release }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) { c.logger = l }
}

// WithOutput sets where compiler output is streamed.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *Compiler) { c.stdout, c.stderr = stdout, stderr }
}

// New returns a Compiler that locates third-party archives through locator.
func New(locator repository.ArtifactLocator, opts ...Option) *Compiler {
	c := &Compiler{
		command: DefaultCommand,
		locator: locator,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClassDir returns the class output directory of a module source set.
func ClassDir(m *manifest.Module, set SourceSet) string {
	return filepath.Join(m.Dir, BuildDir, "classes", "java", string(set))
}

// Compile compiles one source set of a module into a fresh class directory.
// Main resources are copied next to the classes.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Output, error) {
	m := req.Module
	set := req.SourceSet
	if set == "" {
		set = SourceSetMain
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	sources, err := c.sources(m, set, req.Generated)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", m.ID, err)
	}
	classpath, err := c.classpath(req, set)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", m.ID, err)
	}

	out := &Output{Module: m.ID, SourceSet: set, ClassDir: ClassDir(m, set), Classpath: classpath}
	if err := os.RemoveAll(out.ClassDir); err != nil {
		return nil, fmt.Errorf("clean %s: %w", out.ClassDir, err)
	}
	if err := os.MkdirAll(out.ClassDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", out.ClassDir, err)
	}

	if len(sources) > 0 {
		if err := c.run(ctx, m, set, out, sources); err != nil {
			return nil, err
		}
	} else {
		c.logger.Debug("no sources to compile", "module", m.ID, "source_set", set)
	}

	if set == SourceSetMain {
		if err := copyResources(m, out.ClassDir); err != nil {
			return nil, fmt.Errorf("module %s: %w", m.ID, err)
		}
	}
	if out.Entries, err = listEntries(out.ClassDir); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Compiler) run(ctx context.Context, m *manifest.Module, set SourceSet, out *Output, sources []string) error {
	release := m.Release
	if release == 0 {
		release = c.release
	}
	out.Argfile = filepath.Join(m.Dir, BuildDir, "tmp", "compile-"+string(set)+".args")
	if err := writeArgfile(out.Argfile, compilerArgs(out.ClassDir, release, out.Classpath, sources)); err != nil {
		return fmt.Errorf("write argument file: %w", err)
	}

	name := "compile " + string(m.ID)
	start := time.Now()
	res := runtime.Run(ctx, runtime.Command{
		Name:   name,
		Script: c.command,
		Dir:    m.Dir,
		Env: map[string]string{
			"MASON_ARGFILE":    out.Argfile,
			"MASON_OUT":        out.ClassDir,
			"MASON_CLASSPATH":  strings.Join(out.Classpath, string(os.PathListSeparator)),
			"MASON_RELEASE":    strconv.Itoa(release),
			"MASON_SOURCE_SET": string(set),
			"MASON_MODULE":     string(m.ID),
			"MASON_MODULE_DIR": m.Dir,
		},
		Stdout: c.stdout,
		Stderr: c.stderr,
	})
	if res.Error != nil {
		return fmt.Errorf("module %s: %w", m.ID, res.Error)
	}
	if err := res.Err(name); err != nil {
		ce := &CompileError{Module: m.ID, SourceSet: set, ExitCode: res.ExitCode, Err: err}
		var cmdErr *runtime.CommandError
		if errors.As(err, &cmdErr) {
			ce.Stderr = cmdErr.Stderr
		}
		return ce
	}
	c.logger.Info("compiled sources", "module", m.ID, "source_set", set, "sources", len(sources), "duration", time.Since(start))
	return nil
}

// sources lists the .java files of a source set, sorted and deduplicated.
func (c *Compiler) sources(m *manifest.Module, set SourceSet, generated []*codegen.GeneratedSources) ([]string, error) {
	dirs := m.Sources
	if set == SourceSetTest {
		dirs = m.TestSources
	}
	var out []string
	for _, dir := range dirs {
		found, err := globFiles(filepath.Join(m.Dir, filepath.FromSlash(dir)), "**/*.java")
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	if set == SourceSetMain {
		for _, gs := range generated {
			if gs == nil {
				continue
			}
			for _, p := range gs.Paths() {
				if strings.HasSuffix(p, ".java") {
					out = append(out, p)
				}
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// classpath orders internal class directories before third-party archives.
func (c *Compiler) classpath(req Request, set SourceSet) ([]string, error) {
	visible := coord.Scope.OnCompileClasspath
	if set == SourceSetTest {
		visible = coord.Scope.OnTestClasspath
	}

	var cp []string
	if set == SourceSetTest && req.MainClasses != "" {
		cp = append(cp, req.MainClasses)
	}
	if req.Graph == nil {
		return cp, nil
	}
	for _, id := range req.Graph.InternalModules(visible) {
		dir, ok := req.Modules[id]
		if !ok {
			return nil, fmt.Errorf("%w: classes of module %s", ErrMissingClasspathEntry, id)
		}
		cp = append(cp, dir)
	}
	for _, n := range req.Graph.Select(visible) {
		if c.locator == nil {
			return nil, fmt.Errorf("%w: %s:%s (no repository)", ErrMissingClasspathEntry, n.Coordinate, n.Version)
		}
		p, err := c.locator.ArtifactPath(n.Coordinate, n.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMissingClasspathEntry, err)
		}
		cp = append(cp, p)
	}
	return cp, nil
}

// globFiles returns absolute paths of files under root matching pattern. A
// missing root yields nothing.
func globFiles(root, pattern string) ([]string, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", root, err)
	}
	out := make([]string, 0, len(matches))
	for _, rel := range matches {
		out = append(out, filepath.Join(root, filepath.FromSlash(rel)))
	}
	return out, nil
}

func copyResources(m *manifest.Module, classDir string) error {
	for _, dir := range m.Resources {
		root := filepath.Join(m.Dir, filepath.FromSlash(dir))
		files, err := globFiles(root, "**")
		if err != nil {
			return err
		}
		for _, src := range files {
			rel, err := filepath.Rel(root, src)
			if err != nil {
				return err
			}
			if err := copyFile(src, filepath.Join(classDir, rel)); err != nil {
				return fmt.Errorf("copy resource %s: %w", rel, err)
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func listEntries(root string) ([]string, error) {
	var entries []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	slices.Sort(entries)
	return entries, nil
}
