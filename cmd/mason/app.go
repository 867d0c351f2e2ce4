// SPDX-License-Identifier: MPL-2.0

package cmd

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

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/masonbuild/mason/internal/assembly"
	"github.com/masonbuild/mason/internal/build"
	"github.com/masonbuild/mason/internal/codegen"
	"github.com/masonbuild/mason/internal/compile"
	"github.com/masonbuild/mason/internal/config"
	"github.com/masonbuild/mason/internal/issue"
	"github.com/masonbuild/mason/internal/metrics"
	"github.com/masonbuild/mason/internal/testrun"
	"github.com/masonbuild/mason/pkg/manifest"
	"github.com/masonbuild/mason/pkg/repository"
	"github.com/masonbuild/mason/pkg/resolve"
	"github.com/masonbuild/mason/pkg/types"
)

const (
	formatText = "text"
	formatYAML = "yaml"

	codegenDatabase = "codegen.db"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// App is the composition root of the CLI. Command handlers receive it and
	// build per-invocation sessions through it.
	App struct {
		Config ConfigProvider
		stdout io.Writer
		stderr io.Writer
		flags  rootFlags
	}

	// Dependencies are the injection points of NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config ConfigProvider
		Stdout io.Writer
		Stderr io.Writer
	}

	rootFlags struct {
		configPath  string
		workspace   string
		logLevel    string
		format      string
		metricsFile string
		workers     int
		verbose     bool
	}

	// session is the state of one command invocation against a workspace.
	session struct {
		cfg      *config.Config
		logger   *slog.Logger
		ws       *manifest.Workspace
		repo     *repository.Local
		prom     *metrics.PrometheusRecorder
		recorder metrics.Recorder
	}

	// workspaceOptions narrow what a session loads.
	workspaceOptions struct {
		only   []string
		filter []string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{Config: deps.Config, stdout: deps.Stdout, stderr: deps.Stderr}
}

// loadConfig loads the configuration and applies the root flags that were
// set explicitly on the command line.
func (a *App) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := a.Config.Load(cmd.Context(), config.LoadOptions{
		ConfigFilePath: types.FilesystemPath(a.flags.configPath),
		WorkspaceDir:   types.FilesystemPath(a.flags.workspace),
	})
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = a.flags.workers
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = config.LogLevel(a.flags.logLevel)
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = a.flags.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("apply command line flags").
			WithIssue(issue.ConfigLoadFailedID).
			Wrap(err).
			BuildError()
	}
	return cfg, nil
}

// newLogger installs charmbracelet/log as the slog handler.
func (a *App) newLogger(cfg *config.Config) *slog.Logger {
	level, err := log.ParseLevel(string(cfg.LogLevel))
	if err != nil {
		level = log.InfoLevel
	}
	handler := log.NewWithOptions(a.stderr, log.Options{
		Prefix:          config.AppName,
		Level:           level,
		ReportTimestamp: a.flags.verbose,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// open loads configuration and the workspace.
func (a *App) open(cmd *cobra.Command, opts workspaceOptions) (*session, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: a.newLogger(cfg), recorder: metrics.NoopRecorder{}}
	if cfg.MetricsFile != "" {
		s.prom = metrics.NewPrometheusRecorder(prometheus.NewRegistry())
		s.recorder = s.prom
	}

	root, err := filepath.Abs(a.flags.workspace)
	if err != nil {
		return nil, err
	}
	only := make([]manifest.ModuleID, len(opts.only))
	for i, id := range opts.only {
		only[i] = manifest.ModuleID(id)
	}
	var profiles []string
	if len(cfg.Profiles) > 0 {
		profiles = cfg.Profiles
	}
	ws, err := manifest.LoadWorkspace(cmd.Context(), root, manifest.LoadOptions{Profiles: profiles, Only: only})
	if err != nil {
		id := issue.ManifestInvalidID
		if errors.Is(err, fs.ErrNotExist) {
			id = issue.WorkspaceNotFoundID
		}
		return nil, issue.NewErrorContext().
			WithOperation("load workspace").
			WithResource(root).
			WithIssue(id).
			Wrap(err).
			BuildError()
	}
	for _, m := range ws.Modules {
		if cfg.Test.Isolation != "" {
			m.Test.Isolation = cfg.Test.Isolation
		}
		if cfg.Test.Parallelism > 0 {
			m.Test.Parallelism = cfg.Test.Parallelism
		}
		if len(opts.filter) > 0 {
			m.Test.Filter = opts.filter
		}
	}
	s.ws = ws

	repoPath, err := repositoryPath(cfg, ws)
	if err != nil {
		return nil, err
	}
	s.repo = repository.NewLocal(repoPath)
	s.logger.Debug("opened workspace", "root", ws.Root, "modules", len(ws.Modules), "repository", repoPath)
	return s, nil
}

// repositoryPath picks the configured repository, then the workspace one,
// then ~/.m2/repository.
func repositoryPath(cfg *config.Config, ws *manifest.Workspace) (string, error) {
	switch {
	case cfg.Repository.Path != "":
		return cfg.Repository.Path, nil
	case ws.Repository != "":
		return ws.Repository, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate local repository: %w", err)
	}
	return filepath.Join(home, ".m2", "repository"), nil
}

// cacheDir resolves the configured cache directory against the workspace.
func (s *session) cacheDir() string {
	return s.cfg.CacheDir.Resolve(s.ws.Root)
}

// resolver builds the version resolver from the workspace catalog.
func (s *session) resolver(ctx context.Context) (*resolve.Resolver, error) {
	table, err := manifest.LoadConstraints(ctx, s.ws.VersionsPath, s.ws.Profiles, s.repo)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load version catalog").
			WithResource(s.ws.VersionsPath).
			WithIssue(issue.ManifestInvalidID).
			Wrap(err).
			BuildError()
	}
	return resolve.New(table, s.repo,
		resolve.WithPolicy(s.cfg.Resolve.ConflictPolicy),
		resolve.WithLogger(s.logger),
	), nil
}

// codegen opens the fingerprint database and returns the pipeline and its
// closer.
func (s *session) codegen(output io.Writer) (*codegen.Pipeline, func() error, error) {
	store, err := codegen.OpenSQLiteStore(filepath.Join(s.cacheDir(), codegenDatabase))
	if err != nil {
		return nil, nil, err
	}
	p := codegen.NewPipeline(
		codegen.DefaultRegistry(s.cfg.Codegen.GrammarCommand, s.cfg.Codegen.SchemaCommand),
		store,
		codegen.WithLogger(s.logger),
		codegen.WithRecorder(s.recorder),
		codegen.WithOutput(output, output),
	)
	return p, store.Close, nil
}

// pipeline wires the components goal needs. Tool output goes to output so
// that stdout only carries reports.
func (s *session) pipeline(ctx context.Context, goal build.Goal, output io.Writer, progress func(*build.ModuleResult)) (*build.Pipeline, func() error, error) {
	stages := goal.Stages()
	closer := func() error { return nil }

	var c build.Components
	resolver, err := s.resolver(ctx)
	if err != nil {
		return nil, nil, err
	}
	c.Resolver = resolver
	if slices.Contains(stages, build.StageGenerate) {
		p, closeStore, err := s.codegen(output)
		if err != nil {
			return nil, nil, err
		}
		c.Codegen, closer = p, closeStore
	}
	if slices.Contains(stages, build.StageCompile) {
		c.Compiler = compile.New(s.repo,
			compile.WithCommand(s.cfg.Compile.Command),
			compile.WithRelease(s.cfg.Compile.Release),
			compile.WithLogger(s.logger),
			compile.WithOutput(output, output),
		)
	}
	if slices.Contains(stages, build.StageAssemble) {
		c.Assembler = assembly.New(s.repo, assembly.WithLogger(s.logger), assembly.WithRecorder(s.recorder))
	}
	if slices.Contains(stages, build.StageTest) {
		c.Tests = testrun.New(
			testrun.WithCommand(s.cfg.Test.JavaCommand),
			testrun.WithRunnerMain(s.cfg.Test.RunnerMain),
			testrun.WithLogger(s.logger),
			testrun.WithRecorder(s.recorder),
			testrun.WithOutput(output),
		)
	}

	p := build.New(c,
		build.WithWorkers(s.cfg.Workers),
		build.WithLogger(s.logger),
		build.WithRecorder(s.recorder),
		build.WithProgress(progress),
	)
	return p, closer, nil
}

// close flushes the metrics textfile when one is configured.
func (s *session) close() {
	if s.prom == nil {
		return
	}
	if err := s.prom.WriteTextfile(s.cfg.MetricsFile); err != nil {
		s.logger.Warn("failed to write metrics textfile", "path", s.cfg.MetricsFile, "error", err)
	}
}
