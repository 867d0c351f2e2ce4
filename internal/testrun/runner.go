// SPDX-License-Identifier: MPL-2.0

package testrun

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/masonbuild/mason/internal/metrics"
	"github.com/masonbuild/mason/internal/runtime"
	"github.com/masonbuild/mason/pkg/manifest"
)

const (
	// DefaultCommand launches a JVM with the assembled arguments.
	DefaultCommand = `java "$@"`
	// DefaultRunnerMain is the main class that executes test classes and
	// prints the report protocol.
	DefaultRunnerMain = "com.starrocks.mason.TestRunner"
)

type (
	// Options describe one module's test run.
	Options struct {
		Module manifest.ModuleID
		// Dir is the working directory of test processes.
		Dir string
		// Classpath holds test classes, main classes and test-visible dependencies.
		Classpath []string
		Settings  manifest.TestSettings
	}

	// Runner launches test processes.
	Runner struct {
		command    string
		runnerMain string
		logger     *slog.Logger
		recorder   metrics.Recorder
		output     io.Writer
	}

	// Option configures a Runner.
	Option func(*Runner)

	// process is one JVM launch and the classes it runs.
	process struct {
		index   int
		classes []string
		agents  []manifest.Agent
	}
)

// WithCommand replaces DefaultCommand. An empty template keeps the default.
func WithCommand(command string) Option {
	return func(r *Runner) {
		if command != "" {
			r.command = command
		}
	}
}

// WithRunnerMain replaces DefaultRunnerMain.
func WithRunnerMain(main string) Option {
	return func(r *Runner) {
		if main != "" {
			r.runnerMain = main
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithOutput sets where non-protocol process output is copied.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.output = w }
}

// New returns a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		command:    DefaultCommand,
		runnerMain: DefaultRunnerMain,
		logger:     slog.Default(),
		recorder:   metrics.NoopRecorder{},
		output:     io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes tests with at most Settings.Parallelism processes at a time.
// Test failures are recorded in the report; a process that cannot be
// launched aborts the run with a TestExecutionError.
func (r *Runner) Run(ctx context.Context, tests []string, opts Options) (*Report, error) {
	settings := opts.Settings
	if settings.Isolation == "" {
		settings.Isolation = manifest.IsolationOneProcessPerTest
	}
	if err := settings.Isolation.Validate(); err != nil {
		return nil, err
	}
	workers := max(settings.Parallelism, 1)

	procs := plan(tests, settings, workers)
	report := &Report{Module: opts.Module, Processes: len(procs)}
	start := time.Now()

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, p := range procs {
		eg.Go(func() error {
			results, err := r.launch(ctx, p, opts, settings)
			if err != nil {
				return err
			}
			mu.Lock()
			report.Results = append(report.Results, results...)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	report.sort()
	report.Duration = time.Since(start)
	for _, res := range report.Results {
		r.recorder.IncTestResult(string(res.Status))
	}
	r.logger.Info("tests finished",
		"module", opts.Module,
		"processes", len(procs),
		"passed", report.Count(StatusPassed),
		"failed", report.Count(StatusFailed),
		"skipped", report.Count(StatusSkipped),
		"duration", report.Duration)
	return report, nil
}

// plan maps tests onto processes. Tests are grouped by the agents that
// apply to them so that an agent is attached only to processes running
// matching tests. Under shared-process isolation each group is split into
// at most workers processes; otherwise every test gets its own process.
func plan(tests []string, settings manifest.TestSettings, workers int) []process {
	groups := make(map[string][]string)
	agentsOf := make(map[string][]manifest.Agent)
	for _, t := range tests {
		var key strings.Builder
		var agents []manifest.Agent
		for i, a := range settings.Agents {
			if agentApplies(a, t) {
				agents = append(agents, a)
				key.WriteString(strconv.Itoa(i) + ",")
			}
		}
		groups[key.String()] = append(groups[key.String()], t)
		agentsOf[key.String()] = agents
	}

	var procs []process
	for _, key := range slices.Sorted(maps.Keys(groups)) {
		classes := groups[key]
		if settings.Isolation == manifest.IsolationOneProcessPerTest {
			for _, c := range classes {
				procs = append(procs, process{classes: []string{c}, agents: agentsOf[key]})
			}
			continue
		}
		shards := min(workers, len(classes))
		for s := range shards {
			var shard []string
			for i := s; i < len(classes); i += shards {
				shard = append(shard, classes[i])
			}
			procs = append(procs, process{classes: shard, agents: agentsOf[key]})
		}
	}
	for i := range procs {
		procs[i].index = i
	}
	return procs
}

func agentApplies(a manifest.Agent, class string) bool {
	if len(a.Classes) == 0 {
		return true
	}
	for _, p := range a.Classes {
		if ok, _ := doublestar.Match(p, class); ok {
			return true
		}
	}
	return false
}

// jvmArgs orders JVM options, sorted system properties and agents ahead of
// the classpath, runner main class and test classes.
func (r *Runner) jvmArgs(p process, opts Options, settings manifest.TestSettings) []string {
	args := slices.Clone(settings.JVMArgs)
	for _, k := range slices.Sorted(maps.Keys(settings.SystemProperties)) {
		args = append(args, "-D"+k+"="+settings.SystemProperties[k])
	}
	for _, a := range p.agents {
		arg := "-javaagent:" + a.Path
		if a.Options != "" {
			arg += "=" + a.Options
		}
		args = append(args, arg)
	}
	if len(opts.Classpath) > 0 {
		args = append(args, "-cp", strings.Join(opts.Classpath, string(os.PathListSeparator)))
	}
	args = append(args, r.runnerMain)
	return append(args, p.classes...)
}

// launch runs one process and collects its results.
func (r *Runner) launch(ctx context.Context, p process, opts Options, settings manifest.TestSettings) ([]Result, error) {
	pr, pw := io.Pipe()
	parsed := make(chan parseOutcome, 1)
	go func() {
		parsed <- r.collect(pr, p.index)
	}()

	res := runtime.Run(ctx, runtime.Command{
		Name:   fmt.Sprintf("test process %d", p.index),
		Script: r.command,
		Dir:    opts.Dir,
		Env: map[string]string{
			"MASON_MODULE":       string(opts.Module),
			"MASON_PROCESS":      strconv.Itoa(p.index),
			"MASON_TEST_CLASSES": strings.Join(p.classes, " "),
			"MASON_CLASSPATH":    strings.Join(opts.Classpath, string(os.PathListSeparator)),
			"MASON_RUNNER_MAIN":  r.runnerMain,
		},
		Args:   r.jvmArgs(p, opts, settings),
		Stdout: pw,
		Stderr: r.output,
	})
	pw.Close() //nolint:errcheck // closing a pipe writer does not fail
	out := <-parsed

	fail := func(err error) ([]Result, error) {
		return nil, &TestExecutionError{Module: opts.Module, Process: p.index, Classes: p.classes, Err: err}
	}
	switch {
	case res.Error != nil:
		return fail(res.Error)
	case res.ExitCode.LaunchFailed():
		return fail(fmt.Errorf("could not launch test process (status %s): %s", res.ExitCode, strings.TrimSpace(res.Stderr)))
	case out.err != nil:
		return fail(out.err)
	}
	return settle(p, out.results, res.ExitCode), nil
}

type parseOutcome struct {
	results []Result
	err     error
}

// collect parses protocol lines and copies other output through.
func (r *Runner) collect(rd io.Reader, index int) parseOutcome {
	var out parseOutcome
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		res, ok, err := parseLine(line)
		switch {
		case !ok:
			fmt.Fprintln(r.output, line) //nolint:errcheck // best-effort passthrough
		case err != nil:
			if out.err == nil {
				out.err = err
			}
		default:
			res.Process = index
			out.results = append(out.results, res)
		}
	}
	if err := sc.Err(); err != nil && out.err == nil {
		out.err = err
	}
	io.Copy(io.Discard, rd) //nolint:errcheck // drain so the writer never blocks
	return out
}

// settle adds a class-level result for every class that reported nothing:
// passed on a zero exit, failed otherwise. A non-zero exit with no reported
// failure marks the process's reported classes failed as well.
func settle(p process, results []Result, code runtime.ExitCode) []Result {
	reported := make(map[string]bool)
	anyFailed := false
	for _, res := range results {
		reported[res.Class] = true
		anyFailed = anyFailed || res.Status == StatusFailed
	}
	exitMsg := fmt.Sprintf("test process exited with status %s", code)
	for _, c := range p.classes {
		if reported[c] {
			continue
		}
		res := Result{Class: c, Status: StatusPassed, Process: p.index}
		if !code.IsSuccess() {
			res.Status = StatusFailed
			res.Message = exitMsg
			anyFailed = true
		}
		results = append(results, res)
	}
	if !code.IsSuccess() && !anyFailed {
		results = append(results, Result{Class: p.classes[0], Name: "<process>", Status: StatusFailed, Message: exitMsg, Process: p.index})
	}
	return results
}
