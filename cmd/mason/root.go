// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the mason CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/masonbuild/mason/internal/config"
	"github.com/masonbuild/mason/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	defaults := config.DefaultConfig()
	root := &cobra.Command{
		Use:   "mason",
		Short: "Multi-module build orchestrator for JVM workspaces",
		Long: TitleStyle.Render("mason") + SubtitleStyle.Render(" - multi-module build orchestrator for JVM workspaces") + `

mason resolves pinned dependency graphs, generates sources, compiles,
assembles minimized archives and runs tests for every module of a
workspace, in dependency order and in parallel.

` + SubtitleStyle.Render("Examples:") + `
  mason modules             List modules in build order
  mason resolve             Resolve graphs and write mason.lock.cue
  mason build               Run every stage for every module
  mason test fe-core        Test one module and what it depends on
  mason diff a.cue b.cue    Compare two lock files`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch app.flags.format {
			case formatText, formatYAML:
				return nil
			}
			return fmt.Errorf("unknown --format %q (valid: text, yaml)", app.flags.format)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&app.flags.configPath, "config", "", "config file (default: mason.cue in the workspace, then the config directory)")
	pf.StringVarP(&app.flags.workspace, "workspace", "C", ".", "workspace root")
	pf.StringVar(&app.flags.logLevel, "log-level", string(defaults.LogLevel), "log level: debug, info, warn, error")
	pf.IntVarP(&app.flags.workers, "workers", "j", defaults.Workers, "modules built concurrently")
	pf.StringVar(&app.flags.format, "format", formatText, "report format: text or yaml")
	pf.StringVar(&app.flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")
	pf.BoolVarP(&app.flags.verbose, "verbose", "v", false, "timestamps in logs and full error chains")

	for _, c := range newGoalCommands(app) {
		root.AddCommand(c)
	}
	root.AddCommand(newDiffCommand(app))
	root.AddCommand(newModulesCommand(app))
	root.AddCommand(newConfigCommand(app))
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the code of the failing component.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(int(exitCodeFor(err)))
	}
}

// fail renders the issue help for err and attaches its exit code.
func (a *App) fail(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	styled := ""
	if a.flags.verbose {
		styled = ErrorStyle.Render("Error: ") + formatErrorForDisplay(err, true) + "\n"
	}
	renderServiceError(a.stderr, newServiceError(err, issueFor(err), styled))
	return &ExitError{Code: exitCodeFor(err), Err: err}
}

// formatErrorForDisplay uses ActionableError.Format when err carries one.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
