// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/masonbuild/mason/internal/build"
	"github.com/masonbuild/mason/internal/codegen"
	"github.com/masonbuild/mason/internal/issue"
	"github.com/masonbuild/mason/pkg/resolve"
)

// goalOptions are the flags shared by the stage commands.
type goalOptions struct {
	locked bool
	filter []string
	watch  bool
	output string
}

func newGoalCommands(app *App) []*cobra.Command {
	return []*cobra.Command{
		newGoalCommand(app, build.GoalResolve, "Resolve dependency graphs and write the lock file"),
		newGoalCommand(app, build.GoalGenerate, "Generate sources from grammars and schemas"),
		newGoalCommand(app, build.GoalCompile, "Compile main sources"),
		newGoalCommand(app, build.GoalAssemble, "Assemble runnable archives"),
		newGoalCommand(app, build.GoalTest, "Compile and run tests"),
		newGoalCommand(app, build.GoalBuild, "Run every stage"),
	}
}

func newGoalCommand(app *App, goal build.Goal, short string) *cobra.Command {
	var opts goalOptions
	cmd := &cobra.Command{
		Use:   goal.String() + " [module...]",
		Short: short,
		Long: short + `.

Modules are built in dependency order, up to --workers at a time. Naming
modules restricts the run to them and their internal dependencies. A failed
module blocks its dependents; unrelated modules keep building.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(app.runGoal(cmd, goal, args, opts))
		},
	}

	flags := cmd.Flags()
	if goal == build.GoalResolve {
		flags.StringVarP(&opts.output, "output", "o", "", "lock file to write (default: mason.lock.cue in the workspace root)")
	} else {
		flags.BoolVar(&opts.locked, "locked", false, "take module graphs from mason.lock.cue instead of resolving")
	}
	if goal == build.GoalGenerate {
		flags.BoolVar(&opts.watch, "watch", false, "keep running and regenerate when inputs change")
	}
	if goal == build.GoalTest || goal == build.GoalBuild {
		flags.StringSliceVar(&opts.filter, "filter", nil, "run only test classes matching these globs")
	}
	return cmd
}

func (a *App) runGoal(cmd *cobra.Command, goal build.Goal, args []string, opts goalOptions) error {
	ctx := cmd.Context()
	s, err := a.open(cmd, workspaceOptions{only: args, filter: opts.filter})
	if err != nil {
		return err
	}
	defer s.close()

	plan := build.Plan{Workspace: s.ws, Goal: goal}
	if opts.locked {
		lockPath := filepath.Join(s.ws.Root, resolve.LockFileName)
		lock, err := resolve.LoadLock(lockPath)
		if err != nil {
			return issue.NewErrorContext().
				WithOperation("load lock").
				WithResource(lockPath).
				WithIssue(issue.LockMismatchID).
				WithSuggestion("Run 'mason resolve' to write the lock").
				Wrap(err).
				BuildError()
		}
		plan.Lock = lock
	}

	progress := &progressPrinter{w: a.stderr}
	p, closeComponents, err := s.pipeline(ctx, goal, a.stderr, progress.print)
	if err != nil {
		return err
	}
	defer closeComponents() //nolint:errcheck // best-effort cleanup

	res, err := p.Run(ctx, plan)
	if err != nil {
		return err
	}
	if goal == build.GoalResolve && res.OK() {
		path := opts.output
		if path == "" {
			path = filepath.Join(s.ws.Root, resolve.LockFileName)
		}
		if err := writeLock(path, res.Lock(), len(args) > 0); err != nil {
			return err
		}
		s.logger.Info("wrote lock", "path", path, "modules", len(res.Lock().Modules))
	}
	if err := a.writeReport(newBuildReport(res)); err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}

	if opts.watch {
		return a.watch(ctx, s)
	}
	return nil
}

// writeLock saves lock to path. A partial resolution keeps the graphs of
// the other modules already in the file.
func writeLock(path string, lock *resolve.Lock, partial bool) error {
	if partial {
		if prev, err := resolve.LoadLock(path); err == nil {
			graphs := lock.Modules
			for _, g := range prev.Modules {
				if _, ok := lock.Graph(g.Module); !ok {
					graphs = append(graphs, g)
				}
			}
			lock = resolve.NewLock(graphs...)
		}
	}
	if err := lock.Save(path); err != nil {
		return fmt.Errorf("write lock: %w", err)
	}
	return nil
}

// watch regenerates modules on input changes until ctx is canceled.
func (a *App) watch(ctx context.Context, s *session) error {
	p, closeStore, err := s.codegen(a.stderr)
	if err != nil {
		return err
	}
	defer closeStore() //nolint:errcheck // best-effort cleanup

	err = p.Watch(ctx, s.ws.Root, s.ws.Modules, func(r codegen.ModuleResult) {
		if r.Err != nil {
			s.logger.Error("generation failed", "module", r.Module, "error", r.Err)
			renderServiceError(a.stderr, newServiceError(r.Err, issueFor(r.Err), ""))
			return
		}
		s.logger.Info("regenerated", "module", r.Module, "units", len(r.Sources))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) writeReport(rep buildReport) error {
	if a.flags.format == formatYAML {
		return writeYAML(a.stdout, rep)
	}
	writeBuildText(a.stdout, rep)
	return nil
}
