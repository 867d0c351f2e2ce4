// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/masonbuild/mason/internal/issue"
	"github.com/masonbuild/mason/pkg/resolve"
	"github.com/masonbuild/mason/pkg/types"
)

func newDiffCommand(app *App) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "diff <lockA> <lockB>",
		Short: "Compare two lock files",
		Long: `Compare the module graphs of two lock files.

Only packaged dependencies (compile and runtime scope) are compared unless
--all is given. Exits 1 when the locks differ.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(app.diff(args[0], args[1], all))
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also compare test and compile-only dependencies")
	return cmd
}

func (a *App) diff(left, right string, all bool) error {
	locks := make([]*resolve.Lock, 2)
	for i, path := range []string{left, right} {
		lock, err := resolve.LoadLock(path)
		if err != nil {
			return issue.WrapWithContext(err, "load lock", path, issue.LockMismatchID)
		}
		locks[i] = lock
	}

	changes := newChangeReports(resolve.DiffLocks(locks[0], locks[1], resolve.DiffOptions{IncludeNonPackaged: all}))
	if a.flags.format == formatYAML {
		if err := writeYAML(a.stdout, changes); err != nil {
			return err
		}
	} else {
		writeChangesText(a.stdout, changes)
	}
	if len(changes) > 0 {
		return &ExitError{Code: types.ExitFailure, Err: fmt.Errorf("%s and %s differ in %d places", left, right, len(changes))}
	}
	return nil
}
