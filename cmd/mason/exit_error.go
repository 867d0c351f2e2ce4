// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/masonbuild/mason/internal/build"
	"github.com/masonbuild/mason/internal/config"
	"github.com/masonbuild/mason/internal/issue"
	"github.com/masonbuild/mason/pkg/resolve"
	"github.com/masonbuild/mason/pkg/types"
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if c := e.Code.Component(); c != "" {
		return fmt.Sprintf("%s failed (exit status %s)", c, e.Code)
	}
	return "exit status " + e.Code.String()
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps an error to the exit code of the component that raised it.
func exitCodeFor(err error) types.ExitCode {
	if err == nil {
		return types.ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var stageErr *build.StageError
	if errors.As(err, &stageErr) {
		return types.ComponentExitCode(stageErr.Stage.String())
	}
	switch {
	case errors.Is(err, resolve.ErrCyclicInternalDependency), errors.Is(err, build.ErrNotLocked):
		return types.ExitResolve
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrInvalidLoadOptions):
		return types.ExitConfig
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		switch ae.Issue {
		case issue.ConfigLoadFailedID, issue.WorkspaceNotFoundID, issue.ManifestInvalidID:
			return types.ExitConfig
		case issue.LockMismatchID:
			return types.ExitResolve
		}
	}
	return types.ExitFailure
}
