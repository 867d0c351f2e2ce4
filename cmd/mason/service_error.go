// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/masonbuild/mason/internal/assembly"
	"github.com/masonbuild/mason/internal/build"
	"github.com/masonbuild/mason/internal/codegen"
	"github.com/masonbuild/mason/internal/compile"
	"github.com/masonbuild/mason/internal/issue"
	"github.com/masonbuild/mason/internal/testrun"
	"github.com/masonbuild/mason/pkg/resolve"
)

// ServiceError is an error that carries optional rendering information for
// the CLI layer. Always create via newServiceError.
type ServiceError struct {
	// Err is the underlying error (must not be nil).
	Err error
	// IssueID is the optional issue catalog ID for rendering help text.
	IssueID issue.ID
	// StyledMessage is the optional pre-rendered styled error text.
	StyledMessage string
}

// newServiceError creates a ServiceError with a nil-Err panic guard.
func newServiceError(err error, issueID issue.ID, styledMessage string) *ServiceError {
	if err == nil {
		panic("ServiceError: Err must not be nil")
	}
	return &ServiceError{
		Err:           err,
		IssueID:       issueID,
		StyledMessage: styledMessage,
	}
}

// Error implements the error interface.
func (e *ServiceError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *ServiceError) Unwrap() error { return e.Err }

// issueFor picks the catalog entry explaining err, or 0 when none applies.
func issueFor(err error) issue.ID {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}
	switch {
	case errors.Is(err, resolve.ErrCyclicInternalDependency):
		return issue.DependencyCycleID
	case errors.Is(err, resolve.ErrConflictingPin):
		return issue.VersionConflictID
	case errors.Is(err, resolve.ErrUnpinnedCoordinate):
		return issue.UnpinnedCoordinateID
	case errors.Is(err, resolve.ErrMissingMetadata):
		return issue.MissingMetadataID
	case errors.Is(err, build.ErrNotLocked):
		return issue.LockMismatchID
	case errors.Is(err, codegen.ErrInvalidGrammar), errors.Is(err, codegen.ErrInvalidSchema),
		errors.Is(err, codegen.ErrOutputCollision), errors.Is(err, codegen.ErrNoInputs),
		errors.Is(err, codegen.ErrUnknownKind):
		return issue.CodegenFailedID
	case errors.Is(err, compile.ErrCompileFailed), errors.Is(err, compile.ErrMissingClasspathEntry):
		return issue.CompileFailedID
	case errors.Is(err, assembly.ErrRootUnreachable):
		return issue.RootUnreachableID
	case errors.Is(err, assembly.ErrDuplicateServiceEntryConflict):
		return issue.ServiceConflictID
	case errors.Is(err, build.ErrTestsFailed):
		return issue.TestsFailedID
	case errors.Is(err, testrun.ErrTestExecution):
		return issue.TestLaunchFailedID
	}
	return 0
}

// renderServiceError prints the styled message and then the issue help.
func renderServiceError(stderr io.Writer, svcErr *ServiceError) {
	if svcErr == nil {
		return
	}
	if svcErr.StyledMessage != "" {
		fmt.Fprint(stderr, svcErr.StyledMessage)
	}
	if svcErr.IssueID == 0 {
		return
	}
	if entry := issue.Get(svcErr.IssueID); entry != nil {
		rendered, err := entry.Render(issueStyle(stderr))
		if err != nil {
			slog.Warn("failed to render issue catalog entry", "issue", svcErr.IssueID, "error", err)
			return
		}
		fmt.Fprint(stderr, rendered)
	}
}

// issueStyle picks the glamour style for w: "dark" on a terminal and
// "notty" for pipes, files and buffers.
func issueStyle(w io.Writer) string {
	f, ok := w.(*os.File)
	if !ok {
		return "notty"
	}
	if fi, err := f.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return "notty"
	}
	return "dark"
}
