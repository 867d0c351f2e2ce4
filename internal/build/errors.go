// SPDX-License-Identifier: MPL-2.0

package build

import (
	"errors"
	"fmt"

	"github.com/masonbuild/mason/internal/testrun"
	"github.com/masonbuild/mason/pkg/manifest"
)

var (
	// ErrTestsFailed is the sentinel error wrapped by TestFailureError.
	ErrTestsFailed = errors.New("tests failed")
	// ErrNotLocked is returned when a build pinned to a lock meets a module
	// the lock does not cover.
	ErrNotLocked = errors.New("module not in lock")
)

type (
	// StageError attributes a component error to the module and stage that
	// produced it.
	StageError struct {
		Module manifest.ModuleID
		Stage  Stage
		Err    error
	}

	// TestFailureError reports the failed tests of one module.
	TestFailureError struct {
		Module manifest.ModuleID
		Failed []testrun.Result
		Total  int
	}
)

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("module %s: %s: %v", e.Module, e.Stage, e.Err)
}

// Unwrap returns the component error.
func (e *StageError) Unwrap() error { return e.Err }

// Error implements the error interface.
func (e *TestFailureError) Error() string {
	msg := fmt.Sprintf("module %s: %d of %d tests failed", e.Module, len(e.Failed), e.Total)
	if len(e.Failed) > 0 {
		msg += fmt.Sprintf(" (first: %s)", e.Failed[0].Class)
	}
	return msg
}

// Unwrap returns ErrTestsFailed for errors.Is() compatibility.
func (e *TestFailureError) Unwrap() error { return ErrTestsFailed }
