// SPDX-License-Identifier: MPL-2.0

package testrun

import (
	"errors"
	"fmt"
	"strings"

	"github.com/masonbuild/mason/pkg/manifest"
)

var (
	// ErrTestExecution is the sentinel error wrapped by TestExecutionError.
	ErrTestExecution = errors.New("test execution failed")
	// ErrNoMatchingTests is returned when a filter selects no tests and the
	// module requires at least one.
	ErrNoMatchingTests = errors.New("no tests match the filter")
)

// TestExecutionError reports a test process that could not be launched or
// was aborted. Failing tests are recorded in the Report instead.
type TestExecutionError struct {
	Module  manifest.ModuleID
	Process int
	Classes []string
	Err     error
}

// Error implements the error interface.
func (e *TestExecutionError) Error() string {
	return fmt.Sprintf("module %s: test process %d (%s): %v", e.Module, e.Process, strings.Join(e.Classes, ", "), e.Err)
}

// Unwrap returns ErrTestExecution and the cause.
func (e *TestExecutionError) Unwrap() []error { return []error{ErrTestExecution, e.Err} }
