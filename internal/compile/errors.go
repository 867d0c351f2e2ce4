// SPDX-License-Identifier: MPL-2.0

package compile

import (
	"errors"
	"fmt"

	"github.com/masonbuild/mason/internal/runtime"
	"github.com/masonbuild/mason/pkg/manifest"
)

var (
	// ErrCompileFailed is the sentinel error wrapped by CompileError.
	ErrCompileFailed = errors.New("compilation failed")
	// ErrMissingClasspathEntry is returned when a classpath element cannot be located.
	ErrMissingClasspathEntry = errors.New("classpath entry not found")
)

// CompileError reports a compiler run that exited non-zero.
type CompileError struct {
	Module    manifest.ModuleID
	SourceSet SourceSet
	ExitCode  runtime.ExitCode
	// Stderr holds the tail of the compiler diagnostics.
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	msg := fmt.Sprintf("module %s: %s sources: compiler exited with status %s", e.Module, e.SourceSet, e.ExitCode)
	if e.Stderr != "" {
		msg += ":\n" + e.Stderr
	}
	return msg
}

// Unwrap returns ErrCompileFailed and the underlying command error.
func (e *CompileError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCompileFailed}
	}
	return []error{ErrCompileFailed, e.Err}
}
