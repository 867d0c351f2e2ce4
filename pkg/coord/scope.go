// SPDX-License-Identifier: MPL-2.0

package coord

import (
	"errors"
	"fmt"
)

const (
	// ScopeCompile is needed to compile and run, and is packaged.
	ScopeCompile Scope = "compile"
	// ScopeRuntime is needed only at run time, and is packaged.
	ScopeRuntime Scope = "runtime"
	// ScopeTest is visible only to test compilation and execution.
	ScopeTest Scope = "test"
	// ScopeCompileOnly is visible to compilation only and never packaged.
	ScopeCompileOnly Scope = "compile-only"
)

// ErrInvalidScope is the sentinel error wrapped by InvalidScopeError.
var ErrInvalidScope = errors.New("invalid scope")

type (
	// Scope selects the classpaths a dependency participates in.
	Scope string

	// InvalidScopeError is returned when a Scope value is not recognized.
	InvalidScopeError struct {
		Value Scope
	}
)

// Error implements the error interface.
func (e *InvalidScopeError) Error() string {
	return fmt.Sprintf("invalid scope %q (valid: compile, runtime, test, compile-only)", e.Value)
}

// Unwrap returns ErrInvalidScope for errors.Is() compatibility.
func (e *InvalidScopeError) Unwrap() error { return ErrInvalidScope }

// Scopes returns every valid scope in widening order.
func Scopes() []Scope {
	return []Scope{ScopeTest, ScopeCompileOnly, ScopeRuntime, ScopeCompile}
}

// Validate returns an error if the scope is not recognized.
// The zero value is invalid; manifests default it to compile before validation.
func (s Scope) Validate() error {
	switch s {
	case ScopeCompile, ScopeRuntime, ScopeTest, ScopeCompileOnly:
		return nil
	default:
		return &InvalidScopeError{Value: s}
	}
}

// String returns the scope name.
func (s Scope) String() string { return string(s) }

// Packaged reports whether dependencies in this scope are collected into an
// assembled artifact.
func (s Scope) Packaged() bool { return s == ScopeCompile || s == ScopeRuntime }

// OnCompileClasspath reports whether the scope is visible to main compilation.
func (s Scope) OnCompileClasspath() bool { return s == ScopeCompile || s == ScopeCompileOnly }

// OnTestClasspath reports whether the scope is visible to test compilation and execution.
func (s Scope) OnTestClasspath() bool { return s != ScopeCompileOnly }

// Propagate returns the scope a transitive dependency takes when its parent is
// reached in scope parent and declares it in scope child. The boolean is false
// when the child does not propagate (test and compile-only declarations are
// never transitive).
func Propagate(parent, child Scope) (Scope, bool) {
	if child == ScopeTest || child == ScopeCompileOnly {
		return "", false
	}
	switch parent {
	case ScopeCompile:
		return child, true
	case ScopeRuntime:
		return ScopeRuntime, true
	case ScopeTest:
		return ScopeTest, true
	case ScopeCompileOnly:
		return ScopeCompileOnly, true
	}
	return "", false
}

// Merge combines two scopes under which the same node is reached, keeping the
// widest visibility. runtime and compile-only together widen to compile.
func Merge(a, b Scope) Scope {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	case a == ScopeCompile || b == ScopeCompile:
		return ScopeCompile
	case a == ScopeTest:
		return b
	case b == ScopeTest:
		return a
	}
	// remaining pair is {runtime, compile-only}
	return ScopeCompile
}
