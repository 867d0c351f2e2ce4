// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/manifest"
)

const (
	// KindConflictingPin means two explicit overrides in one module disagree and
	// the constraint table does not arbitrate.
	KindConflictingPin ErrorKind = "conflicting-pin"
	// KindCyclicInternalDependency means the internal module graph has a cycle.
	KindCyclicInternalDependency ErrorKind = "cyclic-internal-dependency"
	// KindUnpinnedCoordinate means a direct request has no version from any source.
	KindUnpinnedCoordinate ErrorKind = "unpinned-coordinate"
	// KindMissingMetadata means the metadata source could not describe a coordinate.
	KindMissingMetadata ErrorKind = "missing-metadata"
	// KindMissingInternalGraph means an internal dependency was not resolved first.
	KindMissingInternalGraph ErrorKind = "missing-internal-graph"
)

var (
	// ErrConflictingPin is the sentinel for KindConflictingPin.
	ErrConflictingPin = errors.New("conflicting version overrides")
	// ErrCyclicInternalDependency is the sentinel for KindCyclicInternalDependency.
	ErrCyclicInternalDependency = errors.New("cyclic internal dependency")
	// ErrUnpinnedCoordinate is the sentinel for KindUnpinnedCoordinate.
	ErrUnpinnedCoordinate = errors.New("coordinate has no version")
	// ErrMissingMetadata is the sentinel for KindMissingMetadata.
	ErrMissingMetadata = errors.New("dependency metadata unavailable")
	// ErrMissingInternalGraph is the sentinel for KindMissingInternalGraph.
	ErrMissingInternalGraph = errors.New("internal dependency not resolved")
)

type (
	// ErrorKind tags a ResolutionError.
	ErrorKind string

	// ResolutionError is the single error type returned by the resolver.
	ResolutionError struct {
		Kind       ErrorKind
		Module     manifest.ModuleID
		Coordinate coord.Coordinate
		// Versions lists the disagreeing overrides for KindConflictingPin.
		Versions []coord.Version
		// Cycle is a closed depends-on path for KindCyclicInternalDependency.
		Cycle []manifest.ModuleID
		Err   error
	}
)

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	switch e.Kind {
	case KindConflictingPin:
		vs := make([]string, len(e.Versions))
		for i, v := range e.Versions {
			vs[i] = string(v)
		}
		return fmt.Sprintf("module %s: conflicting overrides for %s (%s) and no constraint to arbitrate",
			e.Module, e.Coordinate, strings.Join(vs, ", "))
	case KindCyclicInternalDependency:
		ids := make([]string, len(e.Cycle))
		for i, id := range e.Cycle {
			ids[i] = string(id)
		}
		return fmt.Sprintf("cyclic internal dependency: %s", strings.Join(ids, " -> "))
	case KindUnpinnedCoordinate:
		return fmt.Sprintf("module %s: %s has no version (add it to the constraint table or override it)", e.Module, e.Coordinate)
	case KindMissingMetadata:
		return fmt.Sprintf("module %s: metadata for %s: %v", e.Module, e.Coordinate, e.Err)
	case KindMissingInternalGraph:
		return fmt.Sprintf("module %s: %v", e.Module, e.Err)
	}
	return fmt.Sprintf("module %s: resolution failed: %v", e.Module, e.Err)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *ResolutionError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Fatal reports whether the error is structural and must abort the whole
// invocation rather than just the affected module.
func (e *ResolutionError) Fatal() bool { return e.Kind == KindCyclicInternalDependency }

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConflictingPin:
		return ErrConflictingPin
	case KindCyclicInternalDependency:
		return ErrCyclicInternalDependency
	case KindUnpinnedCoordinate:
		return ErrUnpinnedCoordinate
	case KindMissingMetadata:
		return ErrMissingMetadata
	case KindMissingInternalGraph:
		return ErrMissingInternalGraph
	}
	return errors.New(string(k))
}
