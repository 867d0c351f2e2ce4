// SPDX-License-Identifier: MPL-2.0

package assembly

import (
	"errors"
	"fmt"
	"strings"

	"github.com/masonbuild/mason/pkg/manifest"
)

const (
	// KindRootUnreachable means a root entry, keep-list entry or Main-Class
	// is missing from the collected entries.
	KindRootUnreachable ErrorKind = "root-unreachable"
	// KindDuplicateServiceEntryConflict means two sources ship different
	// bytes for a class registered as a service provider.
	KindDuplicateServiceEntryConflict ErrorKind = "duplicate-service-entry-conflict"
)

var (
	// ErrRootUnreachable is the sentinel for KindRootUnreachable.
	ErrRootUnreachable = errors.New("root entry unreachable")
	// ErrDuplicateServiceEntryConflict is the sentinel for KindDuplicateServiceEntryConflict.
	ErrDuplicateServiceEntryConflict = errors.New("conflicting duplicate service provider")
	// ErrMissingInput is returned when a dependency archive or class directory cannot be located.
	ErrMissingInput = errors.New("assembly input not found")

	errKeepUnmatched = errors.New("keep-list entry matches nothing")
	errMainClass     = errors.New("Main-Class not found in archive")
)

type (
	// ErrorKind tags an AssemblyError.
	ErrorKind string

	// AssemblyError is fatal to the module being assembled.
	AssemblyError struct {
		Kind   ErrorKind
		Module manifest.ModuleID
		// Entry is the missing root or the conflicting provider class.
		Entry string
		// Sources name the archives involved in a conflict.
		Sources []string
		Err     error
	}
)

// Error implements the error interface.
func (e *AssemblyError) Error() string {
	msg := fmt.Sprintf("module %s: %s: %s", e.Module, e.Kind.sentinel(), e.Entry)
	if len(e.Sources) > 0 {
		msg += " (" + strings.Join(e.Sources, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the kind sentinel and the cause.
func (e *AssemblyError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func (k ErrorKind) sentinel() error {
	if k == KindDuplicateServiceEntryConflict {
		return ErrDuplicateServiceEntryConflict
	}
	return ErrRootUnreachable
}
