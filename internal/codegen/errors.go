// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"errors"
	"fmt"

	"github.com/masonbuild/mason/pkg/manifest"
)

const (
	// KindInvalidGrammar means a grammar input is malformed or its compiler failed.
	KindInvalidGrammar ErrorKind = "invalid-grammar"
	// KindInvalidSchema means a schema input is malformed or its compiler failed.
	KindInvalidSchema ErrorKind = "invalid-schema"
	// KindOutputCollision means two units would write the same output path.
	KindOutputCollision ErrorKind = "output-collision"
)

var (
	// ErrInvalidGrammar is the sentinel for KindInvalidGrammar.
	ErrInvalidGrammar = errors.New("invalid grammar")
	// ErrInvalidSchema is the sentinel for KindInvalidSchema.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrOutputCollision is the sentinel for KindOutputCollision.
	ErrOutputCollision = errors.New("generated output collision")
	// ErrUnknownKind is returned when no generator is registered for a stage kind.
	ErrUnknownKind = errors.New("no generator registered for stage kind")
	// ErrNoInputs is returned when a stage input pattern matches no files.
	ErrNoInputs = errors.New("stage input matches no files")
)

type (
	// ErrorKind tags a GenerationError.
	ErrorKind string

	// GenerationError is fatal to the module that owns the unit.
	GenerationError struct {
		Kind   ErrorKind
		Module manifest.ModuleID
		Unit   string
		// Path is the offending input file, or the colliding output file.
		Path string
		// Other is the unit that already owns Path for KindOutputCollision.
		Other string
		Err   error
	}
)

// Error implements the error interface.
func (e *GenerationError) Error() string {
	switch e.Kind {
	case KindOutputCollision:
		return fmt.Sprintf("module %s: %s writes %s, already generated by %s", e.Module, e.Unit, e.Path, e.Other)
	default:
		msg := fmt.Sprintf("module %s: %s", e.Module, e.Kind.sentinel())
		if e.Path != "" {
			msg += " " + e.Path
		}
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	}
}

// Unwrap returns the kind sentinel and the cause.
func (e *GenerationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidGrammar:
		return ErrInvalidGrammar
	case KindInvalidSchema:
		return ErrInvalidSchema
	default:
		return ErrOutputCollision
	}
}

// invalidKind maps a stage kind to its validation error kind.
func invalidKind(k manifest.StageKind) ErrorKind {
	if k == manifest.KindGrammar {
		return KindInvalidGrammar
	}
	return KindInvalidSchema
}
