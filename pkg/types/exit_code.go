// SPDX-License-Identifier: MPL-2.0

// Package types holds small value types shared across mason packages.
package types

import "strconv"

// Process exit codes, one per failing component.
const (
	ExitSuccess  ExitCode = 0
	ExitFailure  ExitCode = 1
	ExitConfig   ExitCode = 2
	ExitResolve  ExitCode = 10
	ExitGenerate ExitCode = 11
	ExitCompile  ExitCode = 12
	ExitAssemble ExitCode = 13
	ExitTest     ExitCode = 14
)

// ExitCode is the status mason exits with. Zero means success.
type ExitCode int

var componentCodes = map[string]ExitCode{
	"config":   ExitConfig,
	"resolve":  ExitResolve,
	"generate": ExitGenerate,
	"compile":  ExitCompile,
	"assemble": ExitAssemble,
	"test":     ExitTest,
}

// ComponentExitCode returns the exit code reserved for a component, or
// ExitFailure for names without one.
func ComponentExitCode(component string) ExitCode {
	if c, ok := componentCodes[component]; ok {
		return c
	}
	return ExitFailure
}

// IsSuccess reports whether the exit code indicates success.
func (c ExitCode) IsSuccess() bool { return c == ExitSuccess }

// Component names the component an exit code reports, or "" for generic codes.
func (c ExitCode) Component() string {
	for name, code := range componentCodes {
		if code == c {
			return name
		}
	}
	return ""
}

func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
