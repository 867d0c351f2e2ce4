// SPDX-License-Identifier: MPL-2.0

package build

import (
	"errors"
	"fmt"
	"slices"

	"github.com/masonbuild/mason/internal/metrics"
)

const (
	// GoalResolve stops after dependency resolution.
	GoalResolve Goal = "resolve"
	// GoalGenerate stops after code generation.
	GoalGenerate Goal = "generate"
	// GoalCompile stops after compiling main sources.
	GoalCompile Goal = "compile"
	// GoalAssemble packages every module after compiling it.
	GoalAssemble Goal = "assemble"
	// GoalTest compiles and runs the tests of every module.
	GoalTest Goal = "test"
	// GoalBuild runs every stage.
	GoalBuild Goal = "build"
)

const (
	StageResolve  Stage = "resolve"
	StageGenerate Stage = "generate"
	StageCompile  Stage = "compile"
	StageAssemble Stage = "assemble"
	StageTest     Stage = "test"
)

// ErrInvalidGoal is the sentinel error wrapped by InvalidGoalError.
var ErrInvalidGoal = errors.New("invalid goal")

type (
	// Goal names what a build run should produce.
	Goal string

	// Stage is one step of a module's build.
	Stage string

	// InvalidGoalError is returned when a goal is not recognized.
	InvalidGoalError struct {
		Value Goal
	}
)

// Error implements the error interface.
func (e *InvalidGoalError) Error() string {
	return fmt.Sprintf("invalid goal %q (valid: resolve, generate, compile, assemble, test, build)", e.Value)
}

// Unwrap returns ErrInvalidGoal for errors.Is() compatibility.
func (e *InvalidGoalError) Unwrap() error { return ErrInvalidGoal }

// Validate returns an error if the goal is not recognized.
func (g Goal) Validate() error {
	switch g {
	case GoalResolve, GoalGenerate, GoalCompile, GoalAssemble, GoalTest, GoalBuild:
		return nil
	default:
		return &InvalidGoalError{Value: g}
	}
}

// String returns the goal name.
func (g Goal) String() string { return string(g) }

// Stages returns the stages the goal runs, in order.
func (g Goal) Stages() []Stage {
	switch g {
	case GoalResolve:
		return []Stage{StageResolve}
	case GoalGenerate:
		return []Stage{StageResolve, StageGenerate}
	case GoalCompile:
		return []Stage{StageResolve, StageGenerate, StageCompile}
	case GoalAssemble:
		return []Stage{StageResolve, StageGenerate, StageCompile, StageAssemble}
	case GoalTest:
		return []Stage{StageResolve, StageGenerate, StageCompile, StageTest}
	case GoalBuild:
		return []Stage{StageResolve, StageGenerate, StageCompile, StageAssemble, StageTest}
	}
	return nil
}

func (g Goal) has(s Stage) bool { return slices.Contains(g.Stages(), s) }

// String returns the stage name.
func (s Stage) String() string { return string(s) }

func (s Stage) label() metrics.StageLabel {
	switch s {
	case StageResolve:
		return metrics.StageResolve
	case StageGenerate:
		return metrics.StageGenerate
	case StageCompile:
		return metrics.StageCompile
	case StageAssemble:
		return metrics.StageAssemble
	default:
		return metrics.StageTest
	}
}
