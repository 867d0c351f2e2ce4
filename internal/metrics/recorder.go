// SPDX-License-Identifier: MPL-2.0

package metrics

import "time"

// Result labels.
const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultBlocked ResultLabel = "blocked"
	ResultCached  ResultLabel = "cached"
)

// Stage labels.
const (
	StageResolve  StageLabel = "resolve"
	StageGenerate StageLabel = "generate"
	StageCompile  StageLabel = "compile"
	StageAssemble StageLabel = "assemble"
	StageTest     StageLabel = "test"
)

type (
	// ResultLabel enumerates stage result categories for counters.
	ResultLabel string

	// StageLabel names a pipeline stage.
	StageLabel string

	// Recorder defines observability hooks for the build pipeline.
	Recorder interface {
		ObserveStageDuration(stage StageLabel, d time.Duration)
		IncStageResult(stage StageLabel, result ResultLabel)
		IncCodegenCache(kind string, hit bool)
		ObserveAssemblyEntries(module string, kept, dropped int)
		IncTestResult(result string)
		ObserveBuildDuration(d time.Duration)
	}

	// NoopRecorder is a Recorder that does nothing.
	NoopRecorder struct{}
)

func (NoopRecorder) ObserveStageDuration(StageLabel, time.Duration) {}
func (NoopRecorder) IncStageResult(StageLabel, ResultLabel)         {}
func (NoopRecorder) IncCodegenCache(string, bool)                   {}
func (NoopRecorder) ObserveAssemblyEntries(string, int, int)        {}
func (NoopRecorder) IncTestResult(string)                           {}
func (NoopRecorder) ObserveBuildDuration(time.Duration)             {}
