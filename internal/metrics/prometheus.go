// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "mason"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg            *prom.Registry
	stageDuration  *prom.HistogramVec
	stageResults   *prom.CounterVec
	codegenCache   *prom.CounterVec
	assemblyKept   *prom.GaugeVec
	assemblyPruned *prom.GaugeVec
	testResults    *prom.CounterVec
	buildDuration  prom.Histogram
}

// NewPrometheusRecorder constructs and registers the mason metrics on reg, or
// on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual module stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Module stage results by outcome",
		}, []string{"stage", "result"}),
		codegenCache: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "codegen_cache_total",
			Help:      "Code generation units by fingerprint cache outcome",
		}, []string{"kind", "outcome"}),
		assemblyKept: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "assembly_entries_kept",
			Help:      "Entries written to the last assembled archive",
		}, []string{"module"}),
		assemblyPruned: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "assembly_entries_pruned",
			Help:      "Entries dropped by minimization in the last assembly",
		}, []string{"module"}),
		testResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "test_results_total",
			Help:      "Test results by status",
		}, []string{"status"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total command duration",
			Buckets:   prom.DefBuckets,
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.codegenCache, pr.assemblyKept,
		pr.assemblyPruned, pr.testResults, pr.buildDuration)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveStageDuration(stage StageLabel, d time.Duration) {
	p.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage StageLabel, result ResultLabel) {
	p.stageResults.WithLabelValues(string(stage), string(result)).Inc()
}

func (p *PrometheusRecorder) IncCodegenCache(kind string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	p.codegenCache.WithLabelValues(kind, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveAssemblyEntries(module string, kept, dropped int) {
	p.assemblyKept.WithLabelValues(module).Set(float64(kept))
	p.assemblyPruned.WithLabelValues(module).Set(float64(dropped))
}

func (p *PrometheusRecorder) IncTestResult(status string) {
	p.testResults.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

// WriteTextfile writes the recorder's registry to path in the Prometheus
// text exposition format, replacing the file atomically.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
