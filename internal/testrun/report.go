// SPDX-License-Identifier: MPL-2.0

package testrun

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/masonbuild/mason/pkg/manifest"
)

const (
	// StatusPassed marks a passing test.
	StatusPassed Status = "passed"
	// StatusFailed marks a failing test.
	StatusFailed Status = "failed"
	// StatusSkipped marks a test that did not run.
	StatusSkipped Status = "skipped"
)

type (
	// Status is the outcome of one test.
	Status string

	// Result is one test class or test method outcome.
	Result struct {
		Class    string        `yaml:"class"`
		Name     string        `yaml:"name,omitempty"`
		Status   Status        `yaml:"status"`
		Duration time.Duration `yaml:"duration"`
		Message  string        `yaml:"message,omitempty"`
		// Process is the index of the process that ran the test.
		Process int `yaml:"process"`
	}

	// Report collects the results of one module's test run.
	Report struct {
		Module    manifest.ModuleID `yaml:"module"`
		Results   []Result          `yaml:"results"`
		Processes int               `yaml:"processes"`
		Duration  time.Duration     `yaml:"duration"`
	}
)

// Validate returns an error for unknown statuses.
func (s Status) Validate() error {
	switch s {
	case StatusPassed, StatusFailed, StatusSkipped:
		return nil
	}
	return fmt.Errorf("unknown test status %q", s)
}

// String returns the status name.
func (s Status) String() string { return string(s) }

// Count returns how many results have status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// Failed returns the failing results.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// OK reports whether no test failed.
func (r *Report) OK() bool { return r.Count(StatusFailed) == 0 }

func (r *Report) sort() {
	slices.SortFunc(r.Results, func(a, b Result) int {
		if c := strings.Compare(a.Class, b.Class); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}
