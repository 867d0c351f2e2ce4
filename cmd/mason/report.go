// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/masonbuild/mason/internal/build"
	"github.com/masonbuild/mason/internal/scheduler"
	"github.com/masonbuild/mason/internal/testrun"
	"github.com/masonbuild/mason/pkg/resolve"
)

type (
	buildReport struct {
		ID       string         `yaml:"id"`
		Goal     string         `yaml:"goal"`
		OK       bool           `yaml:"ok"`
		Duration time.Duration  `yaml:"duration"`
		Modules  []moduleReport `yaml:"modules"`
	}

	moduleReport struct {
		Module       string             `yaml:"module"`
		State        string             `yaml:"state"`
		Stage        string             `yaml:"stage"`
		Duration     time.Duration      `yaml:"duration"`
		Error        string             `yaml:"error,omitempty"`
		BlockedBy    []string           `yaml:"blocked_by,omitempty"`
		Dependencies []dependencyReport `yaml:"dependencies,omitempty"`
		Generated    []string           `yaml:"generated,omitempty"`
		Classes      string             `yaml:"classes,omitempty"`
		Artifact     *artifactReport    `yaml:"artifact,omitempty"`
		Tests        *testrun.Report    `yaml:"tests,omitempty"`
	}

	dependencyReport struct {
		Coordinate string `yaml:"coordinate"`
		Version    string `yaml:"version"`
		Scope      string `yaml:"scope"`
		Origin     string `yaml:"origin"`
	}

	artifactReport struct {
		Path    string `yaml:"path"`
		SHA256  string `yaml:"sha256"`
		Size    int64  `yaml:"size"`
		Entries int    `yaml:"entries"`
		Kept    int    `yaml:"kept"`
		Dropped int    `yaml:"dropped"`
	}

	changeReport struct {
		Module     string `yaml:"module"`
		Kind       string `yaml:"kind"`
		Coordinate string `yaml:"coordinate,omitempty"`
		Left       string `yaml:"left,omitempty"`
		Right      string `yaml:"right,omitempty"`
		LeftScope  string `yaml:"left_scope,omitempty"`
		RightScope string `yaml:"right_scope,omitempty"`
	}

	// progressPrinter prints one line per finished module.
	progressPrinter struct {
		mu sync.Mutex
		w  io.Writer
	}
)

func newBuildReport(res *build.Result) buildReport {
	out := buildReport{ID: res.ID, Goal: res.Goal.String(), OK: res.OK(), Duration: res.Duration}
	for _, id := range res.Order {
		mr := res.Modules[id]
		if mr == nil {
			continue
		}
		out.Modules = append(out.Modules, newModuleReport(mr))
	}
	return out
}

func newModuleReport(mr *build.ModuleResult) moduleReport {
	r := moduleReport{
		Module:   string(mr.Module),
		State:    string(mr.State),
		Stage:    mr.Stage.String(),
		Duration: mr.Duration,
		Tests:    mr.Tests,
	}
	if mr.Err != nil {
		r.Error = mr.Err.Error()
	}
	for _, id := range mr.BlockedBy {
		r.BlockedBy = append(r.BlockedBy, string(id))
	}
	if mr.Graph != nil {
		for _, n := range mr.Graph.Nodes {
			r.Dependencies = append(r.Dependencies, dependencyReport{
				Coordinate: n.Coordinate.String(),
				Version:    n.Version.String(),
				Scope:      n.Scope.String(),
				Origin:     string(n.Origin),
			})
		}
	}
	for _, g := range mr.Generated {
		r.Generated = append(r.Generated, g.Dir)
	}
	if mr.Classes != nil {
		r.Classes = mr.Classes.ClassDir
	}
	if a := mr.Artifact; a != nil {
		r.Artifact = &artifactReport{
			Path:    a.Path,
			SHA256:  a.SHA256,
			Size:    a.Size,
			Entries: len(a.Entries),
			Kept:    a.Kept,
			Dropped: a.Dropped,
		}
	}
	return r
}

func newChangeReports(changes []resolve.Change) []changeReport {
	out := make([]changeReport, len(changes))
	for i, c := range changes {
		out[i] = changeReport{
			Module:     string(c.Module),
			Kind:       string(c.Kind),
			Coordinate: c.Coordinate.String(),
			Left:       c.Left.String(),
			Right:      c.Right.String(),
			LeftScope:  c.LeftScope.String(),
			RightScope: c.RightScope.String(),
		}
	}
	return out
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// writeBuildText prints the summary table of a run.
func writeBuildText(w io.Writer, rep buildReport) {
	fmt.Fprintln(w, TitleStyle.Render("mason "+rep.Goal)+SubtitleStyle.Render(" "+rep.ID))
	for _, m := range rep.Modules {
		fmt.Fprintf(w, "  %s %s %s\n", stateLabel(scheduler.State(m.State)), ModuleStyle.Render(m.Module), SubtitleStyle.Render(moduleDetail(m)))
	}
	total := fmt.Sprintf("%d modules in %s", len(rep.Modules), rep.Duration.Round(time.Millisecond))
	if rep.OK {
		fmt.Fprintln(w, SuccessStyle.Render("✓ "+total))
	} else {
		fmt.Fprintln(w, ErrorStyle.Render("✗ "+total))
	}
}

func moduleDetail(m moduleReport) string {
	var parts []string
	switch {
	case len(m.BlockedBy) > 0:
		parts = append(parts, "blocked by "+strings.Join(m.BlockedBy, " <- "))
	case m.State == string(scheduler.StateFailed):
		parts = append(parts, "failed at "+m.Stage)
	default:
		parts = append(parts, m.Stage)
	}
	if len(m.Dependencies) > 0 {
		parts = append(parts, fmt.Sprintf("%d dependencies", len(m.Dependencies)))
	}
	if len(m.Generated) > 0 {
		parts = append(parts, fmt.Sprintf("%d generated units", len(m.Generated)))
	}
	if m.Artifact != nil {
		parts = append(parts, fmt.Sprintf("%s (%d entries)", m.Artifact.Path, m.Artifact.Entries))
	}
	if m.Tests != nil {
		parts = append(parts, fmt.Sprintf("%d passed, %d failed, %d skipped",
			m.Tests.Count(testrun.StatusPassed), m.Tests.Count(testrun.StatusFailed), m.Tests.Count(testrun.StatusSkipped)))
	}
	if m.Duration > 0 {
		parts = append(parts, m.Duration.Round(time.Millisecond).String())
	}
	return strings.Join(parts, ", ")
}

func stateLabel(s scheduler.State) string {
	switch s {
	case scheduler.StateSucceeded:
		return stateColumn.Render(SuccessStyle.Render("ok"))
	case scheduler.StateFailed:
		return stateColumn.Render(ErrorStyle.Render("failed"))
	case scheduler.StateBlocked:
		return stateColumn.Render(WarningStyle.Render("blocked"))
	default:
		return stateColumn.Render(SubtitleStyle.Render(string(s)))
	}
}

func writeChangesText(w io.Writer, changes []changeReport) {
	if len(changes) == 0 {
		fmt.Fprintln(w, SuccessStyle.Render("✓ locks are equivalent"))
		return
	}
	for _, c := range changes {
		switch resolve.ChangeKind(c.Kind) {
		case resolve.ChangeModule:
			fmt.Fprintf(w, "%s %s\n", ModuleStyle.Render(c.Module), WarningStyle.Render("only on one side"))
		case resolve.ChangeMissing:
			fmt.Fprintf(w, "%s - %s %s\n", ModuleStyle.Render(c.Module), c.Coordinate, c.Left)
		case resolve.ChangeExtra:
			fmt.Fprintf(w, "%s + %s %s\n", ModuleStyle.Render(c.Module), c.Coordinate, c.Right)
		case resolve.ChangeVersion:
			fmt.Fprintf(w, "%s ~ %s %s -> %s\n", ModuleStyle.Render(c.Module), c.Coordinate, c.Left, c.Right)
		case resolve.ChangeScope:
			fmt.Fprintf(w, "%s ~ %s %s -> %s\n", ModuleStyle.Render(c.Module), c.Coordinate, c.LeftScope, c.RightScope)
		}
	}
	fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("%d differences", len(changes))))
}

func (p *progressPrinter) print(mr *build.ModuleResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch mr.State {
	case scheduler.StateSucceeded:
		fmt.Fprintf(p.w, "%s %s %s\n", SuccessStyle.Render("✓"), ModuleStyle.Render(string(mr.Module)),
			SubtitleStyle.Render(mr.Stage.String()+" "+mr.Duration.Round(time.Millisecond).String()))
	case scheduler.StateFailed:
		fmt.Fprintf(p.w, "%s %s %s\n", ErrorStyle.Render("✗"), ModuleStyle.Render(string(mr.Module)),
			ErrorStyle.Render(mr.Stage.String()+" failed"))
	case scheduler.StateBlocked:
		ids := make([]string, len(mr.BlockedBy))
		for i, id := range mr.BlockedBy {
			ids[i] = string(id)
		}
		fmt.Fprintf(p.w, "%s %s %s\n", WarningStyle.Render("-"), ModuleStyle.Render(string(mr.Module)),
			WarningStyle.Render("blocked by "+strings.Join(ids, " <- ")))
	default:
		fmt.Fprintf(p.w, "%s %s %s\n", SubtitleStyle.Render("·"), ModuleStyle.Render(string(mr.Module)), string(mr.State))
	}
}
