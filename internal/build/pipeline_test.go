// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/masonbuild/mason/internal/assembly"
	"github.com/masonbuild/mason/internal/classfile/classfiletest"
	"github.com/masonbuild/mason/internal/compile"
	"github.com/masonbuild/mason/internal/metrics"
	"github.com/masonbuild/mason/internal/scheduler"
	"github.com/masonbuild/mason/internal/testrun"
	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/manifest"
	"github.com/masonbuild/mason/pkg/repository"
	"github.com/masonbuild/mason/pkg/resolve"
)

// fakeJavac writes one class per source in the argument file and fails on
// a source named Broken.java.
const fakeJavac = `while IFS= read -r line; do
  case "$line" in
  *Broken.java\")
    echo "Broken.java:1: error: cannot find symbol" >&2
    exit 1
    ;;
  *.java\")
    f=${line%\"}
    n=${f##*/}
    printf 'cafebabe' > "$MASON_OUT/${n%.java}.class"
    ;;
  esac
done < "$MASON_ARGFILE"`

// fakeJVM passes every class except those named Failing*.
const fakeJVM = `for c in $MASON_TEST_CLASSES; do
  case "$c" in
  Failing*) echo "##mason[test=$c status=failed message='boom']" ;;
  *) echo "##mason[test=$c status=passed duration_ms=3]" ;;
  esac
done`

var guava = coord.Coordinate{Group: "com.google.guava", Name: "guava"}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type (
	// workspace builds a module set on disk: plugin-common feeds fe-core,
	// fe-core feeds fe-server, hive-udf stands alone.
	workspace struct {
		t    *testing.T
		root string
		repo *repository.Memory
		mods map[manifest.ModuleID]*manifest.Module
	}

	// countingRecorder counts stage results.
	countingRecorder struct {
		metrics.NoopRecorder
		mu      sync.Mutex
		results map[metrics.StageLabel]map[metrics.ResultLabel]int
		builds  int
	}
)

func (c *countingRecorder) IncStageResult(s metrics.StageLabel, r metrics.ResultLabel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		c.results = make(map[metrics.StageLabel]map[metrics.ResultLabel]int)
	}
	if c.results[s] == nil {
		c.results[s] = make(map[metrics.ResultLabel]int)
	}
	c.results[s][r]++
}

func (c *countingRecorder) ObserveBuildDuration(_ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builds++
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	w := &workspace{t: t, root: t.TempDir(), repo: repository.NewMemory(), mods: make(map[manifest.ModuleID]*manifest.Module)}

	w.repo.Add(guava, "32.0.1-jre")
	jar := classfiletest.WriteJar(t, t.TempDir(), "guava-32.0.1-jre.jar",
		classfiletest.Entries{}.AddClass(classfiletest.Class{Name: "com/google/common/base/Strings"}))
	w.repo.AddArtifact(guava, "32.0.1-jre", jar)

	w.module("plugin-common", []string{"PluginContext.java"}, nil)
	w.mods["plugin-common"].Requests = []manifest.Request{{Coordinate: guava, Scope: coord.ScopeCompile, Override: "32.0.1-jre"}}
	w.module("fe-core", []string{"ConnectContext.java"}, []string{"ConnectContextTest.java"}, "plugin-common")
	w.module("fe-server", []string{"StarRocksFE.java"}, []string{"StarRocksFETest.java"}, "fe-core")
	w.module("hive-udf", []string{"UDFJson.java"}, nil)
	return w
}

func (w *workspace) module(id manifest.ModuleID, sources, tests []string, internal ...manifest.ModuleID) {
	w.t.Helper()
	dir := filepath.Join(w.root, string(id))
	for _, s := range sources {
		w.write(filepath.Join(dir, "src/main/java/com/starrocks", s))
	}
	for _, s := range tests {
		w.write(filepath.Join(dir, "src/test/java/com/starrocks", s))
	}
	m := &manifest.Module{
		ID:          id,
		Dir:         dir,
		Version:     "3.3.0",
		Release:     11,
		Sources:     []string{"src/main/java"},
		TestSources: []string{"src/test/java"},
		Test:        manifest.TestSettings{Include: []string{"**/*Test.class"}, Isolation: manifest.IsolationSharedProcess, Parallelism: 1},
	}
	for _, dep := range internal {
		m.Internal = append(m.Internal, manifest.InternalRef{Module: dep, Scope: coord.ScopeCompile})
	}
	w.mods[id] = m
}

func (w *workspace) write(path string) {
	w.t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		w.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("class X {}"), 0o644); err != nil {
		w.t.Fatal(err)
	}
}

func (w *workspace) load() *manifest.Workspace {
	w.t.Helper()
	var mods []*manifest.Module
	for _, id := range []manifest.ModuleID{"plugin-common", "fe-core", "fe-server", "hive-udf"} {
		if m, ok := w.mods[id]; ok {
			mods = append(mods, m)
		}
	}
	ws, err := manifest.NewWorkspace(w.root, mods...)
	if err != nil {
		w.t.Fatal(err)
	}
	return ws
}

func (w *workspace) pipeline(opts ...Option) *Pipeline {
	return New(Components{
		Resolver:  resolve.New(manifest.NewConstraintTable(nil), w.repo),
		Compiler:  compile.New(w.repo, compile.WithCommand(fakeJavac)),
		Assembler: assembly.New(w.repo),
		Tests:     testrun.New(testrun.WithCommand(fakeJVM)),
	}, append([]Option{WithWorkers(3)}, opts...)...)
}

func (w *workspace) run(goal Goal, opts ...Option) *Result {
	w.t.Helper()
	res, err := w.pipeline(opts...).Run(context.Background(), Plan{Workspace: w.load(), Goal: goal})
	if err != nil {
		w.t.Fatalf("Run: %v", err)
	}
	return res
}

func stages(mr *ModuleResult) []Stage {
	out := make([]Stage, 0, len(mr.Stages))
	for _, s := range mr.Stages {
		out = append(out, s.Stage)
	}
	return out
}

func TestRun_Build(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	rec := &countingRecorder{}
	var mu sync.Mutex
	var finished []manifest.ModuleID
	res := w.run(GoalBuild, WithRecorder(rec), WithProgress(func(mr *ModuleResult) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, mr.Module)
	}))

	if !res.OK() {
		t.Fatalf("build failed: %v", res.Err())
	}
	if _, err := uuid.Parse(res.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", res.ID, err)
	}
	if len(finished) != 4 {
		t.Errorf("progress calls = %v", finished)
	}
	if slices.Index(finished, "plugin-common") > slices.Index(finished, "fe-core") ||
		slices.Index(finished, "fe-core") > slices.Index(finished, "fe-server") {
		t.Errorf("modules finished out of dependency order: %v", finished)
	}

	core := res.Modules["fe-core"]
	got := stages(core)
	slices.Sort(got)
	if want := []Stage{StageAssemble, StageCompile, StageResolve, StageTest}; !slices.Equal(got, want) {
		t.Errorf("fe-core stages = %v, want %v", got, want)
	}
	common := res.Modules["plugin-common"]
	if !slices.Contains(core.Classes.Classpath, common.Classes.ClassDir) {
		t.Errorf("fe-core classpath %v lacks plugin-common classes", core.Classes.Classpath)
	}
	if core.Graph.Version(guava) != "32.0.1-jre" {
		t.Errorf("fe-core did not inherit guava: %+v", core.Graph.Nodes)
	}

	entries := core.Artifact.Entries
	for _, want := range []string{"ConnectContext.class", "PluginContext.class", "com/google/common/base/Strings.class"} {
		if !slices.Contains(entries, want) {
			t.Errorf("fe-core archive lacks %s: %v", want, entries)
		}
	}
	if core.Tests.Count(testrun.StatusPassed) != 1 {
		t.Errorf("fe-core tests = %+v", core.Tests.Results)
	}
	if hive := res.Modules["hive-udf"]; hive.Tests == nil || len(hive.Tests.Results) != 0 {
		t.Errorf("hive-udf has no tests, report = %+v", hive.Tests)
	}

	if got := rec.results[metrics.StageCompile][metrics.ResultSuccess]; got != 4 {
		t.Errorf("compile successes = %d, want 4", got)
	}
	if rec.builds != 1 {
		t.Errorf("build durations observed = %d", rec.builds)
	}
	if lock := res.Lock(); len(lock.Modules) != 4 {
		t.Errorf("lock holds %d graphs", len(lock.Modules))
	}
}

func TestRun_GoalStopsAtStage(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	res := w.run(GoalCompile)
	if !res.OK() {
		t.Fatalf("build failed: %v", res.Err())
	}
	for id, mr := range res.Modules {
		if got := stages(mr); !slices.Equal(got, []Stage{StageResolve, StageCompile}) {
			t.Errorf("%s stages = %v", id, got)
		}
		if mr.Artifact != nil || mr.Tests != nil {
			t.Errorf("%s ran stages beyond compile", id)
		}
	}
	if _, err := os.Stat(assembly.ArchivePath(w.mods["fe-core"])); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("archive written for compile goal: %v", err)
	}
}

func TestRun_CompileFailureBlocksDependents(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	w.write(filepath.Join(w.mods["plugin-common"].Dir, "src/main/java/com/starrocks/Broken.java"))
	rec := &countingRecorder{}
	res := w.run(GoalBuild, WithRecorder(rec))

	common := res.Modules["plugin-common"]
	if common.State != scheduler.StateFailed || common.Stage != StageCompile {
		t.Fatalf("plugin-common = %s at %s", common.State, common.Stage)
	}
	if !errors.Is(common.Err, compile.ErrCompileFailed) {
		t.Errorf("plugin-common error = %v, want ErrCompileFailed", common.Err)
	}
	var se *StageError
	if !errors.As(common.Err, &se) || se.Module != "plugin-common" || se.Stage != StageCompile {
		t.Errorf("error %v does not name module and stage", common.Err)
	}

	server := res.Modules["fe-server"]
	if server.State != scheduler.StateBlocked {
		t.Fatalf("fe-server = %s", server.State)
	}
	if want := []manifest.ModuleID{"fe-core", "plugin-common"}; !slices.Equal(server.BlockedBy, want) {
		t.Errorf("fe-server BlockedBy = %v, want %v", server.BlockedBy, want)
	}
	if !errors.Is(server.Err, scheduler.ErrBlocked) {
		t.Errorf("fe-server error = %v", server.Err)
	}
	if len(server.Stages) != 0 {
		t.Errorf("blocked module ran stages: %v", stages(server))
	}
	if hive := res.Modules["hive-udf"]; hive.State != scheduler.StateSucceeded {
		t.Errorf("unrelated hive-udf = %s: %v", hive.State, hive.Err)
	}
	if got := res.Failed(); len(got) != 1 || got[0].Module != "plugin-common" {
		t.Errorf("Failed = %v", got)
	}
	if !errors.Is(res.Err(), compile.ErrCompileFailed) {
		t.Errorf("Result.Err = %v", res.Err())
	}
	if got := rec.results[metrics.StageResolve][metrics.ResultBlocked]; got != 2 {
		t.Errorf("blocked count = %d, want 2", got)
	}
}

func TestRun_TestFailureDoesNotBlockDependents(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	w.write(filepath.Join(w.mods["fe-core"].Dir, "src/test/java/com/starrocks/FailingPlannerTest.java"))
	res := w.run(GoalBuild)

	core := res.Modules["fe-core"]
	if core.State != scheduler.StateFailed || core.Stage != StageTest {
		t.Fatalf("fe-core = %s at %s", core.State, core.Stage)
	}
	var tf *TestFailureError
	if !errors.As(core.Err, &tf) || len(tf.Failed) != 1 || tf.Total != 2 {
		t.Errorf("fe-core error = %v", core.Err)
	}
	if core.Artifact == nil {
		t.Error("assembly should run alongside failing tests")
	}
	if server := res.Modules["fe-server"]; server.State != scheduler.StateSucceeded {
		t.Errorf("fe-server = %s: %v", server.State, server.Err)
	}
	if !errors.Is(res.Err(), ErrTestsFailed) {
		t.Errorf("Result.Err = %v", res.Err())
	}
}

func TestRun_CycleFailsBeforeAnyStage(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	w.mods["plugin-common"].Internal = []manifest.InternalRef{{Module: "fe-core", Scope: coord.ScopeCompile}}
	ran := false
	p := w.pipeline(WithProgress(func(*ModuleResult) { ran = true }))

	res, err := p.Run(context.Background(), Plan{Workspace: w.load(), Goal: GoalBuild})
	if !errors.Is(err, resolve.ErrCyclicInternalDependency) {
		t.Fatalf("Run error = %v, want cyclic internal dependency", err)
	}
	if res != nil || ran {
		t.Error("no module should run when the module graph has a cycle")
	}
	if _, err := os.Stat(compile.ClassDir(w.mods["hive-udf"], compile.SourceSetMain)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("hive-udf compiled despite the cycle: %v", err)
	}
}

func TestRun_Locked(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	first := w.run(GoalResolve)
	lock := first.Lock()

	p := w.pipeline()
	res, err := p.Run(context.Background(), Plan{Workspace: w.load(), Goal: GoalResolve, Lock: lock})
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK() {
		t.Fatalf("locked resolve failed: %v", res.Err())
	}
	if got := res.Modules["fe-core"].Graph; got != first.Modules["fe-core"].Graph {
		t.Error("locked build should reuse the locked graph")
	}

	w.module("spark-dpp", []string{"SparkDpp.java"}, nil)
	ws, err := manifest.NewWorkspace(w.root, w.mods["plugin-common"], w.mods["spark-dpp"])
	if err != nil {
		t.Fatal(err)
	}
	res, err = p.Run(context.Background(), Plan{Workspace: ws, Goal: GoalResolve, Lock: lock})
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(res.Modules["spark-dpp"].Err, ErrNotLocked) {
		t.Errorf("spark-dpp error = %v, want ErrNotLocked", res.Modules["spark-dpp"].Err)
	}
}

func TestRun_InvalidGoal(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	_, err := w.pipeline().Run(context.Background(), Plan{Workspace: w.load(), Goal: "deploy"})
	if !errors.Is(err, ErrInvalidGoal) {
		t.Errorf("err = %v, want ErrInvalidGoal", err)
	}
}

func TestGoalStages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		goal Goal
		want []Stage
	}{
		{GoalResolve, []Stage{StageResolve}},
		{GoalGenerate, []Stage{StageResolve, StageGenerate}},
		{GoalAssemble, []Stage{StageResolve, StageGenerate, StageCompile, StageAssemble}},
		{GoalTest, []Stage{StageResolve, StageGenerate, StageCompile, StageTest}},
		{GoalBuild, []Stage{StageResolve, StageGenerate, StageCompile, StageAssemble, StageTest}},
	}
	for _, tt := range tests {
		t.Run(string(tt.goal), func(t *testing.T) {
			t.Parallel()
			if err := tt.goal.Validate(); err != nil {
				t.Fatal(err)
			}
			if got := tt.goal.Stages(); !slices.Equal(got, tt.want) {
				t.Errorf("Stages() = %v, want %v", got, tt.want)
			}
		})
	}
}
