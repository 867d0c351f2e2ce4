// SPDX-License-Identifier: MPL-2.0

package testrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masonbuild/mason/pkg/manifest"
)

// fakeJVM reports one result per class and records its arguments.
const fakeJVM = `for c in $MASON_TEST_CLASSES; do
  case "$c" in
  *FailingTest) echo "##mason[test=$c#testKill status=failed message='expected <1>|n but was <2>']" ;;
  *SkippedTest) echo "##mason[test=$c status=skipped]" ;;
  *) echo "##mason[test=$c status=passed duration_ms=5]" ;;
  esac
done
echo "INFO jvm noise"
printf '%%s\n' "$@" > "%s/$MASON_PROCESS.args"`

func fakeRunner(t *testing.T, opts ...Option) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	return New(append([]Option{WithCommand(fmt.Sprintf(fakeJVM, dir))}, opts...)...), dir
}

// launches returns the recorded argument lists, one per process.
func launches(t *testing.T, dir string) [][]string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.args"))
	require.NoError(t, err)
	out := make([][]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		out = append(out, strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"))
	}
	return out
}

func settings(isolation manifest.Isolation, parallelism int) manifest.TestSettings {
	return manifest.TestSettings{Isolation: isolation, Parallelism: parallelism}
}

func TestRun_OneProcessPerTest(t *testing.T) {
	t.Parallel()

	r, dir := fakeRunner(t)
	tests := []string{
		"com.starrocks.qe.ConnectContextTest",
		"com.starrocks.qe.FailingTest",
		"com.starrocks.sql.SkippedTest",
	}
	report, err := r.Run(context.Background(), tests, Options{
		Module:    "fe-core",
		Classpath: []string{"/fe-core/test-classes", "/fe-core/classes"},
		Settings:  settings(manifest.IsolationOneProcessPerTest, 2),
	})
	require.NoError(t, err, "failing tests are not fatal")

	assert.Equal(t, 3, report.Processes)
	assert.Len(t, launches(t, dir), 3)
	require.Len(t, report.Results, 3)
	assert.Equal(t, 1, report.Count(StatusPassed))
	assert.Equal(t, 1, report.Count(StatusSkipped))
	assert.False(t, report.OK())

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "com.starrocks.qe.FailingTest", failed[0].Class)
	assert.Equal(t, "testKill", failed[0].Name)
	assert.Equal(t, "expected <1>\n but was <2>", failed[0].Message)
	assert.Equal(t, 5*time.Millisecond, report.Results[0].Duration)
}

func TestRun_SharedProcessShards(t *testing.T) {
	t.Parallel()

	r, dir := fakeRunner(t)
	tests := []string{"a.ATest", "a.BTest", "a.CTest", "a.DTest", "a.ETest"}
	report, err := r.Run(context.Background(), tests, Options{
		Module:   "fe-common",
		Settings: settings(manifest.IsolationSharedProcess, 2),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processes)
	assert.Len(t, launches(t, dir), 2)
	assert.Equal(t, 5, report.Count(StatusPassed))
	assert.True(t, report.OK())
}

func TestRun_AgentsAttachOnlyToMatchingProcesses(t *testing.T) {
	t.Parallel()

	r, dir := fakeRunner(t, WithRunnerMain("org.example.Launcher"))
	s := settings(manifest.IsolationSharedProcess, 1)
	s.Agents = []manifest.Agent{{Path: "/m2/jmockit-1.49.4.jar", Classes: []string{"com.starrocks.qe.*"}}}
	s.SystemProperties = map[string]string{"starrocks.home": "/opt/starrocks", "fe.ut": "true"}
	s.JVMArgs = []string{"-Xmx4g"}

	_, err := r.Run(context.Background(), []string{"com.starrocks.qe.ConnectContextTest", "com.starrocks.sql.ParserTest"}, Options{
		Module:    "fe-core",
		Classpath: []string{"/cp/a", "/cp/b"},
		Settings:  s,
	})
	require.NoError(t, err)

	procs := launches(t, dir)
	require.Len(t, procs, 2, "agent and non-agent tests never share a process")
	var withAgent, without []string
	for _, args := range procs {
		if args[len(args)-1] == "com.starrocks.qe.ConnectContextTest" {
			withAgent = args
		} else {
			without = args
		}
	}
	sep := string(os.PathListSeparator)
	assert.Equal(t, []string{
		"-Xmx4g",
		"-Dfe.ut=true",
		"-Dstarrocks.home=/opt/starrocks",
		"-javaagent:/m2/jmockit-1.49.4.jar",
		"-cp", "/cp/a" + sep + "/cp/b",
		"org.example.Launcher",
		"com.starrocks.qe.ConnectContextTest",
	}, withAgent)
	assert.NotContains(t, strings.Join(without, " "), "-javaagent")
}

func TestRun_UnreportedClassesFollowExitCode(t *testing.T) {
	t.Parallel()

	r := New(WithCommand("exit 3"))
	report, err := r.Run(context.Background(), []string{"a.ATest", "a.BTest"}, Options{
		Module:   "spark-dpp",
		Settings: settings(manifest.IsolationSharedProcess, 1),
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		assert.Equal(t, StatusFailed, res.Status)
		assert.Contains(t, res.Message, "status 3")
	}
}

func TestRun_CrashAfterPassingReports(t *testing.T) {
	t.Parallel()

	r := New(WithCommand(`echo "##mason[test=a.ATest status=passed]"; exit 134`))
	report, err := r.Run(context.Background(), []string{"a.ATest"}, Options{Module: "fe-core"})
	require.NoError(t, err)
	assert.False(t, report.OK(), "a crashed process never reports success")
	assert.Equal(t, "<process>", report.Failed()[0].Name)
}

func TestRun_LaunchFailureIsFatal(t *testing.T) {
	t.Parallel()

	r := New(WithCommand(`mason-test-no-such-jvm "$@"`))
	_, err := r.Run(context.Background(), []string{"a.ATest"}, Options{Module: "fe-core"})
	require.ErrorIs(t, err, ErrTestExecution)

	var te *TestExecutionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, manifest.ModuleID("fe-core"), te.Module)
	assert.Equal(t, []string{"a.ATest"}, te.Classes)
}

func TestRun_MalformedReportIsFatal(t *testing.T) {
	t.Parallel()

	r := New(WithCommand(`echo "##mason[test=a.ATest status=exploded]"`))
	_, err := r.Run(context.Background(), []string{"a.ATest"}, Options{Module: "fe-core"})
	require.ErrorIs(t, err, ErrTestExecution)
}

func TestRun_InvalidIsolation(t *testing.T) {
	t.Parallel()

	_, err := New().Run(context.Background(), []string{"a.ATest"}, Options{Settings: settings("per-jvm", 1)})
	require.Error(t, err)
}
