// SPDX-License-Identifier: MPL-2.0

package compile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/masonbuild/mason/internal/codegen"
	"github.com/masonbuild/mason/internal/testutil"
	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/manifest"
	"github.com/masonbuild/mason/pkg/repository"
	"github.com/masonbuild/mason/pkg/resolve"
)

// fakeJavac writes one class file per source named in the argument file.
const fakeJavac = `while IFS= read -r line; do
  case "$line" in
  *.java\")
    f=${line%\"}
    n=${f##*/}
    printf 'cafebabe' > "$MASON_OUT/${n%.java}.class"
    ;;
  esac
done < "$MASON_ARGFILE"`

var (
	guava  = coord.Coordinate{Group: "com.google.guava", Name: "guava"}
	lombok = coord.Coordinate{Group: "org.projectlombok", Name: "lombok"}
	junit  = coord.Coordinate{Group: "org.junit.jupiter", Name: "junit-jupiter"}
)

func feCore(t *testing.T) *manifest.Module {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "src/main/java/com/starrocks/qe/ConnectContext.java"), "class ConnectContext {}")
	testutil.WriteFile(t, filepath.Join(dir, "src/main/java/com/starrocks/catalog/Table.java"), "class Table {}")
	testutil.WriteFile(t, filepath.Join(dir, "src/main/java/com/starrocks/catalog/README"), "not a source")
	testutil.WriteFile(t, filepath.Join(dir, "src/main/resources/conf/fe.conf"), "http_port = 8030\n")
	testutil.WriteFile(t, filepath.Join(dir, "src/test/java/com/starrocks/qe/ConnectContextTest.java"), "class ConnectContextTest {}")
	return &manifest.Module{
		ID:          "fe-core",
		Dir:         dir,
		Release:     17,
		Sources:     []string{"src/main/java"},
		TestSources: []string{"src/test/java"},
		Resources:   []string{"src/main/resources"},
	}
}

func feCoreGraph() *resolve.Graph {
	return &resolve.Graph{
		Module: "fe-core",
		Internal: []resolve.InternalEdge{
			{Module: "fe-common", Scope: coord.ScopeCompile},
			{Module: "fe-testing", Scope: coord.ScopeTest},
		},
		Nodes: []resolve.Node{
			{Coordinate: guava, Version: "32.0.1-jre", Scope: coord.ScopeCompile},
			{Coordinate: junit, Version: "5.8.2", Scope: coord.ScopeTest},
			{Coordinate: lombok, Version: "1.18.30", Scope: coord.ScopeCompileOnly},
		},
	}
}

func repo() *repository.Memory {
	r := repository.NewMemory()
	r.AddArtifact(guava, "32.0.1-jre", "/repo/guava-32.0.1-jre.jar")
	r.AddArtifact(lombok, "1.18.30", "/repo/lombok-1.18.30.jar")
	r.AddArtifact(junit, "5.8.2", "/repo/junit-jupiter-5.8.2.jar")
	return r
}

func TestCompile_Main(t *testing.T) {
	t.Parallel()

	m := feCore(t)
	genDir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(genDir, "com/starrocks/sql/parser/StarRocksParser.java"), "class StarRocksParser {}")
	testutil.WriteFile(t, filepath.Join(genDir, "com/starrocks/sql/parser/StarRocks.tokens"), "SELECT=1")
	generated := []*codegen.GeneratedSources{{
		Unit:  "fe-core/grammar#0",
		Dir:   genDir,
		Files: []string{"com/starrocks/sql/parser/StarRocks.tokens", "com/starrocks/sql/parser/StarRocksParser.java"},
	}}

	// a stale class from an earlier compilation must disappear
	testutil.WriteFile(t, filepath.Join(ClassDir(m, SourceSetMain), "Removed.class"), "old")

	c := New(repo(), WithCommand(fakeJavac), WithOutput(io.Discard, io.Discard))
	out, err := c.Compile(context.Background(), Request{
		Module:    m,
		Graph:     feCoreGraph(),
		Generated: generated,
		Modules:   map[manifest.ModuleID]string{"fe-common": "/ws/fe-common/build/classes/java/main"},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	wantEntries := []string{"ConnectContext.class", "StarRocksParser.class", "Table.class", "conf/fe.conf"}
	if diff := cmp.Diff(wantEntries, out.Entries); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}
	wantCP := []string{"/ws/fe-common/build/classes/java/main", "/repo/guava-32.0.1-jre.jar", "/repo/lombok-1.18.30.jar"}
	if diff := cmp.Diff(wantCP, out.Classpath); diff != "" {
		t.Errorf("classpath (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(out.Argfile)
	if err != nil {
		t.Fatal(err)
	}
	args := string(data)
	for _, want := range []string{`"-encoding"` + "\n" + `"UTF-8"`, `"--release"` + "\n" + `"17"`, `"-classpath"`} {
		if !strings.Contains(args, want) {
			t.Errorf("argument file lacks %s:\n%s", want, args)
		}
	}
	if strings.Contains(args, "README") || strings.Contains(args, ".tokens") {
		t.Errorf("argument file lists non-source files:\n%s", args)
	}
}

func TestCompile_TestSourceSet(t *testing.T) {
	t.Parallel()

	m := feCore(t)
	m.Release = 0
	c := New(repo(), WithCommand(fakeJavac), WithRelease(11), WithOutput(io.Discard, io.Discard))
	out, err := c.Compile(context.Background(), Request{
		Module:      m,
		Graph:       feCoreGraph(),
		SourceSet:   SourceSetTest,
		MainClasses: ClassDir(m, SourceSetMain),
		Modules: map[manifest.ModuleID]string{
			"fe-common":  "/ws/fe-common/classes",
			"fe-testing": "/ws/fe-testing/classes",
		},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	want := []string{
		ClassDir(m, SourceSetMain),
		"/ws/fe-common/classes",
		"/ws/fe-testing/classes",
		"/repo/guava-32.0.1-jre.jar",
		"/repo/junit-jupiter-5.8.2.jar",
	}
	if diff := cmp.Diff(want, out.Classpath); diff != "" {
		t.Errorf("test classpath (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ConnectContextTest.class"}, out.Entries); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}
	data, _ := os.ReadFile(out.Argfile)
	if !strings.Contains(string(data), `"--release"`+"\n"+`"11"`) {
		t.Errorf("default release not applied:\n%s", data)
	}
}

func TestCompile_MissingClasspathEntries(t *testing.T) {
	t.Parallel()

	m := feCore(t)
	c := New(repository.NewMemory(), WithCommand(fakeJavac))

	_, err := c.Compile(context.Background(), Request{
		Module:  m,
		Graph:   feCoreGraph(),
		Modules: map[manifest.ModuleID]string{"fe-common": "/classes"},
	})
	if !errors.Is(err, ErrMissingClasspathEntry) || !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing archive: got %v", err)
	}

	_, err = c.Compile(context.Background(), Request{Module: m, Graph: feCoreGraph()})
	if !errors.Is(err, ErrMissingClasspathEntry) || !strings.Contains(err.Error(), "fe-common") {
		t.Fatalf("missing module classes: got %v", err)
	}
}

func TestCompile_Failure(t *testing.T) {
	t.Parallel()

	m := feCore(t)
	c := New(nil, WithCommand(`echo "Table.java:1: error: ';' expected" >&2; exit 1`), WithOutput(io.Discard, io.Discard))
	_, err := c.Compile(context.Background(), Request{Module: m})

	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if !errors.Is(err, ErrCompileFailed) || ce.ExitCode != 1 || ce.Module != "fe-core" {
		t.Errorf("CompileError = %+v", ce)
	}
	if !strings.Contains(ce.Stderr, "';' expected") {
		t.Errorf("stderr = %q", ce.Stderr)
	}
}

func TestCompile_NothingToCompile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "src/main/resources/META-INF/services/java.sql.Driver"), "com.mysql.cj.jdbc.Driver\n")
	m := &manifest.Module{ID: "fe-drivers", Dir: dir, Sources: []string{"src/main/java"}, Resources: []string{"src/main/resources"}}

	out, err := New(nil, WithCommand("exit 3")).Compile(context.Background(), Request{Module: m})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if out.Argfile != "" {
		t.Error("compiler should not run without sources")
	}
	if diff := cmp.Diff([]string{"META-INF/services/java.sql.Driver"}, out.Entries); diff != "" {
		t.Errorf("entries (-want +got):\n%s", diff)
	}
}

func TestQuoteArg(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"-d", `"-d"`},
		{"/home/dev/My Projects/A.java", `"/home/dev/My Projects/A.java"`},
		{`C:\src\A.java`, `"C:\\src\\A.java"`},
		{`say "hi"`, `"say \"hi\""`},
	}
	for _, tt := range tests {
		if got := quoteArg(tt.in); got != tt.want {
			t.Errorf("quoteArg(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
