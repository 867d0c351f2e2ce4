// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/masonbuild/mason/internal/testutil"
	"github.com/masonbuild/mason/pkg/manifest"
)

const (
	grammarSource = "// StarRocks SQL grammar\ngrammar StarRocks;\n\nstatement : 'SELECT' ;\n"
	schemaSource  = `syntax = "proto2";
package starrocks;
option java_package = "com.starrocks.proto";

message PUniqueId {
  required int64 hi = 1;
  required int64 lo = 2;
}
`
)

// fakeGenerator writes files through write and counts invocations.
type fakeGenerator struct {
	kind  manifest.StageKind
	calls atomic.Int32
	write func(inv Invocation) error
}

func (f *fakeGenerator) Kind() manifest.StageKind { return f.kind }

func (f *fakeGenerator) Command() string { return "fake " + string(f.kind) }

func (f *fakeGenerator) Validate(context.Context, *Unit) error { return nil }

func (f *fakeGenerator) Generate(_ context.Context, inv Invocation) error {
	f.calls.Add(1)
	return f.write(inv)
}

// writeOutputs returns a write func producing the given files, each holding
// the concatenated unit inputs.
func writeOutputs(files ...string) func(Invocation) error {
	return func(inv Invocation) error {
		var content strings.Builder
		for _, p := range inv.Unit.InputPaths() {
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			content.Write(data)
		}
		for _, f := range files {
			dst := filepath.Join(inv.OutDir, filepath.FromSlash(f))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(dst, []byte(content.String()), 0o644); err != nil {
				return err
			}
		}
		return nil
	}
}

// fixtureModule creates a module directory holding one grammar and one
// schema input.
func fixtureModule(t *testing.T, stages ...manifest.Stage) *manifest.Module {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "src/main/antlr/com/starrocks/sql/parser/StarRocks.g4"), grammarSource)
	testutil.WriteFile(t, filepath.Join(dir, "src/main/proto/internal_service.proto"), schemaSource)
	return &manifest.Module{ID: "fe-core", Dir: dir, Codegen: stages}
}

func plan(t *testing.T, m *manifest.Module) []*Unit {
	t.Helper()
	units, err := Plan(m)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	return units
}

func grammarStage(output string) manifest.Stage {
	return manifest.Stage{
		Kind:    manifest.KindGrammar,
		Inputs:  []string{"src/main/antlr/**/*.g4"},
		Output:  output,
		Package: "com.starrocks.sql.parser",
		Flags:   []string{"-visitor"},
	}
}

func schemaStage(output string) manifest.Stage {
	return manifest.Stage{Kind: manifest.KindSchema, Inputs: []string{"src/main/proto/*.proto"}, Output: output}
}

func TestPlan(t *testing.T) {
	t.Parallel()

	m := fixtureModule(t, grammarStage("build/generated-src/antlr"), schemaStage("build/generated-src/proto"))
	units := plan(t, m)
	if len(units) != 2 {
		t.Fatalf("units = %d, want 2", len(units))
	}

	g, s := units[0], units[1]
	if diff := cmp.Diff([]string{"src/main/antlr/com/starrocks/sql/parser/StarRocks.g4"}, g.Inputs); diff != "" {
		t.Errorf("grammar inputs (-want +got):\n%s", diff)
	}
	if g.Output != filepath.Join(m.Dir, "build", "generated-src", "antlr") {
		t.Errorf("output = %s", g.Output)
	}
	if s.Package != "com.starrocks.proto" {
		t.Errorf("schema package = %q, want java_package", s.Package)
	}
	if g.ID() != "fe-core/grammar#0" || s.ID() != "fe-core/schema#1" {
		t.Errorf("ids = %s, %s", g.ID(), s.ID())
	}
}

func TestPlan_NoInputs(t *testing.T) {
	t.Parallel()

	m := fixtureModule(t, manifest.Stage{Kind: manifest.KindGrammar, Inputs: []string{"src/main/antlr/*.g3"}, Output: "out"})
	if _, err := Plan(m); !errors.Is(err, ErrNoInputs) {
		t.Fatalf("expected ErrNoInputs, got %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	m := fixtureModule(t, grammarStage("out"))
	u := plan(t, m)[0]

	base, err := Fingerprint(u, "antlr4")
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	again, _ := Fingerprint(u, "antlr4")
	if base != again {
		t.Error("fingerprint is not stable")
	}

	variants := map[string]func(u *Unit){
		"flags":   func(u *Unit) { u.Flags = []string{"-no-visitor"} },
		"package": func(u *Unit) { u.Package = "com.starrocks.parser" },
		"command": func(u *Unit) { u.Command = "antlr4 -Werror" },
	}
	for name, mutate := range variants {
		v := *u
		mutate(&v)
		fp, err := Fingerprint(&v, "antlr4")
		if err != nil {
			t.Fatal(err)
		}
		if fp == base {
			t.Errorf("changing %s did not change the fingerprint", name)
		}
	}
	if fp, _ := Fingerprint(u, "antlr4.13"); fp == base {
		t.Error("changing the default command did not change the fingerprint")
	}

	testutil.WriteFile(t, u.InputPaths()[0], grammarSource+"expr : ID ;\n")
	if fp, _ := Fingerprint(u, "antlr4"); fp == base {
		t.Error("changing input content did not change the fingerprint")
	}
}

func TestPipeline_CacheHit(t *testing.T) {
	t.Parallel()

	m := fixtureModule(t, grammarStage("build/generated-src/antlr"))
	u := plan(t, m)[0]
	gen := &fakeGenerator{kind: manifest.KindGrammar, write: writeOutputs("com/starrocks/sql/parser/StarRocksParser.java")}
	p := NewPipeline(NewRegistry(gen), NewMemoryStore())
	ctx := context.Background()

	first, err := p.Run(ctx, u)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := p.Run(ctx, u)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gen.calls.Load() != 1 {
		t.Errorf("generator ran %d times, want 1", gen.calls.Load())
	}
	if first != second {
		t.Error("second run should return the same GeneratedSources")
	}
	if diff := cmp.Diff([]string{"com/starrocks/sql/parser/StarRocksParser.java"}, first.Files); diff != "" {
		t.Errorf("files (-want +got):\n%s", diff)
	}

	// deleting an output forces regeneration
	if err := os.Remove(first.Paths()[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(ctx, u); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gen.calls.Load() != 2 {
		t.Errorf("missing output should regenerate, calls = %d", gen.calls.Load())
	}

	// so does an input change
	testutil.WriteFile(t, u.InputPaths()[0], grammarSource+"expr : ID ;\n")
	third, err := p.Run(ctx, u)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gen.calls.Load() != 3 || third.Fingerprint == first.Fingerprint {
		t.Errorf("input change should regenerate, calls = %d", gen.calls.Load())
	}
	data, err := os.ReadFile(third.Paths()[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "expr : ID") {
		t.Error("promoted output is stale")
	}
}

func TestPipeline_SQLiteStoreSurvivesRestart(t *testing.T) {
	t.Parallel()

	m := fixtureModule(t, schemaStage("build/generated-src/proto"))
	u := plan(t, m)[0]
	dbPath := filepath.Join(t.TempDir(), ".mason", StoreFileName)
	ctx := context.Background()

	run := func() (*GeneratedSources, int32) {
		store, err := OpenSQLiteStore(dbPath)
		if err != nil {
			t.Fatalf("OpenSQLiteStore: %v", err)
		}
		defer store.Close()
		gen := &fakeGenerator{kind: manifest.KindSchema, write: writeOutputs("com/starrocks/proto/InternalService.java")}
		gs, err := NewPipeline(NewRegistry(gen), store).Run(ctx, u)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return gs, gen.calls.Load()
	}

	first, calls := run()
	if calls != 1 {
		t.Fatalf("first run calls = %d", calls)
	}
	second, calls := run()
	if calls != 0 {
		t.Errorf("restarted pipeline regenerated (%d calls)", calls)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("GeneratedSources differ across restart (-first +second):\n%s", diff)
	}
}

func TestPipeline_RemovesStaleOutputs(t *testing.T) {
	t.Parallel()

	m := fixtureModule(t, grammarStage("out"))
	u := plan(t, m)[0]
	files := []string{"A.java", "B.java"}
	gen := &fakeGenerator{kind: manifest.KindGrammar, write: func(inv Invocation) error { return writeOutputs(files...)(inv) }}
	p := NewPipeline(NewRegistry(gen), NewMemoryStore())

	if _, err := p.Run(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	files = []string{"A.java"}
	testutil.WriteFile(t, u.InputPaths()[0], grammarSource+"// changed\n")
	if _, err := p.Run(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(u.Output, "B.java")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale B.java still present: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(u.Output))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".mason-staging-") {
			t.Errorf("staging directory %s left behind", e.Name())
		}
	}
}

func TestPipeline_OutputCollision(t *testing.T) {
	t.Parallel()

	m := fixtureModule(t, grammarStage("build/gen"), manifest.Stage{
		Kind:   manifest.KindGrammar,
		Inputs: []string{"src/main/antlr/**/*.g4"},
		Output: "build/gen",
	})
	units := plan(t, m)
	gen := &fakeGenerator{kind: manifest.KindGrammar, write: writeOutputs("Parser.java")}
	p := NewPipeline(NewRegistry(gen), NewMemoryStore())

	if _, err := p.Run(context.Background(), units[0]); err != nil {
		t.Fatal(err)
	}
	_, err := p.Run(context.Background(), units[1])
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Kind != KindOutputCollision {
		t.Fatalf("expected OutputCollision, got %v", err)
	}
	if ge.Other != units[0].ID() || !errors.Is(err, ErrOutputCollision) {
		t.Errorf("collision error = %v", err)
	}
}

func TestRunModule_GrammarBeforeOverlappingSchema(t *testing.T) {
	t.Parallel()

	m := fixtureModule(t, schemaStage("build/generated-src"), grammarStage("build/generated-src"))
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	grammar := &fakeGenerator{kind: manifest.KindGrammar, write: func(inv Invocation) error {
		record("grammar-start")
		time.Sleep(50 * time.Millisecond)
		record("grammar-end")
		return writeOutputs("com/starrocks/sql/parser/StarRocksParser.java")(inv)
	}}
	schema := &fakeGenerator{kind: manifest.KindSchema, write: func(inv Invocation) error {
		record("schema-start")
		return writeOutputs("com/starrocks/proto/InternalService.java")(inv)
	}}

	out, err := NewPipeline(NewRegistry(grammar, schema), NewMemoryStore()).RunModule(context.Background(), plan(t, m))
	if err != nil {
		t.Fatalf("RunModule: %v", err)
	}
	if slices.Index(events, "grammar-end") > slices.Index(events, "schema-start") {
		t.Errorf("schema started before grammar finished: %v", events)
	}
	if out[0] == nil || out[1] == nil {
		t.Fatalf("missing results: %v", out)
	}
	if out[0].Unit != "fe-core/schema#0" {
		t.Errorf("results not indexed like units: %s", out[0].Unit)
	}
}

func TestRunModule_IndependentUnitsRunConcurrently(t *testing.T) {
	t.Parallel()

	m := fixtureModule(t, grammarStage("build/generated-src/antlr"), schemaStage("build/generated-src/proto"))
	barrier := make(chan struct{})
	var started atomic.Int32
	meet := func(files ...string) func(Invocation) error {
		return func(inv Invocation) error {
			if started.Add(1) == 2 {
				close(barrier)
			}
			select {
			case <-barrier:
			case <-time.After(5 * time.Second):
				return fmt.Errorf("%s ran alone", inv.Unit.ID())
			}
			return writeOutputs(files...)(inv)
		}
	}
	grammar := &fakeGenerator{kind: manifest.KindGrammar, write: meet("StarRocksParser.java")}
	schema := &fakeGenerator{kind: manifest.KindSchema, write: meet("InternalService.java")}

	if _, err := NewPipeline(NewRegistry(grammar, schema), NewMemoryStore()).RunModule(context.Background(), plan(t, m)); err != nil {
		t.Fatalf("RunModule: %v", err)
	}
}

func TestRunModule_FailedGrammarBlocksOverlappingSchema(t *testing.T) {
	t.Parallel()

	m := fixtureModule(t, grammarStage("build/gen"), schemaStage("build/gen"))
	grammar := &fakeGenerator{kind: manifest.KindGrammar, write: func(inv Invocation) error {
		return &GenerationError{Kind: KindInvalidGrammar, Module: inv.Unit.Module, Unit: inv.Unit.ID(), Err: errors.New("mismatched input")}
	}}
	schema := &fakeGenerator{kind: manifest.KindSchema, write: writeOutputs("S.java")}

	out, err := NewPipeline(NewRegistry(grammar, schema), NewMemoryStore()).RunModule(context.Background(), plan(t, m))
	if !errors.Is(err, ErrInvalidGrammar) {
		t.Fatalf("expected ErrInvalidGrammar, got %v", err)
	}
	if schema.calls.Load() != 0 || out[1] != nil {
		t.Error("schema unit should be blocked by the failed grammar unit")
	}
}

func TestOverlaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Unit
		want bool
	}{
		{"same dir", Unit{Output: "/m/gen"}, Unit{Output: "/m/gen"}, true},
		{"nested dir", Unit{Output: "/m/gen"}, Unit{Output: "/m/gen/proto"}, true},
		{"sibling dirs", Unit{Output: "/m/gen/antlr"}, Unit{Output: "/m/gen/proto"}, false},
		{"prefix-named sibling", Unit{Output: "/m/gen"}, Unit{Output: "/m/generated"}, false},
		{"nested package", Unit{Output: "/a", Package: "com.starrocks"}, Unit{Output: "/b", Package: "com.starrocks.proto"}, true},
		{"distinct packages", Unit{Output: "/a", Package: "com.starrocks.sql"}, Unit{Output: "/b", Package: "com.starrocks.proto"}, false},
		{"prefix-named package", Unit{Output: "/a", Package: "com.star"}, Unit{Output: "/b", Package: "com.starrocks"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := overlaps(&tt.a, &tt.b); got != tt.want {
				t.Errorf("overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}
