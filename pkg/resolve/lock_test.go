// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/repository"
)

func sampleLock() *Lock {
	core := newGraph("fe-core", HighestWins, []string{"spark3"},
		[]InternalEdge{{Module: "fe-common", Scope: coord.ScopeCompile}},
		[]Node{
			{Coordinate: netty, Version: "4.1.118.Final", Scope: coord.ScopeCompile, Origin: OriginConstraint, Direct: true, Dependents: []string{"fe-core"}},
			{Coordinate: guava, Version: "32.1.2-jre", Scope: coord.ScopeCompile, Origin: OriginInternal, Dependents: []string{"fe-common", netty.Key()}},
			{Coordinate: junit, Version: "4.13.2", Scope: coord.ScopeTest, Origin: OriginOverride, Direct: true, Dependents: []string{"fe-core"}},
		})
	common := newGraph("fe-common", FirstSeenWins, nil, nil, []Node{
		{Coordinate: guava, Version: "32.1.2-jre", Scope: coord.ScopeCompile, Origin: OriginTransitive, Dependents: []string{hadoop.Key()}},
		{Coordinate: hadoop, Version: "3.4.1", Scope: coord.ScopeCompile, Origin: OriginOverride, Direct: true, Dependents: []string{"fe-common"}},
	})
	return NewLock(core, common)
}

func TestLockRoundTrip(t *testing.T) {
	t.Parallel()

	lock := sampleLock()
	data := lock.Render()

	parsed, err := ParseLock(data, LockFileName)
	if err != nil {
		t.Fatalf("ParseLock: %v\n%s", err, data)
	}
	if !bytes.Equal(data, parsed.Render()) {
		t.Errorf("render is not stable across a round trip:\n%s\n---\n%s", data, parsed.Render())
	}
	opts := []cmp.Option{cmpopts.IgnoreUnexported(Graph{}), cmpopts.EquateEmpty()}
	if diff := cmp.Diff(lock.Modules, parsed.Modules, opts...); diff != "" {
		t.Errorf("graphs (-want +got):\n%s", diff)
	}
	if ids := []string{string(parsed.Modules[0].Module), string(parsed.Modules[1].Module)}; ids[0] != "fe-common" || ids[1] != "fe-core" {
		t.Errorf("modules not sorted: %v", ids)
	}
}

func TestLockSaveAndLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", LockFileName)
	if err := sampleLock().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	lock, err := LoadLock(path)
	if err != nil {
		t.Fatalf("LoadLock: %v", err)
	}
	g, ok := lock.Graph("fe-core")
	if !ok {
		t.Fatal("fe-core missing from loaded lock")
	}
	if v := g.Version(netty); v != "4.1.118.Final" {
		t.Errorf("netty = %s", v)
	}
	if diff := cmp.Diff([]string{"spark3"}, g.Profiles); diff != "" {
		t.Errorf("profiles (-want +got):\n%s", diff)
	}
}

func TestLockHasNoVolatileContent(t *testing.T) {
	t.Parallel()

	src := repository.NewMemory()
	src.Add(hadoop, "3.4.1", dep(guava, "27.0-jre", coord.ScopeCompile))
	r := New(pins(guava, "32.1.2-jre"), src)

	var renders [][]byte
	for range 3 {
		g, err := r.Resolve(context.Background(), module("fe-common", nil, req(hadoop, "3.4.1"), req(junit, "4.13.2")), nil)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		renders = append(renders, NewLock(g).Render())
	}
	for _, r := range renders[1:] {
		if !bytes.Equal(renders[0], r) {
			t.Fatalf("lock output differs between runs")
		}
	}
}

func TestParseLock_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"wrong version", "version: 2\nmodules: []\n"},
		{"unknown origin", `version: 1
modules: [{module: "a", policy: "highest-wins", nodes: [{coordinate: "g:n", version: "1", scope: "compile", origin: "guess"}]}]
`},
		{"unknown scope", `version: 1
modules: [{module: "a", policy: "highest-wins", nodes: [{coordinate: "g:n", version: "1", scope: "provided", origin: "override"}]}]
`},
		{"bad coordinate", `version: 1
modules: [{module: "a", policy: "highest-wins", nodes: [{coordinate: "nocolon", version: "1", scope: "compile", origin: "override"}]}]
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseLock([]byte(tt.data), LockFileName); err == nil {
				t.Error("expected error")
			} else if !strings.Contains(err.Error(), LockFileName) {
				t.Errorf("error should name the file: %v", err)
			}
		})
	}
}
