// SPDX-License-Identifier: MPL-2.0

package dag

import (
	"errors"
	"slices"
	"testing"
)

type edge struct{ from, to string }

func build(nodes []string, edges []edge) *Graph {
	g := New()
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		g.AddEdge(e.from, e.to)
	}
	return g
}

func TestTopologicalSort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		nodes []string
		edges []edge
		want  []string
	}{
		{name: "empty"},
		{name: "single module", nodes: []string{"fe-core"}, want: []string{"fe-core"}},
		{
			name:  "chain",
			edges: []edge{{"fe-grammar", "fe-core"}, {"fe-core", "fe-server"}},
			want:  []string{"fe-grammar", "fe-core", "fe-server"},
		},
		{
			name: "diamond keeps insertion order within a level",
			edges: []edge{
				{"plugin-common", "fe-core"}, {"plugin-common", "hive-udf"},
				{"fe-core", "fe-server"}, {"hive-udf", "fe-server"},
			},
			want: []string{"plugin-common", "fe-core", "hive-udf", "fe-server"},
		},
		{
			name:  "disconnected modules",
			nodes: []string{"spark-dpp"},
			edges: []edge{{"plugin-common", "fe-core"}},
			want:  []string{"spark-dpp", "plugin-common", "fe-core"},
		},
		{
			name:  "duplicate edges collapse",
			edges: []edge{{"plugin-common", "fe-core"}, {"plugin-common", "fe-core"}},
			want:  []string{"plugin-common", "fe-core"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := build(tt.nodes, tt.edges).TopologicalSort()
			if err != nil {
				t.Fatalf("TopologicalSort() error = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("TopologicalSort() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopologicalSort_Cycles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		edges   []edge
		minSize int
	}{
		{"self loop", []edge{{"fe-core", "fe-core"}}, 2},
		{"two modules", []edge{{"fe-core", "plugin-common"}, {"plugin-common", "fe-core"}}, 3},
		{"three modules", []edge{{"a", "b"}, {"b", "c"}, {"c", "a"}}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := build(nil, tt.edges).TopologicalSort()
			var cycleErr *CycleError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("TopologicalSort() error = %v, want *CycleError", err)
			}
			if len(cycleErr.Cycle) < tt.minSize {
				t.Errorf("Cycle = %v, want at least %d entries", cycleErr.Cycle, tt.minSize)
			}
		})
	}
}

func TestCycleError_Message(t *testing.T) {
	t.Parallel()
	err := &CycleError{Cycle: []string{"A", "B", "C"}}
	expected := "dependency cycle detected: A -> B -> C"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestCycleError_ClosedPath(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddEdge("root", "A")
	g.AddEdge("A", "B")
	g.AddEdge("B", "C")
	g.AddEdge("C", "A")
	g.AddEdge("C", "leaf")

	_, err := g.TopologicalSort()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	cycle := cycleErr.Cycle
	if len(cycle) != 4 || cycle[0] != cycle[len(cycle)-1] {
		t.Fatalf("expected closed 3-node cycle, got %v", cycle)
	}
	for i := 0; i+1 < len(cycle); i++ {
		if !slices.Contains(g.Successors(cycle[i]), cycle[i+1]) {
			t.Errorf("cycle step %s -> %s is not an edge", cycle[i], cycle[i+1])
		}
	}
	if slices.Contains(cycle, "root") || slices.Contains(cycle, "leaf") {
		t.Errorf("cycle must not include nodes outside the loop: %v", cycle)
	}
}

func TestPredecessorsAndDescendants(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddEdge("common", "core")
	g.AddEdge("grammar", "core")
	g.AddEdge("core", "server")
	g.AddEdge("core", "tools")
	g.AddNode("spark-dpp")

	if got := g.Predecessors("core"); !slices.Equal(got, []string{"common", "grammar"}) {
		t.Errorf("Predecessors(core) = %v", got)
	}
	if got := g.Descendants("common"); !slices.Equal(got, []string{"core", "server", "tools"}) {
		t.Errorf("Descendants(common) = %v", got)
	}
	if got := g.Descendants("spark-dpp"); len(got) != 0 {
		t.Errorf("Descendants(spark-dpp) = %v", got)
	}
	if !g.Has("spark-dpp") || g.Has("ghost") {
		t.Error("Has reports wrong membership")
	}
	if got := g.Nodes(); len(got) != 6 {
		t.Errorf("Nodes = %v", got)
	}
}
