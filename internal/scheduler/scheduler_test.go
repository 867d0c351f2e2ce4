// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/masonbuild/mason/internal/dag"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// feGraph mirrors a small workspace: plugin-common feeds fe-core and
// spark-dpp; fe-core feeds fe-server.
func feGraph() *dag.Graph {
	g := dag.New()
	g.AddEdge("plugin-common", "fe-core")
	g.AddEdge("plugin-common", "spark-dpp")
	g.AddEdge("fe-core", "fe-server")
	g.AddNode("hive-udf")
	return g
}

func TestRunRespectsDependencies(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var finished []string
	res, err := Run(context.Background(), feGraph(), Options{Workers: 4}, func(_ context.Context, node string) error {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, node)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected all nodes to succeed: %+v", res.Outcomes)
	}
	before := func(a, b string) bool { return slices.Index(finished, a) < slices.Index(finished, b) }
	if !before("plugin-common", "fe-core") || !before("fe-core", "fe-server") || !before("plugin-common", "spark-dpp") {
		t.Errorf("dependency order violated: %v", finished)
	}
}

func TestRunFailureBlocksOnlyDependents(t *testing.T) {
	t.Parallel()

	boom := errors.New("compile failed")
	var ran sync.Map
	res, err := Run(context.Background(), feGraph(), Options{Workers: 2}, func(_ context.Context, node string) error {
		ran.Store(node, true)
		if node == "plugin-common" {
			return boom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := res.Failed(); !slices.Equal(got, []string{"plugin-common"}) {
		t.Errorf("Failed = %v", got)
	}
	if got := res.Succeeded(); !slices.Equal(got, []string{"hive-udf"}) {
		t.Errorf("Succeeded = %v", got)
	}
	for _, n := range []string{"fe-core", "spark-dpp", "fe-server"} {
		if _, ok := ran.Load(n); ok {
			t.Errorf("%s ran although its dependency failed", n)
		}
		if !errors.Is(res.Outcomes[n].Err, ErrBlocked) {
			t.Errorf("%s error = %v, want ErrBlocked", n, res.Outcomes[n].Err)
		}
	}
	if !errors.Is(res.Outcomes["plugin-common"].Err, boom) {
		t.Errorf("failure cause lost: %v", res.Outcomes["plugin-common"].Err)
	}
	if got := res.Outcomes["fe-server"].BlockedBy; !slices.Equal(got, []string{"fe-core", "plugin-common"}) {
		t.Errorf("fe-server chain = %v", got)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	g := dag.New()
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		g.AddNode(n)
	}

	var current, peak atomic.Int32
	_, err := Run(context.Background(), g, Options{Workers: 2}, func(context.Context, string) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency %d exceeds 2 workers", peak.Load())
	}
}

func TestRunCycleRunsNothing(t *testing.T) {
	t.Parallel()

	g := dag.New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")

	var calls atomic.Int32
	_, err := Run(context.Background(), g, Options{}, func(context.Context, string) error {
		calls.Add(1)
		return nil
	})
	if !errors.Is(err, dag.ErrCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("%d tasks ran despite the cycle", calls.Load())
	}
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	res, err := Run(ctx, feGraph(), Options{Workers: 1}, func(context.Context, string) error {
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Outcomes) != len(res.Order) {
		t.Fatalf("every node needs an outcome: %v", res.Outcomes)
	}
	canceled := 0
	for _, o := range res.Outcomes {
		if o.State == StateCanceled {
			canceled++
		}
	}
	if canceled == 0 {
		t.Error("expected canceled nodes after cancel")
	}
}

func TestRunOnDoneSeesEveryNode(t *testing.T) {
	t.Parallel()

	var seen []string
	_, err := Run(context.Background(), feGraph(), Options{OnDone: func(o *Outcome) { seen = append(seen, o.Node) }},
		func(context.Context, string) error { return nil })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 5 {
		t.Errorf("OnDone called %d times, want 5", len(seen))
	}
}
