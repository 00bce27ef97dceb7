package graph_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/petasbytes/go-chatgraph/internal/checkpoint"
	"github.com/petasbytes/go-chatgraph/internal/graph"
)

type trail struct {
	Steps []string `json:"steps"`
	N     int      `json:"n"`
}

func visit(name string) graph.NodeFunc[trail] {
	return func(_ context.Context, s trail) (trail, error) {
		s.Steps = append(s.Steps, name)
		s.N++
		return s, nil
	}
}

func linear(t *testing.T, opts ...graph.Option) *graph.Compiled[trail] {
	t.Helper()
	g, err := graph.New[trail]("linear").
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddNode("c", visit("c")).
		SetEntryPoint("a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		SetFinishPoint("c").
		Compile(opts...)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return g
}

func TestInvoke_RunsNodesInOrder(t *testing.T) {
	g := linear(t)
	out, err := g.Invoke(context.Background(), "t1", trail{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if strings.Join(out.Steps, ",") != "a,b,c" || out.N != 3 {
		t.Fatalf("unexpected final state: %+v", out)
	}
}

func TestCompile_Validation(t *testing.T) {
	noop := visit("x")
	cases := []struct {
		name  string
		build func() *graph.StateGraph[trail]
		want  string
	}{
		{"NoEntry", func() *graph.StateGraph[trail] {
			return graph.New[trail]("g").AddNode("a", noop)
		}, "no entry point"},
		{"UnknownTarget", func() *graph.StateGraph[trail] {
			return graph.New[trail]("g").AddNode("a", noop).SetEntryPoint("a").AddEdge("a", "missing")
		}, "edge target \"missing\" not found"},
		{"UnknownSource", func() *graph.StateGraph[trail] {
			return graph.New[trail]("g").AddNode("a", noop).SetEntryPoint("a").AddEdge("ghost", "a")
		}, "edge source \"ghost\" not found"},
		{"ReservedID", func() *graph.StateGraph[trail] {
			return graph.New[trail]("g").AddNode(graph.End, noop)
		}, "invalid node id"},
		{"Duplicate", func() *graph.StateGraph[trail] {
			return graph.New[trail]("g").AddNode("a", noop).AddNode("a", noop)
		}, "duplicate node"},
		{"FanOut", func() *graph.StateGraph[trail] {
			return graph.New[trail]("g").AddNode("a", noop).AddNode("b", noop).
				SetEntryPoint("a").AddEdge("a", "b").AddEdge("a", graph.End)
		}, "more than one outgoing edge"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build().Compile()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestInvoke_NodeErrorWrapsNodeID(t *testing.T) {
	boom := errors.New("boom")
	g, err := graph.New[trail]("g").
		AddNode("a", visit("a")).
		AddNode("b", func(context.Context, trail) (trail, error) { return trail{}, boom }).
		SetEntryPoint("a").AddEdge("a", "b").SetFinishPoint("b").
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := g.Invoke(context.Background(), "t", trail{})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), `node "b"`) {
		t.Fatalf("want wrapped boom, got %v", err)
	}
	if strings.Join(out.Steps, ",") != "a" {
		t.Fatalf("state before failure should be returned, got %+v", out)
	}
}

func TestInvoke_RecursionLimit(t *testing.T) {
	g, err := graph.New[trail]("loop").
		AddNode("spin", visit("spin")).
		SetEntryPoint("spin").
		AddConditionalEdge("spin", func(trail) string { return "spin" }).
		Compile(graph.WithRecursionLimit(5))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := g.Invoke(context.Background(), "t", trail{})
	if !errors.Is(err, graph.ErrRecursionLimit) {
		t.Fatalf("want ErrRecursionLimit, got %v", err)
	}
	if out.N != 5 {
		t.Fatalf("want 5 executions before abort, got %d", out.N)
	}
}

func TestInvoke_ConditionalEdgeRoutes(t *testing.T) {
	g, err := graph.New[trail]("cond").
		AddNode("check", visit("check")).
		AddNode("even", visit("even")).
		AddNode("odd", visit("odd")).
		SetEntryPoint("check").
		AddConditionalEdge("check", func(s trail) string {
			if s.N%2 == 0 {
				return "even"
			}
			return "odd"
		}).
		SetFinishPoint("even").
		SetFinishPoint("odd").
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	out, err := g.Invoke(context.Background(), "t", trail{N: 1})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if strings.Join(out.Steps, ",") != "check,even" {
		t.Fatalf("unexpected route: %v", out.Steps)
	}
}

func TestInvoke_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := linear(t).Invoke(ctx, "t", trail{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestInvoke_ObserverEvents(t *testing.T) {
	var got []string
	g := linear(t, graph.WithObserver(func(e graph.Event) {
		got = append(got, string(e.Type)+":"+e.NodeID)
		if e.GraphID != "linear" || e.ThreadID != "t" || e.RunID == "" {
			t.Errorf("event missing identity fields: %+v", e)
		}
	}))
	if _, err := g.Invoke(context.Background(), "t", trail{}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	want := "node_start:a,node_end:a,node_start:b,node_end:b,node_start:c,node_end:c,completed:"
	if strings.Join(got, ",") != want {
		t.Fatalf("events:\n got %s\nwant %s", strings.Join(got, ","), want)
	}
}

func TestGetState_WithoutCheckpointer(t *testing.T) {
	if _, err := linear(t).GetState(context.Background(), "t"); !errors.Is(err, graph.ErrNoCheckpointer) {
		t.Fatalf("want ErrNoCheckpointer, got %v", err)
	}
}

func TestCheckpointing_PerThreadState(t *testing.T) {
	ctx := context.Background()
	saver := checkpoint.NewMemorySaver()
	g := linear(t, graph.WithCheckpointer(saver))

	snap, err := g.GetState(ctx, "fresh")
	if err != nil || snap.Found || snap.Values.N != 0 {
		t.Fatalf("fresh thread: want zero snapshot, got %+v, %v", snap, err)
	}

	if _, err := g.Invoke(ctx, "t1", trail{}); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	snap, err = g.GetState(ctx, "t1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if !snap.Found || snap.Values.N != 3 || snap.Node != "c" || snap.Next != "" || snap.Step != 4 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Second run on the same thread continues the step counter.
	if _, err := g.Invoke(ctx, "t1", snap.Values); err != nil {
		t.Fatalf("invoke 2: %v", err)
	}
	snap, _ = g.GetState(ctx, "t1")
	if snap.Values.N != 6 || snap.Step != 8 {
		t.Fatalf("unexpected snapshot after second run: %+v", snap)
	}

	hist, err := g.History(ctx, "t1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 8 || hist[0].Node != graph.Start || hist[0].Next != "a" {
		t.Fatalf("unexpected history: %d entries, first=%+v", len(hist), hist[0])
	}

	other, _ := g.GetState(ctx, "t2")
	if other.Found {
		t.Fatal("thread t2 must be isolated from t1")
	}

	threads, err := g.Threads(ctx)
	if err != nil || len(threads) != 1 || threads[0] != "t1" {
		t.Fatalf("threads: %v, %v", threads, err)
	}
}

func TestCheckpointing_FailedRunLeavesResumePoint(t *testing.T) {
	ctx := context.Background()
	saver := checkpoint.NewMemorySaver()
	g, err := graph.New[trail]("g").
		AddNode("a", visit("a")).
		AddNode("b", func(context.Context, trail) (trail, error) { return trail{}, errors.New("down") }).
		SetEntryPoint("a").AddEdge("a", "b").SetFinishPoint("b").
		Compile(graph.WithCheckpointer(saver))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := g.Invoke(ctx, "t", trail{}); err == nil {
		t.Fatal("expected error")
	}
	snap, err := g.GetState(ctx, "t")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if snap.Node != "a" || snap.Next != "b" || snap.Values.N != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestUpdateState(t *testing.T) {
	ctx := context.Background()
	g := linear(t, graph.WithCheckpointer(checkpoint.NewMemorySaver()))

	id, err := g.UpdateState(ctx, "seeded", trail{Steps: []string{"imported"}, N: 7}, graph.Start)
	if err != nil || id == "" {
		t.Fatalf("update state: %q, %v", id, err)
	}
	snap, _ := g.GetState(ctx, "seeded")
	if snap.Values.N != 7 || snap.CheckpointID != id || snap.Next != "a" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if _, err := g.UpdateState(ctx, "seeded", trail{}, "nope"); err == nil {
		t.Fatal("expected error for unknown node")
	}
}
