package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petasbytes/go-chatgraph/internal/checkpoint"
)

const tracerName = "github.com/petasbytes/go-chatgraph/internal/graph"

var (
	ErrRecursionLimit = errors.New("graph: recursion limit reached")
	ErrNoCheckpointer = errors.New("graph: no checkpointer configured")
)

// Compiled is a validated graph. It is immutable and safe for concurrent use;
// callers serialize runs on the same thread if they need ordering.
type Compiled[S any] struct {
	id    string
	nodes map[string]*Node[S]
	adj   map[string]*Edge[S]
	entry string
	opts  options
}

func (g *Compiled[S]) ID() string { return g.id }

// Invoke runs the graph from the entry node with input as the initial state and
// returns the final state. The input is checkpointed under the Start node, then
// every executed node is checkpointed.
func (g *Compiled[S]) Invoke(ctx context.Context, threadID string, input S) (S, error) {
	runID := "run_" + uuid.NewString()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "graph.invoke", trace.WithAttributes(
		attribute.String("graph.id", g.id),
		attribute.String("graph.thread_id", threadID),
		attribute.String("graph.run_id", runID),
	))
	defer span.End()

	step, err := g.lastStep(ctx, threadID)
	if err != nil {
		return input, err
	}

	state := input
	step++
	if err := g.checkpoint(ctx, threadID, runID, step, Start, state); err != nil {
		return state, err
	}

	current := g.entry
	for executed := 0; current != End && current != ""; executed++ {
		if executed >= g.opts.recursionLimit {
			err := fmt.Errorf("%w: %d steps without reaching %s", ErrRecursionLimit, executed, End)
			span.SetStatus(codes.Error, err.Error())
			return state, err
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}
		node, ok := g.nodes[current]
		if !ok {
			return state, fmt.Errorf("graph %q: node %q not found", g.id, current)
		}

		step++
		next, err := g.runNode(ctx, tracer, node, threadID, runID, step, state)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return state, err
		}
		state = next

		if err := g.checkpoint(ctx, threadID, runID, step, node.ID, state); err != nil {
			return state, err
		}
		current = g.next(node.ID, state)
	}

	g.emit(Event{Type: EventCompleted, ThreadID: threadID, RunID: runID, Step: step})
	return state, nil
}

func (g *Compiled[S]) runNode(ctx context.Context, tracer trace.Tracer, node *Node[S], threadID, runID string, step int, state S) (S, error) {
	ctx, span := tracer.Start(ctx, "graph.node", trace.WithAttributes(
		attribute.String("graph.node", node.ID),
		attribute.Int("graph.step", step),
	))
	defer span.End()

	g.emit(Event{Type: EventNodeStart, ThreadID: threadID, RunID: runID, NodeID: node.ID, Step: step})
	start := time.Now()
	out, err := node.Fn(ctx, state)
	if err != nil {
		err = fmt.Errorf("node %q: %w", node.ID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.emit(Event{Type: EventError, ThreadID: threadID, RunID: runID, NodeID: node.ID, Step: step, Duration: time.Since(start), Err: err})
		return state, err
	}
	g.emit(Event{Type: EventNodeEnd, ThreadID: threadID, RunID: runID, NodeID: node.ID, Step: step, Duration: time.Since(start)})
	return out, nil
}

func (g *Compiled[S]) next(from string, state S) string {
	e := g.adj[from]
	if e == nil {
		return End
	}
	if e.Condition != nil {
		return e.Condition(state)
	}
	return e.To
}

func (g *Compiled[S]) emit(evt Event) {
	if g.opts.observer == nil {
		return
	}
	evt.GraphID = g.id
	evt.Time = time.Now()
	g.opts.observer(evt)
}

func (g *Compiled[S]) lastStep(ctx context.Context, threadID string) (int, error) {
	if g.opts.saver == nil {
		return 0, nil
	}
	cp, err := g.opts.saver.Latest(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("graph %q: load checkpoint: %w", g.id, err)
	}
	return cp.Step, nil
}

func (g *Compiled[S]) checkpoint(ctx context.Context, threadID, runID string, step int, nodeID string, state S) error {
	if g.opts.saver == nil {
		return nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("graph %q: encode state: %w", g.id, err)
	}
	cp := &checkpoint.Checkpoint{
		ID:        fmt.Sprintf("cp_%s_%d", runID, step),
		ThreadID:  threadID,
		RunID:     runID,
		Step:      step,
		Node:      nodeID,
		State:     raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.opts.saver.Put(ctx, cp); err != nil {
		return fmt.Errorf("graph %q: checkpoint: %w", g.id, err)
	}
	return nil
}

// GetState returns the latest checkpointed state of a thread.
func (g *Compiled[S]) GetState(ctx context.Context, threadID string) (Snapshot[S], error) {
	var snap Snapshot[S]
	if g.opts.saver == nil {
		return snap, ErrNoCheckpointer
	}
	cp, err := g.opts.saver.Latest(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("graph %q: load checkpoint: %w", g.id, err)
	}
	return g.decode(cp)
}

func (g *Compiled[S]) decode(cp *checkpoint.Checkpoint) (Snapshot[S], error) {
	var snap Snapshot[S]
	if err := json.Unmarshal(cp.State, &snap.Values); err != nil {
		return snap, fmt.Errorf("graph %q: decode checkpoint %s: %w", g.id, cp.ID, err)
	}
	snap.Found = true
	snap.CheckpointID = cp.ID
	snap.RunID = cp.RunID
	snap.Step = cp.Step
	snap.Node = cp.Node
	snap.CreatedAt = cp.CreatedAt
	if next := g.next(cp.Node, snap.Values); next != End {
		snap.Next = next
	}
	return snap, nil
}

// UpdateState writes state as if node asNode had just produced it, without running anything.
// asNode may be Start to seed a thread.
func (g *Compiled[S]) UpdateState(ctx context.Context, threadID string, state S, asNode string) (string, error) {
	if g.opts.saver == nil {
		return "", ErrNoCheckpointer
	}
	if asNode != Start && g.nodes[asNode] == nil {
		return "", fmt.Errorf("graph %q: node %q not found", g.id, asNode)
	}
	step, err := g.lastStep(ctx, threadID)
	if err != nil {
		return "", err
	}
	runID := "update_" + uuid.NewString()
	step++
	if err := g.checkpoint(ctx, threadID, runID, step, asNode, state); err != nil {
		return "", err
	}
	return fmt.Sprintf("cp_%s_%d", runID, step), nil
}

// History returns every decoded checkpoint of a thread, oldest first.
func (g *Compiled[S]) History(ctx context.Context, threadID string) ([]Snapshot[S], error) {
	if g.opts.saver == nil {
		return nil, ErrNoCheckpointer
	}
	cps, err := g.opts.saver.List(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("graph %q: list checkpoints: %w", g.id, err)
	}
	out := make([]Snapshot[S], 0, len(cps))
	for _, cp := range cps {
		snap, err := g.decode(cp)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Threads lists thread ids known to the checkpointer.
func (g *Compiled[S]) Threads(ctx context.Context) ([]string, error) {
	if g.opts.saver == nil {
		return nil, ErrNoCheckpointer
	}
	return g.opts.saver.Threads(ctx)
}
