package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/petasbytes/go-chatgraph/internal/checkpoint"
	"github.com/petasbytes/go-chatgraph/internal/events"
	"github.com/petasbytes/go-chatgraph/internal/graph"
	"github.com/petasbytes/go-chatgraph/internal/intent"
	"github.com/petasbytes/go-chatgraph/internal/logger"
	"github.com/petasbytes/go-chatgraph/internal/telemetry"
	"github.com/petasbytes/go-chatgraph/memory"
)

const graphID = "chatbot"

// Bot runs conversation turns against per-thread checkpointed state.
type Bot struct {
	graph      *graph.Compiled[State]
	classifier intent.Classifier
	responder  Responder
	publisher  events.Publisher
	log        *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Bot)

// WithClassifier replaces the keyword classifier.
func WithClassifier(c intent.Classifier) Option {
	return func(b *Bot) {
		if c != nil {
			b.classifier = c
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(b *Bot) {
		if p != nil {
			b.publisher = p
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.log = l
		}
	}
}

// New wires the three-node graph over saver.
func New(responder Responder, saver checkpoint.Saver, opts ...Option) (*Bot, error) {
	if responder == nil {
		return nil, errors.New("chat: responder is required")
	}
	if saver == nil {
		return nil, errors.New("chat: checkpoint saver is required")
	}
	b := &Bot{
		classifier: intent.Keyword{},
		responder:  responder,
		publisher:  events.Nop{},
		log:        logger.Nop(),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(b)
	}

	g, err := graph.New[State](graphID).
		AddNode(NodeAnalyzeIntent, analyzeIntent(b.classifier, b.log)).
		AddNode(NodeGenerateResponse, generateResponse(b.responder)).
		AddNode(NodeSaveConversation, saveConversation).
		SetEntryPoint(NodeAnalyzeIntent).
		AddEdge(NodeAnalyzeIntent, NodeGenerateResponse).
		AddEdge(NodeGenerateResponse, NodeSaveConversation).
		SetFinishPoint(NodeSaveConversation).
		Compile(graph.WithCheckpointer(saver), graph.WithObserver(b.observe))
	if err != nil {
		return nil, fmt.Errorf("chat: build graph: %w", err)
	}
	b.graph = g
	return b, nil
}

func (b *Bot) observe(e graph.Event) {
	switch e.Type {
	case graph.EventNodeEnd:
		b.log.Debug("node finished", "thread_id", e.ThreadID, "node", e.NodeID, "step", e.Step, "duration", e.Duration)
	case graph.EventError:
		b.log.Warn("node failed", "thread_id", e.ThreadID, "node", e.NodeID, "step", e.Step, "error", e.Err)
	}
}

func (b *Bot) lock(threadID string) func() {
	b.mu.Lock()
	m, ok := b.locks[threadID]
	if !ok {
		m = &sync.Mutex{}
		b.locks[threadID] = m
	}
	b.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func threadOrDefault(threadID string) string {
	if threadID == "" {
		return DefaultThreadID
	}
	return threadID
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	ThreadID string
	Reply    string
	Intent   intent.Intent
}

// Chat runs one turn: the input is appended to the thread's messages, the
// graph runs, and the newest assistant message is returned. When the run ends
// without an assistant message the fallback reply is returned.
func (b *Bot) Chat(ctx context.Context, input, threadID string) (string, error) {
	res, err := b.Turn(ctx, input, threadID)
	return res.Reply, err
}

// Turn is Chat with the intent of the input reported alongside the reply.
func (b *Bot) Turn(ctx context.Context, input, threadID string) (TurnResult, error) {
	threadID = threadOrDefault(threadID)
	unlock := b.lock(threadID)
	defer unlock()

	ctx, turnID := telemetry.EnsureTurnID(ctx)
	start := time.Now()

	snap, err := b.graph.GetState(ctx, threadID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("chat: load state: %w", err)
	}
	state := snap.Values
	state.Messages = append(slices.Clip(state.Messages), memory.UserMessage(input))

	out, err := b.graph.Invoke(ctx, threadID, state)
	if err != nil {
		telemetry.Emit("turn_failed", map[string]any{
			"turn_id":     turnID,
			"thread_id":   threadID,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return TurnResult{}, fmt.Errorf("chat: %w", err)
	}

	reply := FallbackReply
	if last, ok := out.LastMessage(); ok && last.IsAssistant() {
		reply = last.Text
	}

	telemetry.Emit("turn_completed", map[string]any{
		"turn_id":      turnID,
		"thread_id":    threadID,
		"intent":       string(out.UserIntent),
		"current_step": out.CurrentStep,
		"messages":     len(out.Messages),
		"duration_ms":  time.Since(start).Milliseconds(),
	})
	telemetry.EmitTurnFeatures(ctx, threadID, string(out.UserIntent), input, reply)

	evt := events.TurnEvent{
		ThreadID:  threadID,
		TurnID:    turnID,
		Intent:    string(out.UserIntent),
		UserText:  input,
		ReplyText: reply,
		Timestamp: time.Now().UTC(),
	}
	if err := b.publisher.PublishTurn(ctx, evt); err != nil {
		b.log.Warn("publish turn event failed", "thread_id", threadID, "error", err)
	}

	b.log.Info("turn completed", "thread_id", threadID, "turn_id", turnID, "intent", out.UserIntent)
	return TurnResult{ThreadID: threadID, Reply: reply, Intent: out.UserIntent}, nil
}

// Result is delivered by ChatAsync.
type Result struct {
	Reply string
	Err   error
}

// ChatAsync runs Chat on its own goroutine. The returned channel yields
// exactly one Result and is then closed.
func (b *Bot) ChatAsync(ctx context.Context, input, threadID string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		reply, err := b.Chat(ctx, input, threadID)
		ch <- Result{Reply: reply, Err: err}
	}()
	return ch
}

// History returns the transcript entries of a thread; unknown threads yield nil.
func (b *Bot) History(ctx context.Context, threadID string) ([]string, error) {
	st, _, err := b.State(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return st.ConversationHistory, nil
}

// State returns the latest state of a thread and whether any checkpoint exists.
func (b *Bot) State(ctx context.Context, threadID string) (State, bool, error) {
	snap, err := b.graph.GetState(ctx, threadOrDefault(threadID))
	if err != nil {
		return State{}, false, fmt.Errorf("chat: load state: %w", err)
	}
	return snap.Values, snap.Found, nil
}

// Checkpoints lists every checkpoint of a thread, oldest first.
func (b *Bot) Checkpoints(ctx context.Context, threadID string) ([]graph.Snapshot[State], error) {
	snaps, err := b.graph.History(ctx, threadOrDefault(threadID))
	if err != nil {
		return nil, fmt.Errorf("chat: list checkpoints: %w", err)
	}
	return snaps, nil
}

func (b *Bot) Threads(ctx context.Context) ([]string, error) {
	ids, err := b.graph.Threads(ctx)
	if err != nil {
		return nil, fmt.Errorf("chat: list threads: %w", err)
	}
	return ids, nil
}

// Import seeds a thread with msgs, rebuilding the transcript from adjacent
// user/assistant pairs. It fails if the thread already has state.
func (b *Bot) Import(ctx context.Context, threadID string, msgs []memory.Message) error {
	threadID = threadOrDefault(threadID)
	unlock := b.lock(threadID)
	defer unlock()

	snap, err := b.graph.GetState(ctx, threadID)
	if err != nil {
		return fmt.Errorf("chat: load state: %w", err)
	}
	if snap.Found {
		return fmt.Errorf("chat: thread %q already has state", threadID)
	}

	st := State{Messages: slices.Clone(msgs)}
	for i := 0; i+1 < len(msgs); i++ {
		if msgs[i].IsUser() && msgs[i+1].IsAssistant() {
			st.ConversationHistory = append(st.ConversationHistory, TranscriptEntry(msgs[i].Text, msgs[i+1].Text))
			i++
		}
	}
	if _, err := b.graph.UpdateState(ctx, threadID, st, graph.Start); err != nil {
		return fmt.Errorf("chat: import: %w", err)
	}
	b.log.Info("thread imported", "thread_id", threadID, "messages", len(msgs))
	return nil
}
