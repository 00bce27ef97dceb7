// Package provider wraps the hosted model: client construction and the
// Responder that turns a conversation into one assistant reply.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petasbytes/go-chatgraph/internal/telemetry"
	"github.com/petasbytes/go-chatgraph/internal/windowing"
	"github.com/petasbytes/go-chatgraph/memory"
)

const (
	DefaultSystemPrompt  = "You are a friendly AI assistant. Answer the user's questions helpfully."
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = int64(1024)
	DefaultHistoryBudget = 4000
)

// ErrEmptyReply is returned when the model answered without any text.
var ErrEmptyReply = errors.New("provider: model returned no text")

// Responder sends the conversation to the model and returns the reply text.
type Responder struct {
	Client      *anthropic.Client
	Model       anthropic.Model
	MaxTokens   int64
	Temperature float64
	System      string
	// Budget is the estimated input-token budget for history; <= 0 sends everything.
	Budget  int
	Counter windowing.TokenCounter
}

func NewResponder(client *anthropic.Client, model anthropic.Model) *Responder {
	if model == "" {
		model = DefaultModel
	}
	return &Responder{
		Client:      client,
		Model:       model,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		System:      DefaultSystemPrompt,
		Budget:      DefaultHistoryBudget,
		Counter:     windowing.HeuristicCounter{},
	}
}

// Reply sends a budgeted window of msgs and returns the concatenated text blocks.
// The newest message is always part of the window.
func (r *Responder) Reply(ctx context.Context, msgs []memory.Message) (string, error) {
	if len(msgs) == 0 {
		return "", errors.New("provider: no messages to send")
	}
	ctx, turnID := telemetry.EnsureTurnID(ctx)

	window := r.window(turnID, msgs)

	ctx, span := otel.Tracer("github.com/petasbytes/go-chatgraph/internal/provider").Start(ctx, "provider.reply",
		trace.WithAttributes(
			attribute.String("llm.model", string(r.Model)),
			attribute.Int("llm.window_messages", len(window)),
		))
	defer span.End()

	params := anthropic.MessageNewParams{
		Model:       r.Model,
		MaxTokens:   r.MaxTokens,
		Messages:    toParams(window),
		Temperature: anthropic.Float(r.Temperature),
	}
	if r.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: r.System}}
	}

	start := time.Now()
	msg, err := r.Client.Messages.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.Emit("model_call", map[string]any{
			"turn_id":     turnID,
			"model":       string(r.Model),
			"duration_ms": time.Since(start).Milliseconds(),
			"error":       "request failed",
		})
		return "", fmt.Errorf("provider: messages.new: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	telemetry.Emit("model_call", map[string]any{
		"turn_id":       turnID,
		"model":         string(r.Model),
		"duration_ms":   time.Since(start).Milliseconds(),
		"input_tokens":  msg.Usage.InputTokens,
		"output_tokens": msg.Usage.OutputTokens,
		"stop_reason":   string(msg.StopReason),
		"error":         nil,
	})
	span.SetAttributes(
		attribute.Int64("llm.input_tokens", msg.Usage.InputTokens),
		attribute.Int64("llm.output_tokens", msg.Usage.OutputTokens),
	)

	reply := b.String()
	if strings.TrimSpace(reply) == "" {
		span.SetStatus(codes.Error, ErrEmptyReply.Error())
		return "", ErrEmptyReply
	}
	return reply, nil
}

func (r *Responder) window(turnID string, msgs []memory.Message) []memory.Message {
	if r.Budget <= 0 {
		return trimLeadingAssistant(msgs)
	}
	counter := r.Counter
	if counter == nil {
		counter = windowing.HeuristicCounter{}
	}
	window, stats := windowing.PrepareSendWindow(msgs, r.Budget, counter)
	telemetry.Emit("window_prepared", map[string]any{
		"turn_id":            turnID,
		"model":              string(r.Model),
		"budget":             stats.Budget,
		"total_estimated":    stats.Total,
		"included_groups":    stats.IncludedGroups,
		"skipped_groups":     stats.SkippedGroups,
		"over_budget_newest": stats.OverBudgetNewest,
	})
	if stats.OverBudgetNewest || len(window) == 0 {
		window = msgs[len(msgs)-1:]
	}
	return trimLeadingAssistant(window)
}

// trimLeadingAssistant drops assistant messages at the head of the window;
// the Messages API expects the first turn to come from the user.
func trimLeadingAssistant(msgs []memory.Message) []memory.Message {
	for len(msgs) > 1 && msgs[0].IsAssistant() {
		msgs = msgs[1:]
	}
	return msgs
}

func toParams(msgs []memory.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m.IsAssistant() {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
			continue
		}
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
	}
	return out
}
