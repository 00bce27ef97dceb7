package chat

import (
	"context"
	"fmt"
	"slices"

	"github.com/petasbytes/go-chatgraph/internal/graph"
	"github.com/petasbytes/go-chatgraph/internal/intent"
	"github.com/petasbytes/go-chatgraph/internal/logger"
	"github.com/petasbytes/go-chatgraph/memory"
)

// Responder produces the assistant reply for a conversation.
type Responder interface {
	Reply(ctx context.Context, msgs []memory.Message) (string, error)
}

// analyzeIntent labels the last user message. Classifier errors fall back to
// the keyword rules.
func analyzeIntent(c intent.Classifier, log *logger.Logger) graph.NodeFunc[State] {
	return func(ctx context.Context, s State) (State, error) {
		last, ok := s.LastMessage()
		if !ok || !last.IsUser() {
			s.CurrentStep = StepIntentAnalysis
			return s, nil
		}
		label, err := c.Classify(ctx, last.Text)
		if err != nil {
			log.Warn("intent classifier failed, using keyword rules", "error", err)
			label = intent.Classify(last.Text)
		}
		s.UserIntent = label
		s.CurrentStep = StepIntentAnalyzed
		return s, nil
	}
}

func generateResponse(r Responder) graph.NodeFunc[State] {
	return func(ctx context.Context, s State) (State, error) {
		last, ok := s.LastMessage()
		if !ok || !last.IsUser() {
			s.CurrentStep = StepResponseGeneration
			return s, nil
		}
		reply, err := r.Reply(ctx, s.Messages)
		if err != nil {
			return s, fmt.Errorf("generate response: %w", err)
		}
		s.Messages = append(slices.Clip(s.Messages), memory.AssistantMessage(reply))
		s.CurrentStep = StepResponseGenerated
		return s, nil
	}
}

// saveConversation appends the latest user/assistant exchange to the transcript.
func saveConversation(_ context.Context, s State) (State, error) {
	if len(s.Messages) < 2 {
		s.CurrentStep = StepSaveConversation
		return s, nil
	}
	var user, reply string
	var haveUser, haveReply bool
	for i := len(s.Messages) - 1; i >= 0 && !(haveUser && haveReply); i-- {
		m := s.Messages[i]
		switch {
		case m.IsAssistant() && !haveReply:
			reply, haveReply = m.Text, true
		case m.IsUser() && !haveUser:
			user, haveUser = m.Text, true
		}
	}
	if !haveUser || !haveReply {
		s.CurrentStep = StepSaveConversation
		return s, nil
	}
	s.ConversationHistory = append(slices.Clip(s.ConversationHistory), TranscriptEntry(user, reply))
	s.CurrentStep = StepConversationSaved
	return s, nil
}
