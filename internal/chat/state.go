// Package chat is the conversational bot: a three-node graph that labels the
// user's intent, asks the model for a reply, and appends the exchange to a
// human-readable transcript. State is checkpointed per thread.
package chat

import (
	"github.com/petasbytes/go-chatgraph/internal/intent"
	"github.com/petasbytes/go-chatgraph/memory"
)

const (
	DefaultThreadID = "default"
	FallbackReply   = "Sorry, I could not understand your question."
)

const (
	NodeAnalyzeIntent    = "analyze_intent"
	NodeGenerateResponse = "generate_response"
	NodeSaveConversation = "save_conversation"
)

// Step markers written to State.CurrentStep. The "-ing" form means the node
// ran but had nothing to do.
const (
	StepIntentAnalysis     = "intent_analysis"
	StepIntentAnalyzed     = "intent_analyzed"
	StepResponseGeneration = "response_generation"
	StepResponseGenerated  = "response_generated"
	StepSaveConversation   = "save_conversation"
	StepConversationSaved  = "conversation_saved"
)

// State is the per-thread conversation state.
type State struct {
	Messages            []memory.Message `json:"messages"`
	UserIntent          intent.Intent    `json:"user_intent"`
	CurrentStep         string           `json:"current_step"`
	ConversationHistory []string         `json:"conversation_history"`
}

// LastMessage returns the newest message, if any.
func (s State) LastMessage() (memory.Message, bool) {
	if len(s.Messages) == 0 {
		return memory.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// TranscriptEntry formats one exchange the way it is stored in ConversationHistory.
func TranscriptEntry(user, reply string) string {
	return "User: " + user + "\nAI: " + reply
}
