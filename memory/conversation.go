package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one exchanged chat message: who said it and the text.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text,omitempty"`
}

func UserMessage(text string) Message      { return Message{Role: RoleUser, Text: text} }
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Text: text} }

func (m Message) IsUser() bool      { return m.Role == RoleUser }
func (m Message) IsAssistant() bool { return m.Role == RoleAssistant }

// LoadConversation reads a transcript written by SaveConversation.
// A missing file yields nil, nil.
func LoadConversation(path string) ([]Message, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(b, &msgs); err != nil {
		return nil, err
	}
	for i, m := range msgs {
		if !m.IsUser() && !m.IsAssistant() {
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return msgs, nil
}

func SaveConversation(path string, msgs []Message) error {
	if msgs == nil {
		msgs = []Message{}
	}
	b, err := json.MarshalIndent(msgs, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
