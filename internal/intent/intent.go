// Package intent assigns a coarse label to the latest user message.
package intent

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

type Intent string

const (
	Greeting Intent = "greeting"
	Farewell Intent = "farewell"
	Question Intent = "question"
	General  Intent = "general"
)

// All lists the labels in rule priority order.
var All = []Intent{Greeting, Farewell, Question, General}

var (
	greetingKeywords = []string{"你好", "hello"}
	greetingWords    = []string{"hi"}
	farewellKeywords = []string{"再见", "bye"}
	questionMarks    = []string{"?", "？"}
)

// Classifier labels a message.
type Classifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

// Keyword is the rule-based classifier. It never fails.
type Keyword struct{}

func (Keyword) Classify(_ context.Context, text string) (Intent, error) {
	return Classify(text), nil
}

// Classify applies the keyword rules, first match wins:
// greeting, farewell, question, then general.
// "hi" only counts as a standalone word so that "this" or "which" stay untouched.
func Classify(text string) Intent {
	s := strings.ToLower(text)
	switch {
	case containsAny(s, greetingKeywords) || hasWord(s, greetingWords):
		return Greeting
	case containsAny(s, farewellKeywords):
		return Farewell
	case containsAny(s, questionMarks):
		return Question
	default:
		return General
	}
}

// Parse validates a label produced outside of Classify.
func Parse(s string) (Intent, error) {
	v := Intent(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown intent %q", s)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasWord(s string, words []string) bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}
