// Package metrics derives local, content-free text features for a chat turn.
package metrics

import (
	"strings"
	"unicode/utf8"
)

// Features holds basic local text features derived from an input string.
type Features struct {
	Bytes int `json:"bytes"`
	Runes int `json:"runes"`
	Words int `json:"words"`
	Lines int `json:"lines"`
}

// Turn pairs the features of one user message and the reply it got.
type Turn struct {
	User  Features `json:"user"`
	Reply Features `json:"reply"`
}

// CountFeatures computes and returns byte, rune, word, and line counts for the input string.
func CountFeatures(s string) Features {
	return Features{
		Bytes: len(s),
		Runes: utf8.RuneCountInString(s),
		Words: len(strings.Fields(s)),
		Lines: countLines(s),
	}
}

func CountTurn(user, reply string) Turn {
	return Turn{User: CountFeatures(user), Reply: CountFeatures(reply)}
}

// Map renders features as a JSON-friendly map for event payloads.
func (f Features) Map() map[string]any {
	return map[string]any{
		"bytes": f.Bytes,
		"runes": f.Runes,
		"words": f.Words,
		"lines": f.Lines,
	}
}

// countLines returns 0 for empty strings; otherwise 1 plus the number of '\n' runes.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return 1 + strings.Count(s, "\n")
}
