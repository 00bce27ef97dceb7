package windowing

import (
	"fmt"
	"os"

	"github.com/petasbytes/go-chatgraph/memory"
)

// GroupKind denotes the atomic unit type when preparing a send window.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	GroupPair
)

// Group describes a contiguous span of messages [Start, End) in the original slice.
type Group struct {
	Kind  GroupKind
	Start int // inclusive index into msgs
	End   int // exclusive index into msgs
}

// GroupExchanges groups messages into atomic units so that a user message and
// the assistant reply that answered it are kept or dropped together.
// - A pair is exactly two adjacent messages: user then assistant.
// - Everything else (a trailing user message, back-to-back users, an orphan
//   assistant reply) is a singleton.
func GroupExchanges(msgs []memory.Message) []Group {
	groups := make([]Group, 0, len(msgs))
	for i := 0; i < len(msgs); {
		if msgs[i].IsUser() && i+1 < len(msgs) && msgs[i+1].IsAssistant() {
			groups = append(groups, Group{Kind: GroupPair, Start: i, End: i + 2})
			i += 2
			continue
		}
		if msgs[i].IsAssistant() {
			vlogf("singleton: reason=orphan_assistant idx=%d", i)
		}
		groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
		i++
	}
	return groups
}

// minimal verbose logging when CHATGRAPH_VERBOSE_WINDOW_LOGS=1
var verbose = os.Getenv("CHATGRAPH_VERBOSE_WINDOW_LOGS") == "1"

func vlogf(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[windowing] "+format+"\n", args...)
	}
}
