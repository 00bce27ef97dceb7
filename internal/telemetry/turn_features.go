package telemetry

import (
	"context"

	"github.com/petasbytes/go-chatgraph/internal/metrics"
)

// EmitTurnFeatures records content-free size features of a completed turn.
func EmitTurnFeatures(ctx context.Context, threadID, intent, user, reply string) {
	if !ObserveEnabled() {
		return
	}
	turnID, _ := TurnIDFromContext(ctx)
	f := metrics.CountTurn(user, reply)
	Emit("turn_features", map[string]any{
		"turn_id":          turnID,
		"thread_id":        threadID,
		"intent":           intent,
		"features_version": "1",
		"user":             f.User.Map(),
		"reply":            f.Reply.Map(),
	})
}
