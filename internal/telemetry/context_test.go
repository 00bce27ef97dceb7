package telemetry_test

import (
	"context"
	"strings"
	"testing"

	"github.com/petasbytes/go-chatgraph/internal/telemetry"
)

func TestTurnID_RoundTrip(t *testing.T) {
	ctx := telemetry.WithTurnID(context.Background(), "turn-123")
	got, ok := telemetry.TurnIDFromContext(ctx)
	if !ok || got != "turn-123" {
		t.Fatalf("want turn-123,true; got %q,%v", got, ok)
	}
}

func TestTurnID_EmptyIDRejectedOnRead(t *testing.T) {
	ctx := telemetry.WithTurnID(context.Background(), "")
	got, ok := telemetry.TurnIDFromContext(ctx)
	if ok || got != "" {
		t.Fatalf("want empty,false; got %q,%v", got, ok)
	}
}

func TestTurnID_LastWriteWins(t *testing.T) {
	ctx1 := telemetry.WithTurnID(context.Background(), "t1")
	ctx2 := telemetry.WithTurnID(ctx1, "t2")

	got, ok := telemetry.TurnIDFromContext(ctx2)
	if !ok || got != "t2" {
		t.Fatalf("want t2,true; got %q,%v", got, ok)
	}
}

func TestEnsureTurnID_KeepsExisting(t *testing.T) {
	ctx := telemetry.WithTurnID(context.Background(), "t1")
	_, id := telemetry.EnsureTurnID(ctx)
	if id != "t1" {
		t.Fatalf("want t1, got %q", id)
	}
}

func TestEnsureTurnID_GeneratesFresh(t *testing.T) {
	ctx, id := telemetry.EnsureTurnID(context.Background())
	if !strings.HasPrefix(id, "turn-") {
		t.Fatalf("unexpected id %q", id)
	}
	got, ok := telemetry.TurnIDFromContext(ctx)
	if !ok || got != id {
		t.Fatalf("context does not carry generated id: %q,%v", got, ok)
	}
	_, other := telemetry.EnsureTurnID(context.Background())
	if other == id {
		t.Fatal("expected distinct ids")
	}
}
