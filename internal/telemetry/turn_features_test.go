package telemetry_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petasbytes/go-chatgraph/internal/telemetry"
)

func TestEmitTurnFeatures_HappyPath(t *testing.T) {
	base := t.TempDir()
	t.Setenv("CHATGRAPH_ARTIFACTS_DIR", base)
	t.Setenv("CHATGRAPH_OBSERVE_JSON", "1")

	ctx := telemetry.WithTurnID(context.Background(), "turn-xyz")
	telemetry.EmitTurnFeatures(ctx, "default", "greeting", "héllö 世界", "a\nb\n")

	m, err := readLastJSONL(t, base)
	if err != nil {
		t.Fatalf("read last jsonl: %v", err)
	}
	if m["event"] != "turn_features" || m["turn_id"] != "turn-xyz" || m["thread_id"] != "default" || m["intent"] != "greeting" {
		t.Fatalf("unexpected event: %#v", m)
	}
	u, ok := m["user"].(map[string]any)
	if !ok {
		t.Fatalf("user field missing or wrong type: %T", m["user"])
	}
	// numbers decode as float64
	if u["bytes"] != float64(14) || u["runes"] != float64(8) || u["words"] != float64(2) || u["lines"] != float64(1) {
		t.Fatalf("user features mismatch: %#v", u)
	}
	r := m["reply"].(map[string]any)
	if r["bytes"] != float64(4) || r["lines"] != float64(3) {
		t.Fatalf("reply features mismatch: %#v", r)
	}
}

func TestEmitTurnFeatures_NoRawTextLeakage(t *testing.T) {
	base := t.TempDir()
	t.Setenv("CHATGRAPH_ARTIFACTS_DIR", base)
	t.Setenv("CHATGRAPH_OBSERVE_JSON", "1")

	user := "Secret Plans\nBaz"
	telemetry.EmitTurnFeatures(context.Background(), "t", "general", user, "Classified reply")

	b, err := os.ReadFile(filepath.Join(base, "events.jsonl"))
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if strings.Contains(string(b), "Secret") || strings.Contains(string(b), "Classified") {
		t.Fatalf("raw text found in events.jsonl: %s", string(b))
	}
}

func TestEmitTurnFeatures_ObserveOff_NoEvent(t *testing.T) {
	base := t.TempDir()
	t.Setenv("CHATGRAPH_ARTIFACTS_DIR", base)
	t.Setenv("CHATGRAPH_OBSERVE_JSON", "0")

	telemetry.EmitTurnFeatures(context.Background(), "t", "general", "x", "y")

	if _, err := os.Stat(filepath.Join(base, "events.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("expected no events.jsonl when observe=0, got err=%v", err)
	}
}
