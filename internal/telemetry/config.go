package telemetry

import (
	"os"
	"strings"
)

const defaultArtifactsDir = ".agent"

// ObserveEnabled reports whether JSONL emission is on (CHATGRAPH_OBSERVE_JSON=1).
// Read on every call so tests and long-running servers can toggle it.
func ObserveEnabled() bool {
	return os.Getenv("CHATGRAPH_OBSERVE_JSON") == "1"
}

// ArtifactsDir is where events.jsonl is written; CHATGRAPH_ARTIFACTS_DIR overrides the default.
func ArtifactsDir() string {
	if v := strings.TrimSpace(os.Getenv("CHATGRAPH_ARTIFACTS_DIR")); v != "" {
		return v
	}
	return defaultArtifactsDir
}
