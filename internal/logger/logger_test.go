package logger_test

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/petasbytes/go-chatgraph/internal/logger"
)

func newObserved() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.NewFromZap(zap.New(core)), logs
}

func TestLogger_RedactsCredentialKeys(t *testing.T) {
	log, logs := newObserved()
	log.Info("starting", "api_key", "sk-123", "nats_token", "abc", "model", "claude")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["api_key"] != "[REDACTED]" || fields["nats_token"] != "[REDACTED]" {
		t.Fatalf("credentials not redacted: %#v", fields)
	}
	if fields["model"] != "claude" {
		t.Fatalf("unrelated field changed: %#v", fields)
	}
}

func TestLogger_WithCarriesFields(t *testing.T) {
	log, logs := newObserved()
	log.With("thread_id", "t1").Warn("slow turn", "ms", 1200)

	e := logs.All()[0]
	if e.Level != zapcore.WarnLevel {
		t.Fatalf("want warn, got %v", e.Level)
	}
	fields := e.ContextMap()
	if fields["thread_id"] != "t1" || fields["ms"] != int64(1200) {
		t.Fatalf("unexpected fields: %#v", fields)
	}
}

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		l, err := logger.New(mode)
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		l.Debug("ok")
	}
}

func TestNewWithLevel(t *testing.T) {
	l, err := logger.NewWithLevel("dev", "warn")
	if err != nil {
		t.Fatalf("NewWithLevel: %v", err)
	}
	if l.SugaredLogger.Desugar().Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be disabled at warn level")
	}
	if _, err := logger.NewWithLevel("prod", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
