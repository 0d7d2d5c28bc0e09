package logging

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	if _, err := New("debug", "json"); err != nil {
		t.Fatalf("json logger: %v", err)
	}
	if _, err := New("info", "console"); err != nil {
		t.Fatalf("console logger: %v", err)
	}
	if _, err := New("loud", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	LogRequest(l, "api", "GET", "http://x/profile/")
	LogResponse(l, "api", 200, 15*time.Millisecond)
	LogError(l, "api", "refresh", errors.New("boom"))

	if logs.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", logs.Len())
	}
	last := logs.All()[2]
	if last.Level != zapcore.WarnLevel {
		t.Errorf("expected warn for errors, got %v", last.Level)
	}
	if last.ContextMap()["op"] != "refresh" {
		t.Errorf("expected op field, got %v", last.ContextMap())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) must not be nil")
	}
}
