package logger

import (
	"context"
	"testing"
)

func TestGetReturnsCurrentLogger(t *testing.T) {
	Init("production")
	if Get() == nil {
		t.Fatal("Get() returned nil")
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != defaultLogger {
		t.Error("FromContext(background) should fall back to defaultLogger")
	}
}

func TestWithContextRoundTrip(t *testing.T) {
	l := Get().With("component", "test")
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("FromContext should return the logger stashed by WithContext")
	}
}

func TestAdapterImplementsHostapiLogger(t *testing.T) {
	a := NewAdapter(nil)
	// Should not panic for any level.
	a.Info("info", "k", "v")
	a.Warn("warn", "k", "v")
	a.Error("error", "k", "v")
	a.Debug("debug", "k", "v")
}
