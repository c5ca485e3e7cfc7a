package logging

import "testing"

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "", "VERBOSE", " Warn "} {
		logger := New(level)
		if logger == nil || logger.Logger == nil {
			t.Fatalf("New(%q) returned nil logger", level)
		}
	}
}

func TestWithOnNilLogger(t *testing.T) {
	var logger *Logger
	child := logger.With("component", "test")
	if child == nil || child.Logger == nil {
		t.Fatal("With on nil logger should fall back to default")
	}
}
