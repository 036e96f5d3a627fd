// logging_test.go tests level parsing and source shortening.
package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" INFO ", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(NewTextLogger(&buf, "warn"), "scheduler")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("expected info message to be filtered")
	}
	if !strings.Contains(out, "component=scheduler") {
		t.Errorf("expected component attribute, got %q", out)
	}
	if !strings.Contains(out, "source=internal/logging/logging_test.go") {
		t.Errorf("expected shortened source, got %q", out)
	}
}

func TestTrimToModule(t *testing.T) {
	if got := trimToModule("/src/recurd/cmd/recurd/main.go", "main.go"); got != "cmd/recurd/main.go" {
		t.Errorf("unexpected %s", got)
	}
	if got := trimToModule("/tmp/x.go", "x.go"); got != "x.go" {
		t.Errorf("unexpected %s", got)
	}
}
