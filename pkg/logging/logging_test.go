package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestInitAndLevels(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	Debug("Test", "debug message")
	Info("Test", "info message")
	Warn("Test", "warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Errorf("debug message logged at warn level: %q", out)
	}
	if strings.Contains(out, "info message") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("warn message missing: %q", out)
	}
	if !strings.Contains(out, "subsystem=Test") {
		t.Errorf("subsystem attribute missing: %q", out)
	}
}

func TestErrorIncludesErrAttr(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("Store", errTest, "operation failed")

	out := buf.String()
	if !strings.Contains(out, "boom") {
		t.Errorf("error attribute missing: %q", out)
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }

var errTest = testErr("boom")

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncateSessionID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"short", "short"},
		{"12345678", "12345678"},
		{"123456789", "12345678..."},
		{"a-long-opaque-session-identifier", "a-long-o..."},
	}
	for _, tt := range tests {
		if got := TruncateSessionID(tt.input); got != tt.expected {
			t.Errorf("TruncateSessionID(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
