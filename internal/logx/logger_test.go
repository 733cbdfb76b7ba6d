package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %q, expected %q", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"nonsense", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestLoggerRespectsMinimumLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf, Prefix: "test"})

	l.Info("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected info suppressed below warn level, got %q", buf.String())
	}

	l.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
}

func TestWithFieldAddsFieldWithoutMutatingParent(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelInfo, Output: &buf, Prefix: "test"})
	child := base.WithComponent("registry").WithField("session_id", "sess-1")

	child.Info("hello")
	line := buf.String()
	if !strings.Contains(line, `"component":"registry"`) || !strings.Contains(line, `"session_id":"sess-1"`) {
		t.Fatalf("expected both fields rendered, got %q", line)
	}

	buf.Reset()
	base.Info("bare")
	if strings.Contains(buf.String(), "session_id") {
		t.Fatalf("expected base logger untouched by WithField, got %q", buf.String())
	}
}

func TestDisabledLoggerWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	Null.SetOutput(&buf)
	Null.Info("swallowed")
	if buf.Len() != 0 {
		t.Fatalf("expected Null logger to discard output, got %q", buf.String())
	}
}

func TestDebugLevelPrettyPrintsFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf, Prefix: "test"}).WithField("port", 5679)
	l.Debug("listening")
	if !strings.Contains(buf.String(), "\n  ") && !strings.Contains(buf.String(), `"port": 5679`) {
		t.Fatalf("expected pretty-printed field block at debug level, got %q", buf.String())
	}
}
