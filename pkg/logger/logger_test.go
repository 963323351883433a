package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.level); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.level, got, tt.expected)
		}
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewText("info", &buf)
	logger.Info("test message")
	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Expected log output to contain 'test message', got: %s", buf.String())
	}
}

func TestNewWithFormat(t *testing.T) {
	var buf bytes.Buffer
	NewWithFormat("json", "info", &buf).Info("hello")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}

	buf.Reset()
	NewWithFormat("text", "info", &buf).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		logFunc  func(string, ...any)
		logMsg   string
		expected bool
	}{
		{"Debug when debug level", "debug", Debug, "debug message", true},
		{"Debug when info level", "info", Debug, "debug message", false},
		{"Info when info level", "info", Info, "info message", true},
		{"Warn when error level", "error", Warn, "warn message", false},
		{"Error when info level", "info", Error, "error message", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetDefault(New(tt.logLevel, &buf))

			tt.logFunc(tt.logMsg)
			if got := strings.Contains(buf.String(), tt.logMsg); got != tt.expected {
				t.Errorf("Expected message logged=%v, got output: %s", tt.expected, buf.String())
			}
		})
	}
}

func TestForRun(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(New("info", &buf))

	ForRun("run-1").Info("started", "pairs", 4)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log output: %v", err)
	}
	if entry["run_id"] != "run-1" {
		t.Errorf("expected run_id attribute, got %v", entry["run_id"])
	}
	if entry["pairs"] != float64(4) {
		t.Errorf("expected pairs attribute, got %v", entry["pairs"])
	}
}
