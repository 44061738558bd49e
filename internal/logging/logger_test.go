package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLogLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file and parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", FileName)

		logger, err := NewLogger(path, LevelDebug, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("log file was not created at %s: %v", path, err)
		}
	})

	t.Run("writes to stderr when path is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.writer != nil {
			t.Error("expected no file writer when path is empty")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close on stderr logger: %v", err)
		}
	})
}

func TestLogger_LevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	logger, err := NewLogger(path, LevelWarn, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	entries := readLogLines(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines at WARN, got %d", len(entries))
	}
	if entries[0]["msg"] != "warn message" || entries[1]["msg"] != "error message" {
		t.Errorf("unexpected messages: %v", entries)
	}
}

func TestLogger_PersistentAttributes(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	logger, err := NewLogger(path, LevelDebug, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	child := logger.WithAgent("code").WithTask("alpha").WithStage("build").WithSession("1-2-0")
	child.Info("stage started", "model", "codex")
	logger.Info("root message")
	logger.Close()

	entries := readLogLines(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(entries))
	}

	want := map[string]string{
		"agent":      "code",
		"task":       "alpha",
		"stage":      "build",
		"session_id": "1-2-0",
		"model":      "codex",
	}
	for key, value := range want {
		if entries[0][key] != value {
			t.Errorf("entry[%q] = %v, want %q", key, entries[0][key], value)
		}
	}
	if _, ok := entries[1]["task"]; ok {
		t.Error("parent logger should not inherit child attributes")
	}
}

func TestLogger_With(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	logger, err := NewLogger(path, LevelDebug, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.With("pid", 42, 7, "dropped").Info("claimed")
	if logger.With() != logger {
		t.Error("With() without args should return the same logger")
	}
	logger.Close()

	entries := readLogLines(t, path)
	if entries[0]["pid"] != float64(42) {
		t.Errorf("pid = %v, want 42", entries[0]["pid"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Info("discarded")
	logger.WithTask("alpha").Error("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var l *Logger
	child := l.WithTask("auth").WithStage("build").With("k", "v")
	if child != nil {
		t.Errorf("child of nil logger = %v, want nil", child)
	}
	child.Info("ignored")
	if err := child.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
