package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", "json", &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		if buf.Len() == 0 {
			t.Error("Info message should be logged at Info level")
		}

		var entry map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("Failed to unmarshal log entry: %v", err)
		}

		if entry["level"] != "info" {
			t.Errorf("Expected level info, got %v", entry["level"])
		}
		if entry["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["msg"])
		}
	})

	t.Run("warn logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		if buf.Len() == 0 {
			t.Error("Warn message should be logged at Info level")
		}
	})

	t.Run("error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Error("error message")
		if buf.Len() == 0 {
			t.Error("Error message should be logged at Info level")
		}
	})
}

func TestLogger_Formats(t *testing.T) {
	t.Run("json format emits json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger("info", "json", &buf)
		logger.Info("hello")

		var entry map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("Expected valid JSON output: %v", err)
		}
	})

	t.Run("text format is not json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger("info", "text", &buf)
		logger.Info("hello")

		if !strings.Contains(buf.String(), "hello") {
			t.Error("Expected message in text output")
		}
		var entry map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &entry); err == nil {
			t.Error("Text format should not produce JSON")
		}
	})

	t.Run("unknown format falls back to text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger("info", "yaml", &buf)
		logger.Info("hello")

		if !strings.Contains(buf.String(), "hello") {
			t.Error("Expected message in output")
		}
	})
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", "json", &buf)

	logger.WithFields(logrus.Fields{
		"plugin":  "metrics-collector",
		"version": "1.2.0",
	}).Info("plugin loaded")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	if entry["plugin"] != "metrics-collector" {
		t.Errorf("Expected plugin field, got %v", entry["plugin"])
	}
	if entry["version"] != "1.2.0" {
		t.Errorf("Expected version field, got %v", entry["version"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"DEBUG", logrus.DebugLevel},
		{"bogus", logrus.InfoLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		name := tt.input
		if name == "" {
			name = "empty"
		}
		t.Run(name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_NilOutputDefaultsToStdout(t *testing.T) {
	logger := NewLogger("info", "text", nil)
	if logger.Out == nil {
		t.Error("Expected logger output to be set")
	}
}
