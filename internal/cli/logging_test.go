package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerFormats(t *testing.T) {
	tests := []struct {
		format string
		json   bool
	}{
		{format: "json", json: true},
		{format: "text", json: false},
		// A buffer is not a terminal.
		{format: "auto", json: true},
		{format: "", json: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&buf, "info", tt.format)
			if err != nil {
				t.Fatalf("newLogger returned error: %v", err)
			}
			logger.Info("Process watched", "process", "worker")

			line := strings.TrimSpace(buf.String())
			if got := json.Valid([]byte(line)); got != tt.json {
				t.Fatalf("json output = %v, want %v: %q", got, tt.json, line)
			}
			if !strings.Contains(line, "worker") {
				t.Fatalf("expected attribute in output: %q", line)
			}
		})
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "WARN", "text")
	if err != nil {
		t.Fatalf("newLogger returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("Failed to kill process")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("expected warn record: %q", out)
	}
}

func TestNewLoggerRejectsUnknownValues(t *testing.T) {
	var buf bytes.Buffer
	if _, err := newLogger(&buf, "verbose", "text"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil || !strings.Contains(err.Error(), "invalid log format") {
		t.Fatalf("expected error for unknown format, got %v", err)
	}
}
