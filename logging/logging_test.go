package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// TestDevLogger tests the development logger's pretty JSON output
func TestDevLogger(t *testing.T) {
	var buf bytes.Buffer
	devLogger := New(&buf, FormatPretty, slog.LevelInfo)

	devLogger.Info("test message", "key", "value")
	output := buf.String()
	t.Logf("Raw output: %q", output)

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("Output is not valid JSON: %v\nOutput was: %s", err, output)
		return
	}
	if result["msg"] != "test message" {
		t.Errorf("Expected message 'test message', got '%v'", result["msg"])
	}
	if result["key"] != "value" {
		t.Errorf("Expected key 'value', got '%v'", result["key"])
	}
	if result["level"] != "INFO" {
		t.Errorf("Expected level 'INFO', got '%v'", result["level"])
	}
	if !strings.Contains(output, "\n  ") {
		t.Errorf("Expected indented output, got %q", output)
	}
}

func TestPrettyLoggerKeepsWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatPretty, slog.LevelInfo).With("dialect", "sqlite")
	logger.Info("compiled")

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if result["dialect"] != "sqlite" {
		t.Errorf("Expected dialect 'sqlite', got '%v'", result["dialect"])
	}
}

// TestProdLogger tests the production logger's JSON output
func TestProdLogger(t *testing.T) {
	var buf bytes.Buffer
	prodLogger := New(&buf, FormatJSON, slog.LevelInfo)

	prodLogger.Info("test message", "key", "value")
	prodLogger.Debug("hidden")
	output := buf.String()

	if strings.Count(output, "\n") != 1 {
		t.Fatalf("Expected one log line, got %q", output)
	}
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("Output is not valid JSON: %v", err)
	}
	if result["msg"] != "test message" {
		t.Errorf("Expected message 'test message', got '%v'", result["msg"])
	}
	if result["level"] != "INFO" {
		t.Errorf("Expected level 'INFO', got '%v'", result["level"])
	}
}

func TestDiscard(t *testing.T) {
	if Discard.Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard should not be enabled at any level")
	}
	Discard.With("k", "v").Error("nothing")
}

func TestParse(t *testing.T) {
	tests := []struct {
		format, level string
		wantFormat    Format
		wantLevel     slog.Level
		wantErr       bool
	}{
		{"", "", FormatJSON, slog.LevelInfo, false},
		{"pretty", "debug", FormatPretty, slog.LevelDebug, false},
		{"JSON", "WARN", FormatJSON, slog.LevelWarn, false},
		{"xml", "info", "", slog.LevelInfo, true},
		{"json", "loud", FormatJSON, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.format+"/"+tt.level, func(t *testing.T) {
			f, ferr := ParseFormat(tt.format)
			l, lerr := ParseLevel(tt.level)
			if tt.wantErr {
				if ferr == nil && lerr == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if ferr != nil || lerr != nil {
				t.Fatalf("Unexpected errors: %v, %v", ferr, lerr)
			}
			if f != tt.wantFormat || l != tt.wantLevel {
				t.Errorf("Got %s/%s, want %s/%s", f, l, tt.wantFormat, tt.wantLevel)
			}
		})
	}
}

// TestTrack tests that the elapsed time and failures are logged
func TestTrack(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, FormatJSON, slog.LevelDebug)

	err := Track(context.Background(), logger, "exec", func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}, "sql", "SELECT 1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	logEntries := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(logEntries) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(logEntries))
	}
	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(logEntries[1]), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if logEntry["msg"] != "exec_completed" {
		t.Errorf("Expected exec_completed, got %v", logEntry["msg"])
	}
	if logEntry["sql"] != "SELECT 1" {
		t.Errorf("Expected sql attribute, got %v", logEntry["sql"])
	}
	duration, ok := logEntry["duration_ms"].(float64)
	if !ok {
		t.Fatal("duration_ms not found in log output")
	}
	if duration < 20 {
		t.Errorf("Expected duration >= 20ms, got %v", duration)
	}

	buf.Reset()
	boom := errors.New("boom")
	if err := Track(context.Background(), logger, "exec", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if !strings.Contains(buf.String(), "exec_failed") || !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Errorf("Expected failure log, got %q", buf.String())
	}
}
