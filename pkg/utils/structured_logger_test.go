package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, level LogLevel, format LogFormat) (*StructuredLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  level,
		Output: &buf,
		Format: format,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger, &buf
}

func TestNewStructuredLogger(t *testing.T) {
	if _, err := NewStructuredLogger(&StructuredLoggerConfig{Level: INFO}); err == nil {
		t.Error("expected error for nil output")
	}

	logger, err := NewStructuredLogger(nil)
	if err != nil {
		t.Fatalf("nil config should fall back to defaults: %v", err)
	}
	if logger.GetLevel() != INFO {
		t.Errorf("Expected INFO level, got %v", logger.GetLevel())
	}
}

func TestLogLevels(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)

	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("Debug message was logged when level is INFO")
	}

	for _, emit := range []func(string, ...map[string]interface{}){logger.Info, logger.Warn, logger.Error} {
		buf.Reset()
		emit("visible message")
		if !strings.Contains(buf.String(), "visible message") {
			t.Errorf("message missing from output: %q", buf.String())
		}
	}
}

func TestStructuredFields(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)

	logger.Info("mkdirs", map[string]interface{}{
		"path":    "/data/reports",
		"created": true,
	})

	output := buf.String()
	if !strings.Contains(output, "{created=true, path=/data/reports}") {
		t.Errorf("fields should be rendered in key order: %q", output)
	}
}

func TestWithFieldAndComponent(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)

	derived := logger.WithComponent("tree").WithField("op", "delete")
	derived.Info("removed")

	output := buf.String()
	if !strings.Contains(output, "component=tree") || !strings.Contains(output, "op=delete") {
		t.Errorf("context fields missing: %q", output)
	}

	buf.Reset()
	logger.Info("plain")
	if strings.Contains(buf.String(), "component=") {
		t.Error("WithField must not mutate the parent logger")
	}
}

func TestWithError(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)

	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}

	logger.WithError(errors.New("permission denied")).Warn("chown failed")
	if !strings.Contains(buf.String(), "error=permission denied") {
		t.Errorf("error field missing: %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatJSON)

	logger.Info("stat", map[string]interface{}{"length": 42, "path": "/a"})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON output: %v", err)
	}
	if entry.Level != "INFO" || entry.Message != "stat" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["length"] != float64(42) {
		t.Errorf("Expected length 42, got %v", entry.Fields["length"])
	}
}

func TestComponentLevels(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)
	logger.SetComponentLevel("stream", DEBUG)

	logger.WithComponent("stream").Debug("seek")
	if !strings.Contains(buf.String(), "seek") {
		t.Error("component level should allow DEBUG")
	}

	buf.Reset()
	logger.WithComponent("tree").Debug("hidden")
	if buf.Len() > 0 {
		t.Error("other components should use the global level")
	}
}

func TestFormatfMethods(t *testing.T) {
	logger, buf := newTestLogger(t, DEBUG, FormatText)

	logger.Debugf("opened %s", "/a")
	logger.Infof("read %d bytes", 10)
	logger.Warnf("retry %d", 2)
	logger.Errorf("failed: %v", "boom")

	output := buf.String()
	for _, want := range []string{"opened /a", "read 10 bytes", "retry 2", "failed: boom"} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in %q", want, output)
		}
	}
}

func TestCaller(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewStructuredLogger(&StructuredLoggerConfig{
		Level:         INFO,
		Output:        &buf,
		IncludeCaller: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("caller")
	if !strings.Contains(buf.String(), "[structured_logger_test.go:") {
		t.Errorf("caller should point at the test file: %s", buf.String())
	}

	buf.Reset()
	logger.Infof("caller %d", 1)
	if !strings.Contains(buf.String(), "[structured_logger_test.go:") {
		t.Errorf("formatted caller should point at the test file: %s", buf.String())
	}
}

func TestSetLevelAndTrace(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)

	logger.Trace("hidden")
	if buf.Len() > 0 {
		t.Error("Trace logged at INFO level")
	}

	logger.SetLevel(TRACE)
	if logger.GetLevel() != TRACE {
		t.Errorf("Expected TRACE level, got %v", logger.GetLevel())
	}
	logger.Trace("trace message")
	if !strings.Contains(buf.String(), "[TRACE] trace message") {
		t.Errorf("trace output = %q", buf.String())
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Error("nothing happens")
	if logger.GetLevel() <= FATAL {
		t.Error("nop logger should be above FATAL")
	}
}
