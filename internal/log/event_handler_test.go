package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/topicgrab/topicgrab/internal/model"
)

// TestEventLoggerMirrorsRecords tests that records reach both the text
// writer and the event sink with mapped levels.
func TestEventLoggerMirrorsRecords(t *testing.T) {
	t.Parallel()

	var events []model.Event
	var buf bytes.Buffer
	logger := NewEventLogger(&buf, false, func(e model.Event) { events = append(events, e) })

	logger.Info("fetching page")
	logger.Warn("retrying download")
	logger.Error("page failed")

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	expected := []struct {
		message string
		level   model.LogLevel
	}{
		{"fetching page", model.LevelInfo},
		{"retrying download", model.LevelWarning},
		{"page failed", model.LevelError},
	}

	for i, want := range expected {
		got, ok := events[i].(model.LogEvent)
		if !ok {
			t.Fatalf("event %d: expected LogEvent, got %T", i, events[i])
		}
		if got.Message != want.message {
			t.Errorf("event %d: got message %q, expected %q", i, got.Message, want.message)
		}
		if got.Level != want.level {
			t.Errorf("event %d: got level %v, expected %v", i, got.Level, want.level)
		}
	}

	out := buf.String()
	for _, want := range []string{"fetching page", "retrying download", "page failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q: %q", want, out)
		}
	}
}

// TestEventLoggerNilSink tests that a nil sink does not panic.
func TestEventLoggerNilSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewEventLogger(&buf, false, nil)
	logger.Info("no listener")

	if !strings.Contains(buf.String(), "no listener") {
		t.Errorf("text output missing record: %q", buf.String())
	}
}

// TestLoggerVerbosity tests the debug level gate.
func TestLoggerVerbosity(t *testing.T) {
	t.Parallel()

	t.Run("debug suppressed by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		NewLogger(&buf, false).Debug("hidden")
		if strings.Contains(buf.String(), "hidden") {
			t.Error("debug record should be suppressed without verbose")
		}
	})

	t.Run("debug visible when verbose", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		NewLogger(&buf, true).Debug("visible")
		if !strings.Contains(buf.String(), "visible") {
			t.Error("debug record should be visible with verbose")
		}
	})
}
