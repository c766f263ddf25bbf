package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithComponentDoesNotRepeat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentApp, Output: &buf})

	logger.WithComponent(ComponentAMQP).WithComponent(ComponentRates).Info("hello")

	line := buf.String()
	if strings.Count(line, "component=") != 1 {
		t.Errorf("expected a single component attribute, got %q", line)
	}
	if !strings.Contains(line, "component=rates") {
		t.Errorf("expected component=rates, got %q", line)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentLedger, Output: &buf})

	fields := NewFields().WithOperation(OpCreate).WithEntity(3, "expense", 9).WithError(errors.New("boom"))
	logger.Debug("entity created", fields.ToSlice()...)

	out := buf.String()
	for _, want := range []string{`"component":"ledger"`, `"operation":"create"`, `"entity_id":9`, `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("default logger component = %q, want unknown", got.Component())
	}

	logger := New(DefaultConfig()).WithComponent(ComponentWorker)
	ctx := WithContext(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Error("FromContext should return the stored logger")
	}
}
