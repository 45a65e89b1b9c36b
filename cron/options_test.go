package cron

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type recordingLogger struct {
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(msg string, args ...any) {
	l.infos = append(l.infos, fmt.Sprintf(msg, args...))
}

func (l *recordingLogger) Error(msg string, args ...any) {
	l.errors = append(l.errors, fmt.Sprintf(msg, args...))
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace": LogLevelDebug,
		"DEBUG": LogLevelDebug,
		"":      LogLevelInfo,
		"warn":  LogLevelError,
		"error": LogLevelError,
		"off":   LogLevelSilent,
	}
	for name, want := range cases {
		got, err := ParseLogLevel(name)
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %d, got %d", name, want, got)
		}
	}
	if _, err := ParseLogLevel("loud"); err == nil {
		t.Fatal("expected unknown level error")
	}
}

func TestLoggerAdapterFormatsPairs(t *testing.T) {
	rec := &recordingLogger{}
	adapter := &loggerAdapter{logger: rec, level: LogLevelDebug}

	adapter.Info("schedule", "entry", 3, "next")
	adapter.Error(errors.New("boom"), "job failed", "entry", 3)

	if len(rec.infos) != 1 || rec.infos[0] != "schedule entry=3 next=" {
		t.Fatalf("unexpected info lines %q", rec.infos)
	}
	if len(rec.errors) != 1 || rec.errors[0] != "job failed entry=3: boom" {
		t.Fatalf("unexpected error lines %q", rec.errors)
	}

	quiet := &loggerAdapter{logger: rec, level: LogLevelError}
	quiet.Info("wake", "now", 1)
	if len(rec.infos) != 1 {
		t.Fatalf("expected info suppressed below debug, got %q", rec.infos)
	}
}

func TestErrorHandlerAdapterWrapsPanics(t *testing.T) {
	var got error
	adapter := &errorHandlerAdapter{handler: func(err error) { got = err }}

	adapter.Error(nil, "panic", "stack", "frames")
	if got == nil || !strings.Contains(got.Error(), "stack=frames") {
		t.Fatalf("expected panic details, got %v", got)
	}

	boom := errors.New("boom")
	adapter.Error(boom, "panic")
	if !errors.Is(got, boom) {
		t.Fatalf("expected wrapped error, got %v", got)
	}
}
