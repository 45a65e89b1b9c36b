package shipment

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Logger is the logging contract every package logs through. cmd/shipctl
// backs it with go-logger.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// FieldsLogger is implemented by loggers that carry structured fields.
type FieldsLogger interface {
	WithFields(map[string]any) Logger
}

// FmtLogger writes one plain text line per entry:
//
//	2025-11-15T08:00:00Z INFO  warehouse allocated shipment_id=S-1
//
// Copies made by WithFields and WithContext share the writer lock.
type FmtLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	fields map[string]any
}

// NewFmtLogger writes to out, or stdout when out is nil.
func NewFmtLogger(out io.Writer) *FmtLogger {
	if out == nil {
		out = os.Stdout
	}
	return &FmtLogger{mu: new(sync.Mutex), out: out}
}

func (l *FmtLogger) Trace(msg string, args ...any) { l.write("TRACE", msg, args) }
func (l *FmtLogger) Debug(msg string, args ...any) { l.write("DEBUG", msg, args) }
func (l *FmtLogger) Info(msg string, args ...any)  { l.write("INFO", msg, args) }
func (l *FmtLogger) Warn(msg string, args ...any)  { l.write("WARN", msg, args) }
func (l *FmtLogger) Error(msg string, args ...any) { l.write("ERROR", msg, args) }
func (l *FmtLogger) Fatal(msg string, args ...any) { l.write("FATAL", msg, args) }

// WithContext is a no-op; the plain text format has no context fields.
func (l *FmtLogger) WithContext(context.Context) Logger {
	if l == nil {
		return NewFmtLogger(nil)
	}
	return l
}

func (l *FmtLogger) WithFields(fields map[string]any) Logger {
	if l == nil {
		l = NewFmtLogger(nil)
	}
	merged := maps.Clone(l.fields)
	if merged == nil {
		merged = make(map[string]any, len(fields))
	}
	maps.Copy(merged, fields)
	return &FmtLogger{mu: l.mu, out: l.out, fields: merged}
}

func (l *FmtLogger) write(level, msg string, args []any) {
	if l == nil {
		l = NewFmtLogger(nil)
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", time.Now().UTC().Format(time.RFC3339Nano), level, strings.TrimSpace(msg))
	for _, k := range slices.Sorted(maps.Keys(l.fields)) {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, b.String())
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Trace(string, ...any)                 {}
func (NopLogger) Debug(string, ...any)                 {}
func (NopLogger) Info(string, ...any)                  {}
func (NopLogger) Warn(string, ...any)                  {}
func (NopLogger) Error(string, ...any)                 {}
func (NopLogger) Fatal(string, ...any)                 {}
func (n NopLogger) WithContext(context.Context) Logger { return n }

// NormalizeLogger substitutes a stdout FmtLogger for nil.
func NormalizeLogger(logger Logger) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	return logger
}

// WithLoggerFields attaches fields when logger supports them and returns it
// unchanged otherwise.
func WithLoggerFields(logger Logger, fields map[string]any) Logger {
	logger = NormalizeLogger(logger)
	if fl, ok := logger.(FieldsLogger); ok && len(fields) > 0 {
		return fl.WithFields(fields)
	}
	return logger
}
