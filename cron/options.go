package cron

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// LogLevel controls how much of the scheduler's own activity is logged.
type LogLevel int

const (
	LogLevelSilent LogLevel = iota
	LogLevelError
	LogLevelInfo
	LogLevelDebug
)

// ParseLogLevel maps a logger level name onto the scheduler levels. Trace
// and debug enable entry level logging; warn and error keep failures only.
func ParseLogLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning", "error", "fatal":
		return LogLevelError, nil
	case "silent", "off", "none":
		return LogLevelSilent, nil
	}
	return LogLevelSilent, fmt.Errorf("cron: unknown log level %q", name)
}

// Parser selects the accepted expression syntax.
type Parser int

const (
	// DefaultParser accepts five field expressions and descriptors.
	DefaultParser Parser = iota
	StandardParser
	// SecondsParser adds a leading seconds field.
	SecondsParser
)

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

// WithLogger routes scheduler and job runner logs to logger.
func WithLogger(logger Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithLogWriter sends scheduler logs to writer when no Logger is set.
func WithLogWriter(writer io.Writer) Option {
	return func(s *Scheduler) {
		s.logWriter = writer
	}
}

func WithLogLevel(level LogLevel) Option {
	return func(s *Scheduler) {
		s.logLevel = level
	}
}

// WithErrorHandler receives job failures and recovered panics.
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		if handler != nil {
			s.errorHandler = handler
		}
	}
}

func WithParser(p Parser) Option {
	return func(s *Scheduler) {
		s.parser = p
	}
}

// loggerAdapter feeds robfig/cron's key/value logging into a printf style
// Logger.
type loggerAdapter struct {
	logger Logger
	level  LogLevel
}

func (l *loggerAdapter) Info(msg string, keysAndValues ...any) {
	if l.level < LogLevelDebug {
		return
	}
	l.logger.Info("%s", withPairs(msg, keysAndValues))
}

func (l *loggerAdapter) Error(err error, msg string, keysAndValues ...any) {
	if l.level < LogLevelError {
		return
	}
	l.logger.Error("%s: %v", withPairs(msg, keysAndValues), err)
}

// errorHandlerAdapter hands panics recovered by the cron chain to the
// scheduler error handler.
type errorHandlerAdapter struct {
	handler func(error)
}

func (e *errorHandlerAdapter) Info(string, ...any) {}

func (e *errorHandlerAdapter) Error(err error, msg string, keysAndValues ...any) {
	if e.handler == nil {
		return
	}
	if err == nil {
		err = fmt.Errorf("%s", withPairs(msg, keysAndValues))
	}
	e.handler(fmt.Errorf("cron %s: %w", msg, err))
}

func withPairs(msg string, keysAndValues []any) string {
	if len(keysAndValues) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(keysAndValues); i += 2 {
		b.WriteByte(' ')
		fmt.Fprint(&b, keysAndValues[i])
		b.WriteByte('=')
		if i+1 < len(keysAndValues) {
			fmt.Fprint(&b, keysAndValues[i+1])
		}
	}
	return b.String()
}
