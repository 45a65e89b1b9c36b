package main

import (
	"context"
	"io"
	"strings"

	"github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-shipment"
	"github.com/goliatone/go-shipment/config"
)

type glogLogger struct {
	logger glog.Logger
}

func (l glogLogger) Trace(msg string, args ...any) { l.logger.Trace(msg, args...) }
func (l glogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l glogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l glogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l glogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l glogLogger) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l glogLogger) WithContext(ctx context.Context) shipment.Logger {
	return glogLogger{logger: l.logger.WithContext(ctx)}
}

func (l glogLogger) WithFields(fields map[string]any) shipment.Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogLogger{logger: fl.WithFields(fields)}
	}
	return l
}

func newLogger(cfg config.LogConfig, w io.Writer) shipment.Logger {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = "info"
	}
	if strings.EqualFold(cfg.Format, "json") {
		return glogLogger{logger: glog.NewLogger(
			glog.WithWriter(w),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(level),
		)}
	}
	return glogLogger{logger: glog.NewLogger(
		glog.WithWriter(w),
		glog.WithLevel(level),
	)}
}
