// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging wraps log/slog with the small, leveled interface used
// throughout the datapath and control plane, optionally fanning out to a
// remote syslog collector.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger is a thin wrapper around *slog.Logger exposing the
// Debug/Info/Warn/Error(msg, kv...) shape used across the codebase.
type Logger struct {
	sl *slog.Logger
}

// New creates a Logger writing JSON lines to w at the given level.
func New(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{sl: slog.New(handler)}
}

// WithHandler wraps an arbitrary slog.Handler, used when an additional
// syslog target is attached via a fan-out handler.
func WithHandler(h slog.Handler) *Logger {
	return &Logger{sl: slog.New(h)}
}

func (l *Logger) Debug(msg string, kv ...any) { l.sl.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.sl.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.sl.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.sl.Error(msg, kv...) }

// With returns a Logger that always includes the given key-value pairs.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{sl: l.sl.With(kv...)}
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Default returns the process-wide default Logger, writing to stderr at
// Info level on first use.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(os.Stderr, slog.LevelInfo)
	})
	return defaultLogger
}

// SetDefault replaces the process-wide default Logger.
func SetDefault(l *Logger) {
	defaultOnce.Do(func() {})
	defaultLogger = l
}
