// Package slogx carries lneto's structured-logging helpers (tcp/debug.go,
// internal/debug.go) forward unchanged in shape: a small embeddable Logger
// that no-ops on a nil *slog.Logger, plus a custom below-Debug trace level
// for per-segment wire tracing.
package slogx

import (
	"context"
	"log/slog"
)

// LevelTrace is below slog.LevelDebug, for per-segment tracing that is too
// noisy to enable even with debug logging on.
const LevelTrace slog.Level = slog.LevelDebug - 2

// Logger is embedded by types that want structured logging that is free to
// omit entirely (nil Log). Mirrors lneto's "logger" embed in
// tcp.Handler/tcp.Conn/tcp.Listener.
type Logger struct {
	Log *slog.Logger
}

func (l Logger) enabled(lvl slog.Level) bool {
	return l.Log != nil && l.Log.Handler().Enabled(context.Background(), lvl)
}

func (l Logger) logAttrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	if l.Log != nil {
		l.Log.LogAttrs(context.Background(), lvl, msg, attrs...)
	}
}

// Trace logs at LevelTrace.
func (l Logger) Trace(msg string, attrs ...slog.Attr) { l.logAttrs(LevelTrace, msg, attrs...) }

// Debug logs at slog.LevelDebug.
func (l Logger) Debug(msg string, attrs ...slog.Attr) { l.logAttrs(slog.LevelDebug, msg, attrs...) }

// Error logs at slog.LevelError.
func (l Logger) Error(msg string, attrs ...slog.Attr) { l.logAttrs(slog.LevelError, msg, attrs...) }

// Enabled reports whether msg at lvl would actually be emitted, to let
// callers skip building expensive attrs on the hot path.
func (l Logger) Enabled(lvl slog.Level) bool { return l.enabled(lvl) }
