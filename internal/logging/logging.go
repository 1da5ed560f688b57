// Package logging provides a small printf-style component logger wrapping
// log/slog, in the NewComponentLogger(name).Info("...", args...) shape.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger is the minimal surface every package in this engine depends on.
// Keeping it an interface (rather than requiring *slog.Logger everywhere)
// lets tests substitute a recording logger without touching slog handlers.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	With(component string) Logger
}

type componentLogger struct {
	base      *slog.Logger
	component string
}

// New wraps an existing *slog.Logger as a component-tagged Logger.
func New(base *slog.Logger, component string) Logger {
	if base == nil {
		base = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &componentLogger{base: base, component: component}
}

// NewComponentLogger creates a text-handler logger writing to stderr at the
// given level, tagged with component. This is the default used when a
// workspace is opened without an explicit logger override.
func NewComponentLogger(component string, level slog.Level) Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return New(slog.New(handler), component)
}

func (l *componentLogger) log(ctx context.Context, level slog.Level, format string, args ...any) {
	if !l.base.Enabled(ctx, level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.base.Log(ctx, level, msg, slog.String("component", l.component))
}

func (l *componentLogger) Debug(format string, args ...any) { l.log(context.Background(), slog.LevelDebug, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.log(context.Background(), slog.LevelInfo, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.log(context.Background(), slog.LevelWarn, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.log(context.Background(), slog.LevelError, format, args...) }

func (l *componentLogger) With(component string) Logger {
	return &componentLogger{base: l.base, component: l.component + "." + component}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), "nop")
}

// OrNop returns logger if non-nil, otherwise a discarding logger, guarding
// against nil loggers passed through optional constructor fields.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}
