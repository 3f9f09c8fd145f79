// Package logging holds the relay's process-wide slog logger. Handler code
// logs through FromContext so each request's lines carry its request_id;
// commands and startup code use the package-level helpers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Service is attached to every line as the "service" attribute.
const Service = "sheetrelay"

var (
	// Logger is the global structured logger.
	Logger *slog.Logger

	// Verbose is true when Setup enabled debug output.
	Verbose bool

	level = new(slog.LevelVar)
)

func init() {
	Logger = newLogger(os.Stderr, false)
}

func newLogger(w io.Writer, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if jsonOutput {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", Service)
}

// Setup replaces Logger. verbose lowers the level to debug for every logger
// derived from it, request loggers included. A nil w means stderr.
func Setup(verbose bool, jsonOutput bool, w io.Writer) {
	Verbose = verbose
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
	if w == nil {
		w = os.Stderr
	}
	Logger = newLogger(w, jsonOutput)
}

func Debug(msg string, args ...any) { Logger.Debug(msg, args...) }

func Info(msg string, args ...any) { Logger.Info(msg, args...) }

func Warn(msg string, args ...any) { Logger.Warn(msg, args...) }

func Error(msg string, args ...any) { Logger.Error(msg, args...) }

// With returns Logger with extra attributes.
func With(args ...any) *slog.Logger { return Logger.With(args...) }

type ctxKey struct{}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by NewContext, or the global Logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return Logger
}
