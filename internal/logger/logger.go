// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context, optional file
// rotation, and trace ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Options configures Init.
type Options struct {
	Level slog.Level
	// File enables a rotating log file alongside stdout. Empty disables it.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init creates and returns a structured logger for the given service and
// installs it as the slog default.
func Init(service string, opts Options) *slog.Logger {
	return InitWriter(service, opts, os.Stdout)
}

// InitWriter is Init with an explicit console writer.
func InitWriter(service string, opts Options, console io.Writer) *slog.Logger {
	var w io.Writer = console
	if opts.File != "" {
		w = io.MultiWriter(console, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		})
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: opts.Level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel converts "debug|info|warn|error" to slog.Level. Unknown → info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTraceID tags ctx with the ID of the request it serves.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the request ID carried by ctx, or "".
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID derives a request ID from a route label such as
// "GET /api/market/summary": the label is folded to lower-case words
// joined by '-' and suffixed with ts in unix nanoseconds.
func GenerateTraceID(label string, ts time.Time) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, label)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "req"
	}
	return fmt.Sprintf("%s-%d", slug, ts.UnixNano())
}

// LogWithTrace returns args prefixed with the trace_id attribute of ctx,
// for use as slog.Warn("msg", logger.LogWithTrace(ctx, "symbol", sym)...).
func LogWithTrace(ctx context.Context, args ...any) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return args
	}
	return append([]any{slog.String("trace_id", tid)}, args...)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
