// Package logging defines the structured-logging interface used across the
// server. SlogLogger wraps log/slog and ZapLogger wraps go.uber.org/zap; the
// backend is picked at start-up from configuration.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "user logged in", "user_id", id)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// New builds a Logger for the named backend ("slog" or "zap"). Unknown
// names fall back to slog.
func New(backend string, debug bool) (Logger, error) {
	if backend == "zap" {
		return NewZapLogger(debug)
	}
	return NewJSONSlogLogger(debug), nil
}
