// Package logging defines the structured, context-aware logger used across
// the service, with a log/slog backend for development and a zap backend
// for production.
package logging

import (
	"context"
	"fmt"
	"strings"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key-value pairs, e.g.:
//
//	log.Info(ctx, "client registered", "user", userID, "conn", connID)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}

// Output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// New builds a logger for the given level ("debug", "info", "warn",
// "error") and format. Text output goes through slog; JSON output through
// zap's production encoder.
func New(level, format string) (Logger, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return NewTextLogger(level), nil
	case FormatJSON:
		return NewZapLogger(level)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
