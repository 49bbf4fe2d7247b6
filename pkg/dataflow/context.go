// Package dataflow implements a composable data-loading pipeline engine:
// typed multi-field samples flowing through buffers (finite, random access)
// and streams (forward-only, possibly infinite), transformed by stateless
// per-sample operators and stateful stream operators, and delivered through
// a concurrent prefetch stage.
package dataflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type ctxKey string

const (
	loggerKey   ctxKey = "dataflow.logger"
	streamIDKey ctxKey = "dataflow.stream_id"
)

// WithLogger stores a slog.Logger in the context. The logger is used by the
// LogDebug/LogInfo/LogWarn/LogError helpers; slog.Default() is used when no
// logger is set.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger retrieves the slog.Logger from context, or slog.Default().
func Logger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithStreamID stores a stream ID in the context for log correlation.
func WithStreamID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, streamIDKey, id)
}

// StreamIDFrom retrieves the stream ID from context, or "".
func StreamIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(streamIDKey).(string); ok {
		return id
	}
	return ""
}

// newStreamID mints the identifier attached to every constructed stream.
// It appears as the stream_id field in log lines and trace spans.
func newStreamID() string {
	return uuid.NewString()
}
