package dataflow

import (
	"context"
	"log/slog"
)

// appendContextFields appends the stream ID from context, if any, to the
// variadic slog args.
func appendContextFields(ctx context.Context, args []any) []any {
	if id := StreamIDFrom(ctx); id != "" {
		args = append(args, "stream_id", id)
	}
	return args
}

// LogDebug logs a debug-level message with context metadata.
//
// Uses the logger from context, or slog.Default() if not set, and appends
// the stream ID when present. The level check runs before the message is
// built.
func LogDebug(ctx context.Context, msg string, args ...any) {
	logger := Logger(ctx)
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	logger.DebugContext(ctx, msg, appendContextFields(ctx, args)...)
}

// LogInfo logs an info-level message with context metadata.
func LogInfo(ctx context.Context, msg string, args ...any) {
	logger := Logger(ctx)
	if !logger.Enabled(ctx, slog.LevelInfo) {
		return
	}
	logger.InfoContext(ctx, msg, appendContextFields(ctx, args)...)
}

// LogWarn logs a warning-level message with context metadata.
func LogWarn(ctx context.Context, msg string, args ...any) {
	logger := Logger(ctx)
	if !logger.Enabled(ctx, slog.LevelWarn) {
		return
	}
	logger.WarnContext(ctx, msg, appendContextFields(ctx, args)...)
}

// LogError logs an error-level message with context metadata. A non-nil err
// is appended under the "error" key.
func LogError(ctx context.Context, msg string, err error, args ...any) {
	logger := Logger(ctx)
	if !logger.Enabled(ctx, slog.LevelError) {
		return
	}
	if err != nil {
		args = append(args, "error", err)
	}
	logger.ErrorContext(ctx, msg, appendContextFields(ctx, args)...)
}
