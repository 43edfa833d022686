package imgcache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with imgcache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithSource adds the source fields to the logger.
func (l *Logger) WithSource(src Source) *Logger {
	return &Logger{
		Logger: l.Logger.With("source_kind", src.Kind.String(), "locator", src.Locator),
	}
}

// WithKey adds a cache key field to the logger.
func (l *Logger) WithKey(key string) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", key),
	}
}

// LogLoad logs the outcome of a decode task.
func (l *Logger) LogLoad(ctx context.Context, key string, tier string, elapsed time.Duration, err error) {
	switch {
	case err == nil:
		l.DebugContext(ctx, "load completed",
			"key", key,
			"tier", tier,
			"elapsed", elapsed,
		)
	case errors.Is(err, ErrStaleCompletion):
		l.DebugContext(ctx, "load discarded",
			"key", key,
			"error", err,
		)
	case errors.Is(err, ErrFetchFailure), errors.Is(err, ErrDecodeFailure):
		l.WarnContext(ctx, "load failed",
			"key", key,
			"elapsed", elapsed,
			"error", err,
		)
	default:
		l.ErrorContext(ctx, "load failed",
			"key", key,
			"error", err,
		)
	}
}

// LogDiskInit logs the result of opening the disk tier.
func (l *Logger) LogDiskInit(ctx context.Context, dir string, entries int, err error) {
	if err != nil {
		l.WarnContext(ctx, "disk cache unavailable, caching in memory only",
			"dir", dir,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "disk cache ready",
			"dir", dir,
			"entries", entries,
		)
	}
}

// LogCacheOp logs a queued cache maintenance operation.
func (l *Logger) LogCacheOp(ctx context.Context, op string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cache operation failed",
			"op", op,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "cache operation completed",
			"op", op,
		)
	}
}

// LogEviction logs a bitmap leaving the memory tier.
func (l *Logger) LogEviction(key string) {
	l.Debug("memory entry evicted", "key", key)
}

// LogHashFallback logs disk keys derived with the fallback hash.
func (l *Logger) LogHashFallback(algorithm string) {
	l.Warn("using fallback key hash",
		"algorithm", algorithm,
		"error", ErrHashingUnavailable,
	)
}
