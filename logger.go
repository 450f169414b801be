package smalloc

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with allocator-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithBlockSize adds a block size field to the logger.
func (l *Logger) WithBlockSize(size int) *Logger {
	return &Logger{
		Logger: l.Logger.With("block_size", size),
	}
}

// WithSize adds a request size field to the logger.
func (l *Logger) WithSize(size int) *Logger {
	return &Logger{
		Logger: l.Logger.With("size", size),
	}
}

// LogPoolCreated logs the creation of a pool.
func (l *Logger) LogPoolCreated(blockSize int, base uintptr, bytes int) {
	l.Debug("pool created",
		"block_size", blockSize,
		"base", base,
		"bytes", bytes,
	)
}

// LogPoolReused logs the reuse of a parked pool.
func (l *Logger) LogPoolReused(blockSize int, base uintptr) {
	l.Debug("pool reused",
		"block_size", blockSize,
		"base", base,
	)
}

// LogPoolEmptied logs a pool becoming empty and parked.
func (l *Logger) LogPoolEmptied(blockSize int, base uintptr) {
	l.Debug("pool emptied",
		"block_size", blockSize,
		"base", base,
	)
}

// LogInvalidFree logs a rejected deallocation.
func (l *Logger) LogInvalidFree(addr uintptr, size int, err error) {
	l.Error("invalid free",
		"addr", addr,
		"size", size,
		"error", err,
	)
}

// LogOutOfMemory logs a failed allocation.
func (l *Logger) LogOutOfMemory(size int, err error) {
	l.Warn("allocation failed",
		"size", size,
		"error", err,
	)
}

// LogClose logs the shutdown of an allocator.
func (l *Logger) LogClose(st Stats, err error) {
	if err != nil {
		l.Error("allocator closed with errors",
			"classes", len(st.Classes),
			"live_blocks", st.LiveBlocks(),
			"large_objects", st.LargeObjects,
			"error", err,
		)
	} else {
		l.Info("allocator closed",
			"classes", len(st.Classes),
			"reserved_bytes", st.ReservedBytes(),
		)
	}
}
