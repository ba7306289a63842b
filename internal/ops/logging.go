package ops

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/koffeedonut/notesync/internal/config"
)

// Logger is a structured logger wrapper
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

// NewLogger creates a new structured logger based on config
func NewLogger(cfg *config.Logging) *Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a logger with a custom writer
func NewLoggerWithWriter(cfg *config.Logging, w io.Writer) *Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// WithComponent adds a component field to all log messages
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		level:  l.level,
		format: l.format,
	}
}

// WithFields adds custom fields to the logger
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
		level:  l.level,
		format: l.format,
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// Component-specific logger helpers

// LogFetch logs a feed fetch attempt
func (l *Logger) LogFetch(view string, page int, count int, duration time.Duration, err error) {
	if err != nil {
		l.Warn("feed fetch failed",
			"view", view,
			"page", page,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("feed fetch completed",
			"view", view,
			"page", page,
			"notes", count,
			"duration_ms", duration.Milliseconds())
	}
}

// LogMerge logs a page merge into a feed view
func (l *Logger) LogMerge(view string, incoming, novel, total int) {
	l.Debug("feed merge",
		"view", view,
		"incoming", incoming,
		"novel", novel,
		"total", total)
}

// LogReaction logs the outcome of an optimistic reaction
func (l *Logger) LogReaction(noteID, direction, state string, err error) {
	if err != nil {
		l.Warn("reaction rolled back",
			"note_id", noteID,
			"direction", direction,
			"state", state,
			"error", err)
	} else {
		l.Debug("reaction settled",
			"note_id", noteID,
			"direction", direction,
			"state", state)
	}
}

// LogLedgerSweep logs a TTL ledger sweep
func (l *Logger) LogLedgerSweep(ledger string, removed int, err error) {
	if err != nil {
		l.Warn("ledger sweep failed",
			"ledger", ledger,
			"error", err)
	} else {
		l.Debug("ledger sweep completed",
			"ledger", ledger,
			"removed", removed)
	}
}

// LogViewIncrement logs a throttled view-count increment decision
func (l *Logger) LogViewIncrement(noteID string, sent bool) {
	l.Debug("view increment",
		"note_id", noteID,
		"sent", sent)
}

// LogUploadCleanup logs an abandoned-upload cleanup attempt
func (l *Logger) LogUploadCleanup(urls int, err error) {
	if err != nil {
		l.Warn("upload cleanup failed, will retry at next trigger",
			"urls", urls,
			"error", err)
	} else if urls > 0 {
		l.Info("upload cleanup completed",
			"urls", urls)
	}
}

// LogStorageOperation logs a storage operation
func (l *Logger) LogStorageOperation(op string, duration time.Duration, err error) {
	if err != nil {
		l.Error("storage operation failed",
			"operation", op,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("storage operation completed",
			"operation", op,
			"duration_ms", duration.Milliseconds())
	}
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version, commit string) {
	l.Info("notesync starting",
		"version", version,
		"commit", commit)
}

// LogShutdown logs application shutdown
func (l *Logger) LogShutdown(reason string) {
	l.Info("notesync shutting down",
		"reason", reason)
}

// LogPanic logs a panic with stack trace
func (l *Logger) LogPanic(recovered interface{}, stack string) {
	l.Error("panic recovered",
		"panic", fmt.Sprintf("%v", recovered),
		"stack", stack)
}

// Default logger configuration
var defaultLogger *Logger

func init() {
	// Create a default logger for early startup
	defaultLogger = NewLogger(&config.Logging{
		Level:  "info",
		Format: "text",
	})
}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Helper functions for common logging patterns

// Info logs an info message
func Info(msg string, fields ...any) {
	defaultLogger.Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...any) {
	defaultLogger.Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...any) {
	defaultLogger.Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...any) {
	defaultLogger.Error(msg, fields...)
}
