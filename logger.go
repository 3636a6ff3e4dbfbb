package bitalloc

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with allocator-specific helpers.
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

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// LogRetry logs a failed compare-and-swap on a bitmap word.
func (l *Logger) LogRetry(op Op, word, attempt int) {
	l.Debug("compare-and-swap race, retrying",
		"op", string(op),
		"word", word,
		"attempt", attempt,
	)
}

// LogHintMiss logs a search hint advance that lost to a concurrent update.
func (l *Logger) LogHintMiss(start, word int) {
	l.Debug("search hint update lost, harmless",
		"start", start,
		"word", word,
	)
}

// LogStats logs allocator statistics.
func (l *Logger) LogStats(s Stats) {
	l.Info("allocator statistics",
		"allocs", s.Allocs,
		"exhausted", s.Exhausted,
		"words_examined", s.WordsExamined,
		"scan_ratio", s.ScanRatio(),
		"clears", s.Clears,
		"retries", s.Retries,
		"hint_misses", s.HintMisses,
	)
}
