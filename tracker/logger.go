package tracker

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with tracker specific helpers so log records
// use consistent field names
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

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithFrame adds a frame field to the logger
func (l *Logger) WithFrame(frameID int) *Logger {
	return &Logger{
		Logger: l.Logger.With("frame", frameID),
	}
}

// LogFrame logs the per frame association summary
func (l *Logger) LogFrame(s FrameStats) {
	l.Debug("frame tracked",
		"high_dets", s.HighDetections,
		"low_dets", s.LowDetections,
		"first_matches", s.FirstMatches,
		"second_matches", s.SecondMatches,
		"unconfirmed_matches", s.UnconfirmedMatches,
		"new_tracks", s.NewTracks,
		"refound", s.Refound,
		"lost", s.Lost,
		"removed", s.Removed,
		"tracked", s.Tracked,
	)
}
