package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/forgeapi/forgeapi/internal/constants"
)

// LogLevel returns the level enabled by a count of verbose flags.
// Each flag lowers the default level by one step, down to debug.
func LogLevel(verbosity int) slog.Level {
	step := slog.LevelInfo - slog.LevelDebug
	return max(constants.DefaultLogLevel-slog.Level(max(verbosity, 0))*step, slog.LevelDebug)
}

// NewLogger returns a logger writing records of the selected level to w, as JSON when jsonLogs is set.
func NewLogger(w io.Writer, verbosity int, jsonLogs bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: LogLevel(verbosity)}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetSlog replaces the default logger. Logs go to stderr so command output stays parseable.
func SetSlog(verbosity int, jsonLogs bool) {
	slog.SetDefault(NewLogger(os.Stderr, verbosity, jsonLogs))
}
