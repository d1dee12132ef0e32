// Package logging builds the daemon's structured logger from
// configuration: JSON output to stdout, stderr, or a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Setup builds a JSON slog.Logger per the logging configuration. The
// returned closer is non-nil when output goes to a rotating file; the
// caller must close it on shutdown.
func Setup(output, level string, maxSizeMB, maxBackups, maxAgeDays int) (*slog.Logger, io.Closer, error) {
	var (
		w      io.Writer
		closer io.Closer
	)
	switch output {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		rw, err := NewRotatingWriter(output, maxSizeMB, maxBackups, maxAgeDays)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log output: %w", err)
		}
		w = rw
		closer = rw
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
	return logger, closer, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
