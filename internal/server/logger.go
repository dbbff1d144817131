// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// setupLogger installs the process-wide logger. Account events are logged
// as key/value pairs, so "json" suits log shippers and anything else gets
// coloured console output.
func setupLogger(level, format string) {
	slog.SetDefault(slog.New(newLogHandler(os.Stdout, parseLogLevel(level), format)))
}

// parseLogLevel accepts debug, info, warn and error in any case.
// Unknown values fall back to info.
func parseLogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func newLogHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    w != os.Stdout,
	})
}
