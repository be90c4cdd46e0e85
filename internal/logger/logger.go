// Package logger provides structured slog loggers for the delivery engine.
// All logs are written in JSON format. File output is size-rotated so a busy
// dispatch pipeline cannot fill the disk.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewSystemLogger creates a JSON slog.Logger that writes to
// <logDir>/engine.log with rotation. When logDir is empty the logger writes
// to stderr, which suits container deployments.
func NewSystemLogger(logDir string, level slog.Level) *slog.Logger {
	var w io.Writer = os.Stderr
	if logDir != "" {
		w = &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "engine.log"),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// NewChannelLogger returns a child logger tagged with the delivery channel,
// so every worker line carries its channel attribute.
func NewChannelLogger(base *slog.Logger, channel string) *slog.Logger {
	return base.With("channel", channel)
}
