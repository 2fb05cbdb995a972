// Package logging configures the process-wide slog logger for the chanrelay
// daemons.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the handler for a daemon.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	// File, when set, receives a rotated copy of every record in addition
	// to stdout.
	File string
}

// Setup builds a logger from opts and installs it as the slog default.
func Setup(opts Options) *slog.Logger {
	logger := New(opts, os.Stdout)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger writing to w, and to the rotated file when set.
func New(opts Options, w io.Writer) *slog.Logger {
	if opts.File != "" {
		os.MkdirAll(filepath.Dir(opts.File), 0o700)
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		})
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if opts.Format == "text" {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
