package logger

import (
	"io"
	"log/slog"
	"os"
)

var log *slog.Logger

func init() {
	log = newLogger(os.Stderr, os.Getenv("CHORDIAL_DEBUG") == "true", os.Getenv("CHORDIAL_LOG_FORMAT"))
}

func newLogger(w io.Writer, debug bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// SetOutput redirects log output, used by the CLI for quiet one-shot commands
func SetOutput(w io.Writer, debug bool) {
	log = newLogger(w, debug, os.Getenv("CHORDIAL_LOG_FORMAT"))
}

// With returns a child logger carrying the given attributes
func With(args ...any) *slog.Logger {
	return log.With(args...)
}

func Debug(msg string, args ...any) {
	log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	log.Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}
