package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// logFileMaxSizeMB is the size at which the log file is rotated.
	logFileMaxSizeMB = 10

	// logFileMaxBackups is the number of rotated files kept on disk.
	logFileMaxBackups = 3

	// logFileMaxAgeDays is how long rotated files are kept.
	logFileMaxAgeDays = 28
)

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format, development uses human-readable text.
// When logFile is non-empty, output is also written to a rotating file.
func NewLogger(env, logFile string) *slog.Logger {
	return slog.New(newHandler(env, output(logFile)))
}

func newHandler(env string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		return slog.NewJSONHandler(w, opts)
	}

	opts.Level = slog.LevelDebug

	return slog.NewTextHandler(w, opts)
}

func output(logFile string) io.Writer {
	if logFile == "" {
		return os.Stdout
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
	}

	return io.MultiWriter(os.Stdout, rotator)
}
