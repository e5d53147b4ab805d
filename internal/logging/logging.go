// Package logging configures structured JSON logging for ctxsearch.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr whether to also write to stderr (default: false).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging under storeDir.
func DefaultConfig(storeDir string) Config {
	return Config{
		Level:         "info",
		FilePath:      filepath.Join(storeDir, "logs", "ctxsearch.log"),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}
}

// Setup initializes file-based logging and returns a cleanup function.
// The cleanup function should be called to close the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.Level)

	if cfg.FilePath == "" {
		handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		return slog.New(handler), func() {}, nil
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}

	return logger, cleanup, nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromString converts string level to slog.Level.
func LevelFromString(level string) slog.Level {
	return parseLevel(level)
}
