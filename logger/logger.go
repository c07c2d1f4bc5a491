// Package logger owns slog handler construction for the process. The level
// is held in a slog.LevelVar so logging/setLevel requests from clients can
// adjust verbosity at runtime.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	mu       sync.Mutex
	initDone bool
)

// Level returns the process-wide level var shared with the protocol server.
func Level() *slog.LevelVar {
	return levelVar
}

// SetLevel parses a level name and applies it.
func SetLevel(level string) error {
	switch level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info", "":
		levelVar.Set(slog.LevelInfo)
	case "warning", "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

// Init builds the process logger and installs it as slog's default. When
// path is empty, records go to stderr; stdout is reserved for the protocol
// stream. With a path, the file is opened in append mode and its directory
// created as needed.
func Init(path, level string) (*slog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if err := SetLevel(level); err != nil {
		return nil, err
	}

	var w io.Writer = os.Stderr
	if path != "" && !initDone {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		logFile = f
		w = f
		initDone = true
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)
	return logger, nil
}

// Close releases the log file if one was opened.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	initDone = false
	return err
}
