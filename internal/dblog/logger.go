// Package dblog provides a thin, package-level structured logger shared by
// every docbase component, wrapping log/slog with process-wide init/get
// helpers instead of threading a logger through every constructor.
package dblog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Level is the logging verbosity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Config configures the package-level logger.
type Config struct {
	Level      Level
	OutputPath string // empty for stderr
	Format     string // "json" or "text"; default "text"
}

var (
	mu      sync.RWMutex
	logger  = defaultLogger()
	logFile *os.File
)

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Init replaces the package-level logger. Safe to call once at startup;
// subsequent calls replace the previous logger and close any previously
// opened log file.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	var writer io.Writer = os.Stderr
	var file *os.File
	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o750); err != nil {
			return err
		}
		var err error
		file, err = os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return err
		}
		writer = file
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file

	var level slog.Level
	switch cfg.Level {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger = slog.New(handler)
	return nil
}

// Get returns the current package-level logger.
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Close releases the log file opened by Init, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}
