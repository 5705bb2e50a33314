package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logging settings shared by every binary
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	// FilePath additionally appends log output to a file (empty = stdout only)
	FilePath string `yaml:"file_path"`
}

// ApplyDefaults sets the logging defaults
func (lc *LoggingConfig) ApplyDefaults() {
	if lc.Level == "" {
		lc.Level = "info"
	}
	if lc.Format == "" {
		lc.Format = "json"
	}
}

// Validate checks the level and format
func (lc *LoggingConfig) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(lc.Level)); err != nil || lc.Level == "" {
		return fmt.Errorf("invalid log level %q", lc.Level)
	}
	if lc.Format != "json" && lc.Format != "text" {
		return fmt.Errorf("log format must be json or text, got %q", lc.Format)
	}
	return nil
}

// NewLogger builds a zerolog logger writing to w (and FilePath when set).
// The returned close function releases the log file.
func (lc LoggingConfig) NewLogger(w io.Writer) (zerolog.Logger, func() error, error) {
	closeFn := func() error { return nil }

	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}

	out := w
	if lc.Format == "text" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	if lc.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(lc.FilePath), 0755); err != nil {
			return zerolog.Nop(), closeFn, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(lc.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), closeFn, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closeFn = f.Close
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closeFn, nil
}
