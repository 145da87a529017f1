// Package logger configures the structured logger shared by all components.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human readable console output
	File   string `mapstructure:"file"`   // optional log file, appended to
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Pretty: true,
	}
}

// Logger wraps zerolog.Logger and owns the log file, if any.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New creates a logger writing to out and, if configured, to a file.
// It also replaces the global zerolog logger.
func New(cfg Config, out io.Writer) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if out == nil {
		out = os.Stderr
	}
	writer := out
	if cfg.Pretty {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = zerolog.MultiLevelWriter(writer, file)
	}

	zl := zerolog.New(writer).Level(level).With().Timestamp().Logger()
	log.Logger = zl

	return &Logger{Logger: zl, file: file}, nil
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
