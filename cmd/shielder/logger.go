// logger.go - Process logger
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes to stderr and, when configured, to a log file.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// NewLogger builds the process logger. format is "console" or "json".
func NewLogger(level, format, logFile string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var console io.Writer = os.Stderr
	if format != "json" {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}

	logger := &Logger{}
	out := console
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.file = file
		out = zerolog.MultiLevelWriter(console, file)
	}
	logger.Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return logger, nil
}

// Close closes the log file
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
