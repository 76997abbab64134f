// Package logging provides the leveled logger shared by the engine. It is the
// gorm logger, so SQL tracing and engine messages land in the same sink.
package logging

import (
	"io"
	"log"
	"strings"
	"time"

	"gorm.io/gorm/logger"
)

// Logger is the logging contract used across the engine
type Logger = logger.Interface

// Discard drops every message
var Discard Logger = logger.Discard

// New creates a logger writing to stderr at the given level name
func New(level string) Logger {
	return logger.Default.LogMode(ParseLevel(level))
}

// NewWriter creates a logger writing to w, without colors
func NewWriter(w io.Writer, level string, slowThreshold time.Duration) Logger {
	return logger.New(log.New(w, "", log.LstdFlags), logger.Config{
		SlowThreshold:             slowThreshold,
		LogLevel:                  ParseLevel(level),
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// ParseLevel maps a level name to a gorm log level
func ParseLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info", "debug":
		return logger.Info
	case "warn", "warning":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent", "off":
		return logger.Silent
	default:
		return logger.Error // Default to error
	}
}

// OrDiscard returns l, or Discard when l is nil
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard
	}
	return l
}
