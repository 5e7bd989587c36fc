// Package logging builds the structured logger shared by the service and CLI.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"
)

// Config selects level and output format ("console" or "json").
type Config struct {
	Level  string `json:"level" toml:"level"`
	Format string `json:"format" toml:"format"`
}

// New creates a logger writing to w (stderr when nil).
func New(cfg Config, w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}

	var writer log.Writer
	switch strings.ToLower(cfg.Format) {
	case "json":
		writer = &log.IOWriter{Writer: w}
	default:
		writer = &log.ConsoleWriter{Writer: w, QuoteString: true, EndWithMessage: true}
	}
	return &log.Logger{
		Level:      log.ParseLevel(level),
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Writer:     writer,
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *log.Logger {
	return &log.Logger{Level: log.PanicLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}
