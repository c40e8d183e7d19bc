// Package logger wires log/slog for the server and its components.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format represents the logging output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config holds logger configuration options.
type Config struct {
	Format Format
	Level  slog.Level
	// Writer defaults to os.Stderr when nil.
	Writer    io.Writer
	AddSource bool
}

// Setup installs the process wide default logger and returns it.
func Setup(cfg Config) *slog.Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// New returns a logger tagged with the component name.
func New(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// Discard returns a logger that drops every record. Tests use it to keep output quiet.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps LOG_LEVEL style strings onto slog levels, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat maps LOG_FORMAT onto a Format, defaulting to JSON.
func ParseFormat(raw string) Format {
	if strings.EqualFold(strings.TrimSpace(raw), string(FormatText)) {
		return FormatText
	}
	return FormatJSON
}
