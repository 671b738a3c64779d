// Package logging builds the zerolog logger shared by klaxon components.
//
// The terminal UI owns stdout, so watch sessions log to a file. One-shot CLI
// commands log to stderr, in console format unless JSON output is requested.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output destinations.
const (
	OutputFile    = "file"
	OutputStderr  = "stderr"
	OutputConsole = "console"
	OutputDiscard = "discard"
)

// Config selects the log level and sink.
type Config struct {
	Level  string
	Output string
	File   string // used when Output is "file"
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Init returns a logger for cfg and a closer for any file it opened.
func Init(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if lvl := strings.TrimSpace(cfg.Level); lvl != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(lvl))
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("parse log level %q: %w", lvl, err)
		}
		level = parsed
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case OutputFile:
		if strings.TrimSpace(cfg.File) == "" {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("log output file: no path configured")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	case OutputConsole:
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	case OutputDiscard:
		out = io.Discard
	case OutputStderr, "":
	default:
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

// WithComponent tags logger with a component name.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
