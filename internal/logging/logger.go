// Package logging builds the logrus logger shared by the pipeline components.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/handiism/bilibili-downloader/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	File   string

	// Output overrides stderr as the primary destination.
	Output io.Writer
}

// New constructs a logrus logger using the provided options.
//
// When File is set, entries are written to both the primary output and the
// file (appending). The returned closer releases the file handle.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("ensure log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closer = f
	}
	logger.SetOutput(out)

	return logger, closer, nil
}

// NewFromSettings creates a logger using the application settings.
func NewFromSettings(s *config.Settings) (*logrus.Logger, io.Closer, error) {
	if s == nil {
		return New(Options{Level: "info"})
	}
	return New(Options{Level: s.LogLevel, Format: s.LogFormat, File: s.LogFile})
}

// Discard returns a logger that drops every entry. Useful in tests and for
// callers that do not care about diagnostics.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
