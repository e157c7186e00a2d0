// Package logging builds the process logger: logrus to a console writer,
// optionally teed to a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	Level      string
	Format     string // text | json
	File       string // empty disables file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultOptions logs text at info to the console only.
func DefaultOptions() Options {
	return Options{Level: "info", Format: "text", MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 28}
}

// Logger is a configured logger plus the file it may own.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

// Close flushes and closes the rotated file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// New creates a logger writing to console. An unknown level falls back to
// info with a warning; a file that cannot be prepared is an error.
func New(opts Options, console io.Writer) (*Logger, error) {
	if console == nil {
		console = os.Stderr
	}
	base := logrus.New()

	var warn string
	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		if opts.Level != "" {
			warn = fmt.Sprintf("unknown log level %q, using info", opts.Level)
		}
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l := &Logger{Logger: base}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		base.SetOutput(io.MultiWriter(console, l.file))
	} else {
		base.SetOutput(console)
	}

	if warn != "" {
		base.Warn(warn)
	}
	return l, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
