// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options selects level, format and an optional log file.
type Options struct {
	Level  string
	Format string // "json" or "text"
	File   string // appended to in addition to stdout
}

// New returns a configured logger and a close function for the log file.
func New(opts Options) (*logrus.Logger, func() error, error) {
	log := logrus.New()
	closeFn := func() error { return nil }

	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, closeFn, fmt.Errorf("parse log level: %w", err)
		}
		level = l
	}
	log.SetLevel(level)

	switch opts.Format {
	case "", "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, closeFn, fmt.Errorf("unknown log format %q", opts.Format)
	}

	out := io.Writer(os.Stdout)
	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, closeFn, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closeFn = file.Close
	}
	log.SetOutput(out)
	return log, closeFn, nil
}
