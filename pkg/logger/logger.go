package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Option func(*options)

type options struct {
	writer io.Writer
}

// WithWriter sends records to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// New returns a JSON logger in prod and a text logger elsewhere. Every record
// carries the environment attribute.
func New(lvl string, addSource bool, environment string, opts ...Option) *slog.Logger {
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	level, err := ParseLevel(lvl)
	if err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
	}

	var handler slog.Handler
	if strings.ToLower(environment) == "prod" {
		handler = slog.NewJSONHandler(o.writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.writer, handlerOpts)
	}

	return slog.New(handler).With(
		slog.String("environment", environment),
	)
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
