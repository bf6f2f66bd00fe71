// Package logging builds the structured logger shared by the CLI and the API server.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects level, format and an optional Logstash mirror
type Options struct {
	Level        string // debug, info, warn, error
	Format       string // text or json
	LogstashAddr string
	Output       io.Writer
}

// New returns a logger and a closer releasing the Logstash connection, if any.
// The mirror always receives JSON so that Logstash can index the fields.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(opts.LogstashAddr) != "" {
		mirror, err := NewLogstashWriter(opts.LogstashAddr)
		if err != nil {
			return nil, nil, err
		}
		handler = teeHandler{handler, slog.NewJSONHandler(mirror, handlerOpts)}
		closer = mirror
	}

	return slog.New(handler), closer, nil
}

// ParseLevel maps a level name to a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Discard returns a logger that drops everything, for tests
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
