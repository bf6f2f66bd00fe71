package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler sends every record to two handlers
type teeHandler struct {
	primary slog.Handler
	mirror  slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.primary.Enabled(ctx, level) || t.mirror.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	if t.primary.Enabled(ctx, r.Level) {
		errs = append(errs, t.primary.Handle(ctx, r.Clone()))
	}
	if t.mirror.Enabled(ctx, r.Level) {
		errs = append(errs, t.mirror.Handle(ctx, r.Clone()))
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.primary.WithAttrs(attrs), t.mirror.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.primary.WithGroup(name), t.mirror.WithGroup(name)}
}
