package logging

import (
	"context"
	"log/slog"
)

// MultiHandler duplicates each record to every wrapped handler, letting
// one logger feed stdout, the ring buffer, and journald at once.
type MultiHandler struct {
	targets []slog.Handler
}

func NewMultiHandler(targets ...slog.Handler) *MultiHandler {
	return &MultiHandler{targets: targets}
}

// Enabled reports whether any target would accept a record at this level.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, t := range m.targets {
		if t.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every target that accepts its level.
// A failing target does not stop delivery to the rest; the first error
// is reported.
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, t := range m.targets {
		if !t.Enabled(ctx, r.Level) {
			continue
		}
		if err := t.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.fork(func(t slog.Handler) slog.Handler { return t.WithAttrs(attrs) })
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return m
	}
	return m.fork(func(t slog.Handler) slog.Handler { return t.WithGroup(name) })
}

// fork derives a new handler set while keeping the fan-out wrapper.
func (m *MultiHandler) fork(derive func(slog.Handler) slog.Handler) slog.Handler {
	targets := make([]slog.Handler, len(m.targets))
	for i, t := range m.targets {
		targets[i] = derive(t)
	}
	return &MultiHandler{targets: targets}
}
