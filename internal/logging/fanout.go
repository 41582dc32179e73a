package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanoutHandler duplicates records to every sink that accepts the level,
// so a run can log to stdout and the journal at once. Records are cloned
// before delivery because handlers may retain them.
type fanoutHandler struct {
	sinks []slog.Handler
}

// newFanout wraps the sinks in a single handler. One sink is returned
// unwrapped.
func newFanout(sinks ...slog.Handler) slog.Handler {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &fanoutHandler{sinks: sinks}
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range f.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled sink. A failing sink does not
// stop delivery to the rest; the errors are joined.
func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sinks := make([]slog.Handler, len(f.sinks))
	for i, s := range f.sinks {
		sinks[i] = s.WithAttrs(attrs)
	}
	return &fanoutHandler{sinks: sinks}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	sinks := make([]slog.Handler, len(f.sinks))
	for i, s := range f.sinks {
		sinks[i] = s.WithGroup(name)
	}
	return &fanoutHandler{sinks: sinks}
}
