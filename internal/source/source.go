// Package source fetches calendar events for a month from the configured
// providers and combines, caches and loads them for display.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"marketcal/internal/domain"
	"marketcal/internal/events"
)

// EventSource returns the events of one month.
type EventSource interface {
	Name() string
	FetchEvents(ctx context.Context, year, month int) ([]domain.Event, error)
}

// Func adapts a function to EventSource.
type Func struct {
	Label string
	Fn    func(ctx context.Context, year, month int) ([]domain.Event, error)
}

func (f Func) Name() string { return f.Label }

func (f Func) FetchEvents(ctx context.Context, year, month int) ([]domain.Event, error) {
	return f.Fn(ctx, year, month)
}

// PartialError reports a month fetched from only some of its providers.
// FetchEvents returns it together with the events that did arrive, which are
// also kept in Events.
type PartialError struct {
	Events []domain.Event
	Err    error
}

func (e *PartialError) Error() string { return "incomplete month: " + e.Err.Error() }

func (e *PartialError) Unwrap() error { return e.Err }

// AsPartial returns the events carried by err when it is a PartialError.
func AsPartial(err error) ([]domain.Event, bool) {
	var pe *PartialError
	if errors.As(err, &pe) {
		return pe.Events, true
	}
	return nil, false
}

// Multi fans a request out to several sources concurrently and merges their
// events in source order, dropping duplicate IDs. A failing source is logged
// and skipped. Multi fails only when every source fails outright; when some
// fail it returns the merged events with a *PartialError.
type Multi struct {
	sources []EventSource
	logger  *slog.Logger
}

// NewMulti combines sources.
func NewMulti(logger *slog.Logger, sources ...EventSource) *Multi {
	return &Multi{sources: sources, logger: logger}
}

func (m *Multi) Name() string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}

// FetchEvents queries every source for the month.
func (m *Multi) FetchEvents(ctx context.Context, year, month int) ([]domain.Event, error) {
	if len(m.sources) == 0 {
		return []domain.Event{}, nil
	}

	results := make([][]domain.Event, len(m.sources))
	errs := make([]error, len(m.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range m.sources {
		g.Go(func() error {
			evs, err := src.FetchEvents(gctx, year, month)
			if err != nil {
				m.logger.Warn("source failed", "source", src.Name(), "year", year, "month", month, "error", err)
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
			}
			if partial, ok := AsPartial(err); ok {
				evs = partial
			} else if err != nil {
				return nil
			}
			results[i] = evs
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed, answered := 0, 0
	for i, err := range errs {
		if err != nil {
			failed++
		}
		if results[i] != nil {
			answered++
		}
	}
	if answered == 0 && failed == len(m.sources) {
		return nil, errors.Join(errs...)
	}
	merged := events.Merge(results...)
	if failed > 0 {
		return merged, &PartialError{Events: merged, Err: errors.Join(errs...)}
	}
	return merged, nil
}
