// Package store defines storage for fetched calendar events. Events are
// written and read a whole month at a time, matching how sources deliver
// them: a SQLite cache for the services and a Parquet archive for history.
package store

import (
	"context"
	"errors"
	"time"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
)

// ErrNotFound is returned when a month has never been written.
var ErrNotFound = errors.New("store: month not found")

// EventStore persists and retrieves calendar events by month.
type EventStore interface {
	// WriteMonth stores the events for a month, replacing or merging with
	// what is already there depending on the implementation.
	WriteMonth(ctx context.Context, key calendar.MonthKey, evs []domain.Event) error

	// ReadMonth returns the stored events for a month, or ErrNotFound.
	ReadMonth(ctx context.Context, key calendar.MonthKey) ([]domain.Event, error)

	// FetchedAt returns when the month was last written, or ErrNotFound.
	FetchedAt(ctx context.Context, key calendar.MonthKey) (time.Time, error)

	// ListMonths returns every stored month in ascending order.
	ListMonths(ctx context.Context) ([]calendar.MonthKey, error)
}
