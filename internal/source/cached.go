package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
	"marketcal/internal/store"
)

// Cached reads through a store. A month fetched less than TTL ago is served
// from the cache; otherwise the upstream source is queried and the result
// written back. When upstream fails, a stale cached month is served instead.
// An incomplete upstream month (PartialError) is never written: the stale
// copy is served when there is one, otherwise the partial events are
// returned with the error. A zero TTL never expires cached months.
type Cached struct {
	Upstream EventSource
	Cache    store.EventStore
	// Archive, when set, also receives every successful upstream fetch.
	Archive store.EventStore
	TTL     time.Duration
	Logger  *slog.Logger

	now func() time.Time
}

// NewCached wraps upstream with cache.
func NewCached(upstream EventSource, cache store.EventStore, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{Upstream: upstream, Cache: cache, TTL: ttl, Logger: logger, now: time.Now}
}

func (c *Cached) Name() string { return "cached(" + c.Upstream.Name() + ")" }

// FetchEvents serves the month from cache or upstream.
func (c *Cached) FetchEvents(ctx context.Context, year, month int) ([]domain.Event, error) {
	key := calendar.MonthKey{Year: year, Month: month}

	fetchedAt, err := c.Cache.FetchedAt(ctx, key)
	cached := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.Logger.Warn("cache lookup failed", "month", key.String(), "error", err)
	}
	if cached && (c.TTL <= 0 || c.clock().Sub(fetchedAt) < c.TTL) {
		evs, err := c.Cache.ReadMonth(ctx, key)
		if err == nil {
			c.Logger.Debug("cache hit", "month", key.String(), "events", len(evs))
			return evs, nil
		}
		c.Logger.Warn("cache read failed", "month", key.String(), "error", err)
	}

	evs, err := c.Upstream.FetchEvents(ctx, year, month)
	if err != nil {
		partial, incomplete := AsPartial(err)
		if cached && ctx.Err() == nil {
			if stale, rerr := c.Cache.ReadMonth(ctx, key); rerr == nil {
				c.Logger.Warn("serving stale month", "month", key.String(), "incomplete", incomplete, "error", err)
				return stale, nil
			}
		}
		if incomplete {
			return partial, err
		}
		return nil, err
	}

	if err := c.Cache.WriteMonth(ctx, key, evs); err != nil {
		c.Logger.Warn("cache write failed", "month", key.String(), "error", err)
	}
	if c.Archive != nil {
		if err := c.Archive.WriteMonth(ctx, key, evs); err != nil {
			c.Logger.Warn("archive write failed", "month", key.String(), "error", err)
		}
	}
	return evs, nil
}

// Refresh fetches the month from upstream and stores it regardless of age.
// An incomplete month is reported as an error and leaves the store alone.
func (c *Cached) Refresh(ctx context.Context, key calendar.MonthKey) (int, error) {
	evs, err := c.Upstream.FetchEvents(ctx, key.Year, key.Month)
	if err != nil {
		return 0, err
	}
	if err := c.Cache.WriteMonth(ctx, key, evs); err != nil {
		return 0, err
	}
	if c.Archive != nil {
		if err := c.Archive.WriteMonth(ctx, key, evs); err != nil {
			return 0, err
		}
	}
	return len(evs), nil
}

func (c *Cached) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}
