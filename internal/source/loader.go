package source

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
	"marketcal/internal/events"
)

// maxConcurrentMonths bounds the month fetches of one load.
const maxConcurrentMonths = 4

// Result is the outcome of one load.
type Result struct {
	// Key identifies the period the load was for. Compare it with
	// Loader.Current before applying the result.
	Key       string
	RequestID string
	Months    []calendar.MonthKey
	Events    []domain.Event
	// Failed lists months whose fetch failed; they contribute no events.
	Failed []calendar.MonthKey
	// Incomplete lists months that some providers failed for; their events
	// are included but may be missing some.
	Incomplete []calendar.MonthKey
	// Canceled is set when a newer load superseded this one.
	Canceled bool
}

// Loader fetches the months a navigation transition asks for. Each load is
// keyed by its period: starting a load cancels the one in flight, and a
// result whose Key no longer matches Current is stale.
type Loader struct {
	src    EventSource
	logger *slog.Logger

	mu      sync.Mutex
	current string
	gen     uint64
	cancel  context.CancelFunc
}

// NewLoader creates a loader over src.
func NewLoader(src EventSource, logger *slog.Logger) *Loader {
	return &Loader{src: src, logger: logger}
}

// PeriodKey names a set of months, e.g. "2024-12+2025-01".
func PeriodKey(months []calendar.MonthKey) string {
	parts := make([]string, len(months))
	for i, m := range months {
		parts[i] = m.String()
	}
	return strings.Join(parts, "+")
}

// Current returns the key of the most recently started load.
func (l *Loader) Current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// LoadTransition loads the months t asks for. It returns false without
// loading when the transition needs no fetch.
func (l *Loader) LoadTransition(ctx context.Context, t calendar.Transition) (Result, bool) {
	if len(t.Fetch) == 0 {
		return Result{}, false
	}
	return l.Load(ctx, t.Fetch), true
}

// Load fetches months concurrently and merges their events in month order.
// A failed month is logged and contributes nothing, so a load always yields
// a usable (possibly empty) event list.
func (l *Loader) Load(ctx context.Context, months []calendar.MonthKey) Result {
	_, run := l.Start(ctx, months)
	return run()
}

// Start registers a load for months and cancels the one in flight, but
// defers the fetching to run. Callers that fetch on another goroutine use it
// so that the order of Start calls, not of goroutine scheduling, decides
// which load is current.
func (l *Loader) Start(ctx context.Context, months []calendar.MonthKey) (key string, run func() Result) {
	key = PeriodKey(months)
	ctx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.current = key
	l.gen++
	gen := l.gen
	l.cancel = cancel
	l.mu.Unlock()

	return key, func() Result {
		defer cancel()
		return l.fetch(ctx, key, gen, months)
	}
}

func (l *Loader) fetch(ctx context.Context, key string, gen uint64, months []calendar.MonthKey) Result {
	res := Result{Key: key, RequestID: uuid.NewString(), Months: months}
	log := l.logger.With("period", key, "request_id", res.RequestID)

	perMonth := make([][]domain.Event, len(months))
	failed := make([]bool, len(months))
	incomplete := make([]bool, len(months))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentMonths)
	for i, m := range months {
		g.Go(func() error {
			evs, err := l.src.FetchEvents(gctx, m.Year, m.Month)
			if partial, ok := AsPartial(err); ok {
				log.Warn("month incomplete", "month", m.String(), "source", l.src.Name(), "error", err)
				perMonth[i] = partial
				incomplete[i] = true
				return nil
			}
			if err != nil {
				if gctx.Err() == nil {
					log.Error("fetch failed", "month", m.String(), "source", l.src.Name(), "error", err)
				}
				failed[i] = true
				return nil
			}
			perMonth[i] = evs
			return nil
		})
	}
	_ = g.Wait()

	l.mu.Lock()
	res.Canceled = l.gen != gen
	l.mu.Unlock()
	for i, m := range months {
		switch {
		case failed[i]:
			res.Failed = append(res.Failed, m)
		case incomplete[i]:
			res.Incomplete = append(res.Incomplete, m)
		}
	}
	res.Events = events.Merge(perMonth...)

	log.Debug("load finished", "events", len(res.Events), "failed", len(res.Failed),
		"incomplete", len(res.Incomplete), "canceled", res.Canceled)
	return res
}
