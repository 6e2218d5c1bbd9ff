// Package refresh prefetches upcoming months on a cron schedule so the
// calendar opens on warm data.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"marketcal/internal/calendar"
)

// Refresher re-fetches and stores one month. source.Cached implements it.
type Refresher interface {
	Refresh(ctx context.Context, key calendar.MonthKey) (int, error)
}

// Scheduler refreshes the current month and the next MonthsAhead months.
type Scheduler struct {
	target      Refresher
	monthsAhead int
	logger      *slog.Logger
	now         func() time.Time

	cron *cron.Cron
}

// New creates a scheduler for target.
func New(target Refresher, monthsAhead int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		target:      target,
		monthsAhead: monthsAhead,
		logger:      logger,
		now:         time.Now,
	}
}

// Months returns the months a run refreshes, current month first.
func (s *Scheduler) Months() []calendar.MonthKey {
	first := calendar.MonthOf(s.now())
	keys := make([]calendar.MonthKey, 0, s.monthsAhead+1)
	for i := 0; i <= s.monthsAhead; i++ {
		keys = append(keys, first.Add(i))
	}
	return keys
}

// RunOnce refreshes every month in Months. A failed month does not stop the
// others; all failures are returned together.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	var errs []error
	total := 0
	for _, key := range s.Months() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.target.Refresh(ctx, key)
		if err != nil {
			s.logger.Error("refresh failed", "month", key.String(), "error", err)
			errs = append(errs, fmt.Errorf("refreshing %s: %w", key, err))
			continue
		}
		total += n
		s.logger.Info("month refreshed", "month", key.String(), "events", n)
	}
	s.logger.Info("refresh complete", "events", total, "failed", len(errs), "elapsed", time.Since(start).String())
	return errors.Join(errs...)
}

// Start runs RunOnce on the standard five-field cron spec until ctx is done.
// Overlapping runs are skipped.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	logger := cronLogger{s.logger}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)), cron.WithLogger(logger))
	if _, err := c.AddFunc(spec, func() {
		_ = s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	s.cron = c
	c.Start()
	s.logger.Info("refresh scheduled", "schedule", spec, "months_ahead", s.monthsAhead)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
