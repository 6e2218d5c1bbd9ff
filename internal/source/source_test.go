package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
	"marketcal/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOpts() Options {
	return Options{MaxRetries: 3, RetryDelay: time.Millisecond, Logger: quietLogger()}
}

const earningsBody = `{
  "data": {
    "days": [
      {"date": "2025-01-28", "count": 0, "events": []},
      {"date": "2025-01-29", "count": 2, "events": [
        {"ticker": "msft", "company_name": "Microsoft Corp", "market_cap": 3100000000000,
         "eps_forecast": 3.11, "eps_actual": null, "revenue_forecast": 68800000000,
         "reporting_time": "After market close"},
        {"ticker": "SMAL", "company_name": "Small Co", "market_cap": null,
         "reporting_time": "Before market open"}
      ]}
    ]
  }
}`

func TestEarningsAPI(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/earnings/calendar", r.URL.Path)
		gotQuery = r.URL.RawQuery
		io.WriteString(w, earningsBody)
	}))
	defer srv.Close()

	api := NewEarningsAPI(srv.URL, "secret", fastOpts())
	evs, err := api.FetchEvents(context.Background(), 2025, 1)
	require.NoError(t, err)

	assert.Equal(t, "code=secret&month=jan&year=2025", gotQuery)
	require.Len(t, evs, 2)

	msft := evs[0]
	assert.Equal(t, "MSFT-2025-01-29-0", msft.ID)
	assert.Equal(t, "MSFT", msft.Ticker)
	assert.Equal(t, domain.ImpactHigh, msft.Impact)
	assert.Equal(t, domain.SessionPostMarket, msft.Session)
	assert.Nil(t, msft.EPSActual)
	require.NotNil(t, msft.EPSForecast)
	assert.Equal(t, 3.11, *msft.EPSForecast)

	small := evs[1]
	assert.Equal(t, "SMAL-2025-01-29-1", small.ID)
	assert.Equal(t, domain.ImpactLow, small.Impact)
	assert.Equal(t, domain.SessionPreMarket, small.Session)
}

func TestEarningsAPIRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, earningsBody)
	}))
	defer srv.Close()

	evs, err := NewEarningsAPI(srv.URL, "", fastOpts()).FetchEvents(context.Background(), 2025, 1)
	require.NoError(t, err)
	assert.Len(t, evs, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEarningsAPIDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewEarningsAPI(srv.URL, "bad", fastOpts()).FetchEvents(context.Background(), 2025, 1)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusUnauthorized, serr.Code)
	assert.NotContains(t, serr.URL, "code=bad")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPreviousQuarters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/earnings/previous", r.URL.Path)
		require.Equal(t, "MSFT", r.URL.Query().Get("ticker"))
		io.WriteString(w, `{"data": {"symbol": "MSFT", "earnings": [
			{"date": "2025-01-29", "eps_actual": 3.23, "eps_estimated": 3.11, "revenue_actual": 69600000000, "revenue_estimated": 68800000000},
			{"date": "2024-10-30", "eps_actual": 3.30, "eps_estimated": 3.10}
		]}}`)
	}))
	defer srv.Close()

	h, err := NewEarningsAPI(srv.URL, "", fastOpts()).PreviousQuarters(context.Background(), " msft ")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", h.Ticker)
	require.Len(t, h.Quarters, 2)
	assert.Equal(t, "Q4", h.Quarters[0].Label)
	assert.Equal(t, "Q1", h.Quarters[1].Label)
	assert.True(t, h.Quarters[1].EPSBeat)
}

func TestPreviousQuartersInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data": {}}`)
	}))
	defer srv.Close()

	_, err := NewEarningsAPI(srv.URL, "", fastOpts()).PreviousQuarters(context.Background(), "MSFT")
	assert.Error(t, err)
}

func TestEventsAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events/calendar", r.URL.Path)
		require.Equal(t, "feb", r.URL.Query().Get("month"))
		io.WriteString(w, `{"data": {"days": [
			{"date": "2025-02-07", "count": 2, "events": [
				{"type": "economic", "event": "Nonfarm Payrolls", "country": "US", "currency": "USD",
				 "impact": "high", "time": "08:30:00",
				 "values": {"previous": 256, "estimate": 170, "actual": 143, "unit": "K", "change_percentage": -44.1},
				 "source": "BLS"},
				{"type": "dividend", "event": "ignored"}
			]},
			{"date": "2025-02-17", "count": 1, "events": [
				{"type": "holiday", "exchange": "NYSE", "name": "Washington's Birthday", "is_closed": true}
			]}
		]}}`)
	}))
	defer srv.Close()

	evs, err := NewEventsAPI(srv.URL, "", fastOpts()).FetchEvents(context.Background(), 2025, 2)
	require.NoError(t, err)
	require.Len(t, evs, 2)

	nfp := evs[0]
	assert.Equal(t, "Nonfarm Payrolls-2025-02-07-0", nfp.ID)
	assert.Equal(t, domain.CategoryEconomic, nfp.Category)
	assert.Equal(t, domain.ImpactHigh, nfp.Impact)
	assert.Equal(t, "K", nfp.Unit)
	require.NotNil(t, nfp.Actual)
	assert.Equal(t, 143.0, *nfp.Actual)

	hol := evs[1]
	assert.Equal(t, "holiday-2025-02-17-0", hol.ID)
	assert.Equal(t, domain.CategoryHoliday, hol.Category)
	assert.True(t, hol.Closed)
	assert.Equal(t, "NYSE", hol.Exchange)
}

type fakeCalendar struct {
	days []alpaca.CalendarDay
	err  error
}

func (f fakeCalendar) GetCalendar(alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error) {
	return f.days, f.err
}

func TestAlpacaHolidays(t *testing.T) {
	// July 2025: the 4th is closed and the 3rd closes early.
	var days []alpaca.CalendarDay
	for d := 1; d <= 31; d++ {
		date := calendar.NewDate(2025, 7, d)
		wd := date.Weekday()
		if wd == 0 || wd == 6 || d == 4 {
			continue
		}
		closeAt := "16:00"
		if d == 3 {
			closeAt = "13:00"
		}
		days = append(days, alpaca.CalendarDay{Date: date.Key(), Open: "09:30", Close: closeAt})
	}

	src := &AlpacaHolidays{client: fakeCalendar{days: days}}
	evs, err := src.FetchEvents(context.Background(), 2025, 7)
	require.NoError(t, err)
	require.Len(t, evs, 2)

	assert.Equal(t, "2025-07-03", evs[0].Date)
	assert.False(t, evs[0].Closed)
	assert.Equal(t, "09:30-13:00", evs[0].Time)

	assert.Equal(t, "2025-07-04", evs[1].Date)
	assert.True(t, evs[1].Closed)
	assert.Equal(t, domain.CategoryHoliday, evs[1].Category)
}

func TestAlpacaHolidaysOutsideCoverage(t *testing.T) {
	src := &AlpacaHolidays{client: fakeCalendar{}}
	evs, err := src.FetchEvents(context.Background(), 2040, 1)
	require.NoError(t, err)
	assert.Empty(t, evs)

	src = &AlpacaHolidays{client: fakeCalendar{err: errors.New("unauthorized")}}
	_, err = src.FetchEvents(context.Background(), 2025, 1)
	assert.Error(t, err)
}

const icsFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//econ//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:nfp@example.com\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250103T133000Z\r\n" +
	"RRULE:FREQ=MONTHLY;BYDAY=1FR\r\n" +
	"SUMMARY:Nonfarm Payrolls\r\n" +
	"LOCATION:US\r\n" +
	"PRIORITY:1\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:cpi-feb@example.com\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250212T133000Z\r\n" +
	"SUMMARY:CPI\r\n" +
	"LOCATION:US\r\n" +
	"PRIORITY:5\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:gdp-mar@example.com\r\n" +
	"DTSTAMP:20250101T000000Z\r\n" +
	"DTSTART:20250327T123000Z\r\n" +
	"SUMMARY:GDP\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	evs, err := ParseICS([]byte(icsFeed), 2025, 2, "ics:test")
	require.NoError(t, err)
	require.Len(t, evs, 2)

	byName := map[string]domain.Event{}
	for _, ev := range evs {
		byName[ev.Name] = ev
	}

	nfp := byName["Nonfarm Payrolls"]
	assert.Equal(t, "2025-02-07", nfp.Date)
	assert.Equal(t, "13:30:00", nfp.Time)
	assert.Equal(t, domain.ImpactHigh, nfp.Impact)
	assert.Equal(t, "US", nfp.Country)
	assert.Equal(t, "nfp@example.com-2025-02-07", nfp.ID)

	cpi := byName["CPI"]
	assert.Equal(t, "2025-02-12", cpi.Date)
	assert.Equal(t, domain.ImpactMedium, cpi.Impact)
}

func TestICSSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		io.WriteString(w, icsFeed)
	}))
	defer srv.Close()

	evs, err := NewICSSource(srv.URL+"/econ.ics", fastOpts()).FetchEvents(context.Background(), 2025, 3)
	require.NoError(t, err)
	// March: the recurring payrolls release plus GDP.
	assert.Len(t, evs, 2)
}

func staticSource(name string, evs ...domain.Event) EventSource {
	return Func{Label: name, Fn: func(context.Context, int, int) ([]domain.Event, error) {
		return evs, nil
	}}
}

func failingSource(name string) EventSource {
	return Func{Label: name, Fn: func(context.Context, int, int) ([]domain.Event, error) {
		return nil, errors.New(name + " down")
	}}
}

func TestMulti(t *testing.T) {
	a := domain.Event{ID: "a", Date: "2025-01-02"}
	b := domain.Event{ID: "b", Date: "2025-01-03"}

	m := NewMulti(quietLogger(), staticSource("one", a), staticSource("three", b, a))
	evs, err := m.FetchEvents(context.Background(), 2025, 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.Event{a, b}, evs)
	assert.Equal(t, "multi(one,three)", m.Name())

	m = NewMulti(quietLogger(), staticSource("one", a), failingSource("two"), staticSource("three", b, a))
	evs, err = m.FetchEvents(context.Background(), 2025, 1)
	assert.Equal(t, []domain.Event{a, b}, evs)
	partial, ok := AsPartial(err)
	require.True(t, ok, "one failing source makes the month incomplete")
	assert.Equal(t, evs, partial)
	assert.ErrorContains(t, err, "two down")

	_, err = NewMulti(quietLogger(), failingSource("x"), failingSource("y")).FetchEvents(context.Background(), 2025, 1)
	assert.Error(t, err)
}

type memStore struct {
	months  map[calendar.MonthKey][]domain.Event
	fetched map[calendar.MonthKey]time.Time
}

func newMemStore() *memStore {
	return &memStore{months: map[calendar.MonthKey][]domain.Event{}, fetched: map[calendar.MonthKey]time.Time{}}
}

func (m *memStore) WriteMonth(_ context.Context, k calendar.MonthKey, evs []domain.Event) error {
	m.months[k] = evs
	m.fetched[k] = time.Now()
	return nil
}

func (m *memStore) ReadMonth(_ context.Context, k calendar.MonthKey) ([]domain.Event, error) {
	evs, ok := m.months[k]
	if !ok {
		return nil, store.ErrNotFound
	}
	return evs, nil
}

func (m *memStore) FetchedAt(_ context.Context, k calendar.MonthKey) (time.Time, error) {
	t, ok := m.fetched[k]
	if !ok {
		return time.Time{}, store.ErrNotFound
	}
	return t, nil
}

func (m *memStore) ListMonths(context.Context) ([]calendar.MonthKey, error) {
	return nil, nil
}

func TestCached(t *testing.T) {
	var calls int
	fail := false
	upstream := Func{Label: "up", Fn: func(_ context.Context, y, m int) ([]domain.Event, error) {
		calls++
		if fail {
			return nil, errors.New("upstream down")
		}
		return []domain.Event{{ID: fmt.Sprintf("e%d", calls), Date: "2025-01-10"}}, nil
	}}
	cache, archive := newMemStore(), newMemStore()
	c := NewCached(upstream, cache, time.Hour, quietLogger())
	c.Archive = archive
	ctx := context.Background()

	evs, err := c.FetchEvents(ctx, 2025, 1)
	require.NoError(t, err)
	assert.Equal(t, "e1", evs[0].ID)
	assert.Len(t, archive.months, 1)

	// Fresh: served from cache.
	evs, err = c.FetchEvents(ctx, 2025, 1)
	require.NoError(t, err)
	assert.Equal(t, "e1", evs[0].ID)
	assert.Equal(t, 1, calls)

	// Expired: refetched.
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	evs, err = c.FetchEvents(ctx, 2025, 1)
	require.NoError(t, err)
	assert.Equal(t, "e2", evs[0].ID)

	// Expired and upstream down: stale copy.
	fail = true
	evs, err = c.FetchEvents(ctx, 2025, 1)
	require.NoError(t, err)
	assert.Equal(t, "e2", evs[0].ID)

	// Never cached and upstream down: error.
	_, err = c.FetchEvents(ctx, 2025, 2)
	assert.Error(t, err)
}

func TestCachedKeepsMonthWhenProviderFails(t *testing.T) {
	holiday := domain.Event{ID: "holiday", Date: "2025-01-20", Category: domain.CategoryHoliday}
	report := domain.Event{ID: "report", Date: "2025-01-29", Category: domain.CategoryEarnings}
	earningsDown := false
	earnings := Func{Label: "earnings", Fn: func(context.Context, int, int) ([]domain.Event, error) {
		if earningsDown {
			return nil, errors.New("earnings down")
		}
		return []domain.Event{report}, nil
	}}
	cache := newMemStore()
	c := NewCached(NewMulti(quietLogger(), earnings, staticSource("holidays", holiday)), cache, time.Hour, quietLogger())
	ctx := context.Background()

	evs, err := c.FetchEvents(ctx, 2025, 1)
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	// Past the TTL with earnings failing, the complete stale month is
	// served and the cache is not overwritten.
	earningsDown = true
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	evs, err = c.FetchEvents(ctx, 2025, 1)
	require.NoError(t, err)
	assert.Len(t, evs, 2)
	assert.Len(t, cache.months[calendar.MonthKey{Year: 2025, Month: 1}], 2)

	// Nothing cached: the partial month is returned but not stored.
	evs, err = c.FetchEvents(ctx, 2025, 2)
	_, incomplete := AsPartial(err)
	assert.True(t, incomplete)
	assert.Equal(t, []domain.Event{holiday}, evs)
	_, cachedFeb := cache.months[calendar.MonthKey{Year: 2025, Month: 2}]
	assert.False(t, cachedFeb)

	// Refresh refuses to store an incomplete month.
	_, err = c.Refresh(ctx, calendar.MonthKey{Year: 2025, Month: 1})
	assert.Error(t, err)
	assert.Len(t, cache.months[calendar.MonthKey{Year: 2025, Month: 1}], 2)
}

func TestLoaderKeepsIncompleteMonths(t *testing.T) {
	ev := domain.Event{ID: "holiday", Date: "2025-01-20"}
	src := Func{Label: "test", Fn: func(context.Context, int, int) ([]domain.Event, error) {
		return []domain.Event{ev}, &PartialError{Events: []domain.Event{ev}, Err: errors.New("earnings down")}
	}}

	res := NewLoader(src, quietLogger()).Load(context.Background(), []calendar.MonthKey{{Year: 2025, Month: 1}})
	assert.Empty(t, res.Failed)
	assert.Equal(t, []calendar.MonthKey{{Year: 2025, Month: 1}}, res.Incomplete)
	assert.Equal(t, []domain.Event{ev}, res.Events)
}

func TestLoaderMergesMonthsAndDegrades(t *testing.T) {
	src := Func{Label: "test", Fn: func(_ context.Context, y, m int) ([]domain.Event, error) {
		if m == 2 {
			return nil, errors.New("boom")
		}
		return []domain.Event{{ID: fmt.Sprintf("%d-%d", y, m), Date: calendar.DateKey(y, m, 1)}}, nil
	}}
	l := NewLoader(src, quietLogger())

	months := []calendar.MonthKey{{Year: 2024, Month: 12}, {Year: 2025, Month: 1}, {Year: 2025, Month: 2}}
	res := l.Load(context.Background(), months)

	assert.Equal(t, "2024-12+2025-01+2025-02", res.Key)
	assert.Equal(t, res.Key, l.Current())
	assert.NotEmpty(t, res.RequestID)
	assert.False(t, res.Canceled)
	assert.Equal(t, []calendar.MonthKey{{Year: 2025, Month: 2}}, res.Failed)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "2024-12", res.Events[0].ID)
	assert.Equal(t, "2025-1", res.Events[1].ID)
}

func TestLoaderCancelsSupersededLoad(t *testing.T) {
	started := make(chan struct{})
	src := Func{Label: "slow", Fn: func(ctx context.Context, y, m int) ([]domain.Event, error) {
		if m == 1 {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []domain.Event{{ID: "feb", Date: "2025-02-01"}}, nil
	}}
	l := NewLoader(src, quietLogger())

	first := make(chan Result, 1)
	go func() {
		first <- l.Load(context.Background(), []calendar.MonthKey{{Year: 2025, Month: 1}})
	}()
	<-started

	second := l.Load(context.Background(), []calendar.MonthKey{{Year: 2025, Month: 2}})
	old := <-first

	assert.True(t, old.Canceled)
	assert.NotEqual(t, l.Current(), old.Key)
	assert.False(t, second.Canceled)
	assert.Equal(t, l.Current(), second.Key)
	assert.Len(t, second.Events, 1)
}

func TestLoaderStartOrderDecidesCurrent(t *testing.T) {
	src := Func{Label: "ctx", Fn: func(ctx context.Context, y, m int) ([]domain.Event, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []domain.Event{{ID: fmt.Sprintf("%d-%d", y, m), Date: calendar.DateKey(y, m, 1)}}, nil
	}}
	l := NewLoader(src, quietLogger())

	keyA, runA := l.Start(context.Background(), []calendar.MonthKey{{Year: 2025, Month: 1}})
	keyB, runB := l.Start(context.Background(), []calendar.MonthKey{{Year: 2025, Month: 2}})
	assert.Equal(t, keyB, l.Current())

	// B runs first; A, started earlier, is still the stale one.
	b := runB()
	a := runA()
	assert.False(t, b.Canceled)
	assert.Len(t, b.Events, 1)
	assert.Equal(t, keyA, a.Key)
	assert.True(t, a.Canceled)
	assert.Equal(t, []calendar.MonthKey{{Year: 2025, Month: 1}}, a.Failed)
}

func TestLoadTransition(t *testing.T) {
	l := NewLoader(staticSource("s"), quietLogger())
	now := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)
	s := calendar.NewState(calendar.ViewWeek, now)

	// Moving from Jan 5-11 to Jan 12-18 keeps the same month.
	_, loaded := l.LoadTransition(context.Background(), calendar.Next(s, now))
	assert.False(t, loaded)

	res, loaded := l.LoadTransition(context.Background(), calendar.Previous(s, now))
	assert.True(t, loaded)
	assert.Equal(t, "2024-12+2025-01", res.Key)
}
