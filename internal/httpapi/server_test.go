package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcal/internal/calendar"
	"marketcal/internal/dashboard"
	"marketcal/internal/domain"
	"marketcal/internal/events"
	"marketcal/internal/source"
)

var testNow = time.Date(2025, 1, 8, 10, 0, 0, 0, time.UTC)

func earnings(date, ticker, reporting string, capB float64) domain.Event {
	return domain.NewEarningsEvent(domain.EarningsInput{
		Ticker:        ticker,
		Name:          ticker + " Inc",
		Date:          date,
		ReportingTime: reporting,
		MarketCap:     domain.Float(capB * 1e9),
	}, 0)
}

func fixture() map[calendar.MonthKey][]domain.Event {
	return map[calendar.MonthKey][]domain.Event{
		{Year: 2025, Month: 1}: {
			earnings("2025-01-08", "AAA", "Before Market Open", 300),
			earnings("2025-01-08", "BBB", "After Market Close", 20),
			earnings("2025-01-08", "CCC", "After Market Close", 1),
			earnings("2025-01-29", "MSFT", "After Market Close", 3100),
			{ID: "holiday-2025-01-20-0", Date: "2025-01-20", Name: "Martin Luther King Jr. Day", Category: domain.CategoryHoliday, Impact: domain.ImpactHigh, Closed: true},
		},
		{Year: 2024, Month: 12}: {
			earnings("2024-12-30", "DEC", "After Market Close", 5),
		},
	}
}

type fakeQuarters struct{ err error }

func (f fakeQuarters) PreviousQuarters(_ context.Context, ticker string) (dashboard.QuarterHistory, error) {
	if f.err != nil {
		return dashboard.QuarterHistory{}, f.err
	}
	return dashboard.SummarizeQuarters(ticker, []dashboard.QuarterReport{
		{Date: "2024-10-30", EPSActual: domain.Float(3.3), EPSEstimated: domain.Float(3.1)},
	}), nil
}

func newTestServer(t *testing.T, failing map[calendar.MonthKey]bool, quarters QuarterSource) *httptest.Server {
	t.Helper()
	return newTestServerWith(t, failing, quarters, Options{DefaultView: calendar.ViewWeek})
}

func newTestServerWith(t *testing.T, failing map[calendar.MonthKey]bool, quarters QuarterSource, opts Options) *httptest.Server {
	t.Helper()
	data := fixture()
	src := source.Func{Label: "fixture", Fn: func(_ context.Context, year, month int) ([]domain.Event, error) {
		key := calendar.MonthKey{Year: year, Month: month}
		if failing[key] {
			return nil, errors.New("upstream unavailable")
		}
		return data[key], nil
	}}

	s := NewCalendarServer(src, quarters, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return testNow }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, status int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, status, resp.StatusCode)
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
}

func TestCalendarWeek(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	var resp CalendarResponse
	getJSON(t, srv.URL+"/api/calendar", http.StatusOK, &resp)

	assert.Equal(t, "Jan 5 - 11, 2025", resp.Label)
	require.Len(t, resp.Rows, 1)
	require.Len(t, resp.Rows[0], 7)
	wed := resp.Rows[0][3]
	assert.Equal(t, "2025-01-08", wed.Date)
	assert.Equal(t, 3, wed.Count)
	assert.Equal(t, 3, wed.Earnings)
	assert.True(t, wed.Selected)
	assert.True(t, wed.IsToday)
	assert.Equal(t, "Jan 8 - Jan 29", resp.Wave)
	assert.Equal(t, 4, resp.Stats.Earnings)
	assert.Equal(t, 3, resp.Stats.HighImpact, "AAA, MSFT and the holiday")
	assert.Equal(t, 1, wed.HighImpact)
}

func TestCalendarMonthWithFilters(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	var resp CalendarResponse
	getJSON(t, srv.URL+"/api/calendar?view=month&year=2025&month=1&min_cap=10", http.StatusOK, &resp)

	assert.Equal(t, "January 2025", resp.Label)
	assert.Len(t, resp.Rows, calendar.MonthGridRows)
	// Dec 29 opens the grid; the December event is outside the loaded month.
	assert.Equal(t, "2024-12-29", resp.Rows[0][0].Date)
	counts := map[string]int{}
	for _, row := range resp.Rows {
		for _, d := range row {
			counts[d.Date] = d.Count
		}
	}
	assert.Equal(t, 2, counts["2025-01-08"], "the $1B report is filtered out")
	assert.Equal(t, 0, counts["2025-01-20"], "holidays have no market cap")
	assert.Equal(t, 1, counts["2025-01-29"])
}

func TestCalendarWeekAcrossMonths(t *testing.T) {
	srv := newTestServer(t, map[calendar.MonthKey]bool{{Year: 2025, Month: 1}: true}, nil)

	var resp CalendarResponse
	getJSON(t, srv.URL+"/api/calendar?week=2024-12-31", http.StatusOK, &resp)

	assert.Equal(t, "Dec 29 - Jan 4, 2024", resp.Label)
	assert.Equal(t, []calendar.MonthKey{{Year: 2024, Month: 12}, {Year: 2025, Month: 1}}, resp.Months)
	assert.Equal(t, []calendar.MonthKey{{Year: 2025, Month: 1}}, resp.Failed)
	assert.Equal(t, 1, resp.Rows[0][1].Count, "the healthy month still loads")
}

func TestCalendarBadParams(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	for _, q := range []string{"view=year", "month=13", "week=2025-02-30", "selected=2025-03-01", "min_cap=abc", "impact=extreme"} {
		getJSON(t, srv.URL+"/api/calendar?"+q, http.StatusBadRequest, nil)
	}
}

func TestCalendarVariableGrid(t *testing.T) {
	srv := newTestServerWith(t, nil, nil, Options{DefaultView: calendar.ViewMonth, VariableGrid: true})

	var resp CalendarResponse
	getJSON(t, srv.URL+"/api/calendar?year=2025&month=3&selected=2025-03-31", http.StatusOK, &resp)

	require.Len(t, resp.Rows, 6)
	last := resp.Rows[5][1]
	assert.Equal(t, "2025-03-31", last.Date)
	assert.True(t, last.IsCurrentMonth)
	assert.True(t, last.Selected)
	assert.True(t, resp.State.VariableGrid)

	// The fixed grid has no sixth row to select from.
	fixed := newTestServerWith(t, nil, nil, Options{DefaultView: calendar.ViewMonth})
	getJSON(t, fixed.URL+"/api/calendar?year=2025&month=3&selected=2025-03-31", http.StatusBadRequest, nil)
}

func TestCalendarWeekSummarizesRequestedMonth(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	var resp CalendarResponse
	getJSON(t, srv.URL+"/api/calendar?view=week&year=2025&month=2", http.StatusOK, &resp)

	assert.Equal(t, "Jan 26 - Feb 1, 2025", resp.Label)
	assert.Equal(t, calendar.MonthKey{Year: 2025, Month: 2}, resp.Summary)
	assert.Equal(t, 0, resp.Stats.Total, "January events are not counted")
	assert.Equal(t, events.NoActivity, resp.Wave)
	assert.Equal(t, 1, resp.Rows[0][3].Count, "MSFT on Jan 29 is still drawn")

	getJSON(t, srv.URL+"/api/calendar?week=2025-01-29", http.StatusOK, &resp)
	assert.Equal(t, calendar.MonthKey{Year: 2025, Month: 1}, resp.Summary)
	assert.Equal(t, 4, resp.Stats.Earnings)
}

func TestNavigateRejectsInvalidState(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	bodies := map[string]string{
		"month 13":       `{"state":{"view":"month","year":2025,"month":13,"week_start":"2025-01-05","selected":"2025-01-08"},"command":"next"}`,
		"monday week":    `{"state":{"view":"week","year":2025,"month":1,"week_start":"2025-01-06","selected":"2025-01-08"},"command":"next"}`,
		"no state":       `{"command":"next"}`,
		"selection away": `{"state":{"view":"week","year":2025,"month":1,"week_start":"2025-01-05","selected":"2025-03-01"},"command":"today"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/navigate", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var e map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
			assert.Contains(t, e["error"], "invalid state")
		})
	}
}

func TestNavigate(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	st := calendar.NewState(calendar.ViewWeek, testNow)

	post := func(req NavigateRequest) (*http.Response, calendar.Transition) {
		t.Helper()
		body, err := json.Marshal(req)
		require.NoError(t, err)
		resp, err := http.Post(srv.URL+"/api/navigate", "application/json", strings.NewReader(string(body)))
		require.NoError(t, err)
		defer resp.Body.Close()
		var tr calendar.Transition
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
		}
		return resp, tr
	}

	resp, tr := post(NavigateRequest{State: st, Command: "previous"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, calendar.NewDate(2024, 12, 29), tr.State.WeekStart)
	assert.Equal(t, []calendar.MonthKey{{Year: 2024, Month: 12}, {Year: 2025, Month: 1}}, tr.Fetch)

	resp, tr = post(NavigateRequest{State: st, Command: "switch", Mode: "month"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, calendar.ViewMonth, tr.State.View)
	assert.Empty(t, tr.Fetch)

	resp, _ = post(NavigateRequest{State: st, Command: "select", Date: "2025-02-01"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = post(NavigateRequest{State: st, Command: "jump"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDayEvents(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	var resp DayEventsResponse
	getJSON(t, srv.URL+"/api/events/2025-01-08?session=post&sort=market_cap&dir=desc", http.StatusOK, &resp)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Filtered)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "BBB", resp.Rows[0].Ticker)
	assert.Equal(t, "CCC", resp.Rows[1].Ticker)

	getJSON(t, srv.URL+"/api/events/2025-01-08?q=zzz", http.StatusOK, &resp)
	assert.Empty(t, resp.Rows)
	assert.EqualValues(t, "no_matches", resp.Empty)
	assert.Equal(t, 0, resp.PageCount)

	getJSON(t, srv.URL+"/api/events/2025-01-08?size=7", http.StatusBadRequest, nil)
}

func TestMonthEvents(t *testing.T) {
	srv := newTestServer(t, map[calendar.MonthKey]bool{{Year: 2025, Month: 3}: true}, nil)

	var resp MonthEventsResponse
	getJSON(t, srv.URL+"/api/events?year=2025&month=1", http.StatusOK, &resp)
	assert.Len(t, resp.Events, 5)

	getJSON(t, srv.URL+"/api/events?year=2025&month=2", http.StatusOK, &resp)
	assert.NotNil(t, resp.Events)
	assert.Empty(t, resp.Events)

	getJSON(t, srv.URL+"/api/events?year=2025&month=3", http.StatusBadGateway, nil)
}

func TestMonthEventsIncomplete(t *testing.T) {
	holiday := domain.Event{ID: "h", Date: "2025-01-20", Category: domain.CategoryHoliday}
	src := source.Func{Label: "partial", Fn: func(context.Context, int, int) ([]domain.Event, error) {
		return []domain.Event{holiday}, &source.PartialError{Events: []domain.Event{holiday}, Err: errors.New("earnings down")}
	}}
	s := NewCalendarServer(src, nil, Options{DefaultView: calendar.ViewMonth}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return testNow }
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	var resp MonthEventsResponse
	getJSON(t, srv.URL+"/api/events?year=2025&month=1", http.StatusOK, &resp)
	assert.True(t, resp.Incomplete)
	assert.Len(t, resp.Events, 1)

	var cal CalendarResponse
	getJSON(t, srv.URL+"/api/calendar", http.StatusOK, &cal)
	assert.Equal(t, []calendar.MonthKey{{Year: 2025, Month: 1}}, cal.Incomplete)
	assert.Empty(t, cal.Failed)
}

func TestOverview(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	var resp OverviewResponse
	getJSON(t, srv.URL+"/api/overview?year=2025&month=1", http.StatusOK, &resp)
	assert.True(t, resp.CurrentMonth)
	assert.Equal(t, "2025-01-08", resp.FocusDate)
	assert.Len(t, resp.Focus, 3)
	assert.Len(t, resp.Rest, 2)
	assert.Equal(t, "MSFT", resp.Rest[0].Ticker)
}

func TestExport(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, err := http.Get(srv.URL + "/api/export?year=2025&month=1&kind=events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="Events-January-2025.csv"`, resp.Header.Get("Content-Disposition"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(string(body), "\n")
	assert.Len(t, lines, 6, "header plus five events")
	assert.True(t, strings.HasPrefix(lines[0], `"`))

	getJSON(t, srv.URL+"/api/export?kind=pdf", http.StatusBadRequest, nil)
}

func TestQuarters(t *testing.T) {
	getJSON(t, newTestServer(t, nil, nil).URL+"/api/quarters/msft", http.StatusServiceUnavailable, nil)
	getJSON(t, newTestServer(t, nil, fakeQuarters{err: errors.New("down")}).URL+"/api/quarters/msft", http.StatusBadGateway, nil)

	var h dashboard.QuarterHistory
	getJSON(t, newTestServer(t, nil, fakeQuarters{}).URL+"/api/quarters/msft", http.StatusOK, &h)
	assert.Equal(t, "MSFT", h.Ticker)
	require.Len(t, h.Quarters, 1)
	assert.Equal(t, "Q4", h.Quarters[0].Label)
	assert.True(t, h.Quarters[0].EPSBeat)
}

func TestHealthAndCORS(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	var body map[string]string
	getJSON(t, srv.URL+"/health", http.StatusOK, &body)
	assert.Equal(t, "ok", body["status"])

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/calendar", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
