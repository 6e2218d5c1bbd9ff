package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketcal/internal/calendar"
	"marketcal/internal/dashboard"
	"marketcal/internal/domain"
	"marketcal/internal/events"
	"marketcal/internal/export"
	"marketcal/internal/query"
	"marketcal/internal/source"
)

// QuarterSource reports a ticker's previous quarters. source.EarningsAPI
// implements it.
type QuarterSource interface {
	PreviousQuarters(ctx context.Context, ticker string) (dashboard.QuarterHistory, error)
}

// Options configures a CalendarServer.
type Options struct {
	DefaultView calendar.ViewMode
	PageSize    int
	// VariableGrid renders month grids with as many rows as the month needs
	// instead of the fixed five.
	VariableGrid bool
}

// CalendarServer serves the calendar HTTP API.
type CalendarServer struct {
	src      source.EventSource
	quarters QuarterSource
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

// NewCalendarServer creates a calendar HTTP server. quarters may be nil, in
// which case the quarters endpoint reports 503.
func NewCalendarServer(src source.EventSource, quarters QuarterSource, opts Options, log *slog.Logger) *CalendarServer {
	if opts.PageSize == 0 {
		opts.PageSize = query.DefaultPageSize
	}
	return &CalendarServer{
		src:      src,
		quarters: quarters,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *CalendarServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	mux.HandleFunc("POST /api/navigate", s.handleNavigate)
	mux.HandleFunc("GET /api/events", s.handleMonthEvents)
	mux.HandleFunc("GET /api/events/{date}", s.handleDayEvents)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("GET /api/quarters/{ticker}", s.handleQuarters)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns an http.Handler with CORS middleware.
func (s *CalendarServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ----------------------------------------------------------------------------
// Request parsing
// ----------------------------------------------------------------------------

// parseMonth reads the year and month query params, defaulting to the
// current month.
func (s *CalendarServer) parseMonth(r *http.Request) (calendar.MonthKey, error) {
	key := calendar.MonthOf(s.now())
	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			return key, fmt.Errorf("invalid year %q", v)
		}
		key.Year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return key, fmt.Errorf("invalid month %q", v)
		}
		key.Month = m
	}
	return key, nil
}

// parseState builds the navigation state a calendar request describes. A
// week param wins over year/month; selected must fall inside the result.
// The returned month is the one the statistics and wave summarize: the
// requested month when year or month is given, otherwise the state's.
func (s *CalendarServer) parseState(r *http.Request) (calendar.State, calendar.MonthKey, error) {
	now := s.now()
	q := r.URL.Query()

	view := s.opts.DefaultView
	if v := q.Get("view"); v != "" {
		m, err := calendar.ParseViewMode(v)
		if err != nil {
			return calendar.State{}, calendar.MonthKey{}, err
		}
		view = m
	}
	st := calendar.NewState(view, now)
	st.VariableGrid = s.opts.VariableGrid
	var summary *calendar.MonthKey

	switch {
	case q.Get("week") != "":
		d, err := calendar.ParseDateKey(q.Get("week"))
		if err != nil {
			return st, calendar.MonthKey{}, err
		}
		st = calendar.Goto(st, d).State
	case q.Get("year") != "" || q.Get("month") != "":
		key, err := s.parseMonth(r)
		if err != nil {
			return st, calendar.MonthKey{}, err
		}
		if key != calendar.MonthOf(now) {
			st = calendar.Goto(st, calendar.NewDate(key.Year, key.Month, 1)).State
		}
		summary = &key
	}

	if v := q.Get("selected"); v != "" {
		d, err := calendar.ParseDateKey(v)
		if err != nil {
			return st, calendar.MonthKey{}, err
		}
		if st, err = calendar.Select(st, d); err != nil {
			return st, calendar.MonthKey{}, err
		}
	}
	if summary == nil {
		return st, calendar.MonthKey{Year: st.Year, Month: st.Month}, nil
	}
	return st, *summary, nil
}

// parseFilters reads min_cap and max_cap (billions), impact and tickers.
func parseFilters(r *http.Request) (events.Filters, error) {
	var f events.Filters
	q := r.URL.Query()
	for name, dst := range map[string]*float64{"min_cap": &f.MarketCapMin, "max_cap": &f.MarketCapMax} {
		if v := q.Get(name); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil || n < 0 {
				return f, fmt.Errorf("invalid %s %q", name, v)
			}
			*dst = n
		}
	}
	if v := q.Get("impact"); v != "" {
		imp, err := domain.ParseImpact(v)
		if err != nil {
			return f, err
		}
		f.Impact = imp
	}
	if v := q.Get("tickers"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tickers = append(f.Tickers, t)
			}
		}
	}
	return f, nil
}

// parseQuery reads the table query params q, session, sort, dir, page and size.
func (s *CalendarServer) parseQuery(r *http.Request) (query.State, error) {
	q := r.URL.Query()
	st := query.NewState()
	if s.opts.PageSize != query.DefaultPageSize {
		st, _ = st.SetPageSize(s.opts.PageSize)
	}

	st = st.SetSearch(q.Get("q"))
	session, err := query.ParseSessionFilter(q.Get("session"))
	if err != nil {
		return st, err
	}
	st = st.SetSession(session)

	if v := q.Get("sort"); v != "" {
		st = st.ToggleSort(query.SortKey(v))
	}
	switch q.Get("dir") {
	case "", string(query.Asc):
	case string(query.Desc):
		st.Direction = query.Desc
	default:
		return st, fmt.Errorf("invalid dir %q", q.Get("dir"))
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return st, fmt.Errorf("invalid size %q", v)
		}
		if st, err = st.SetPageSize(n); err != nil {
			return st, err
		}
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return st, fmt.Errorf("invalid page %q", v)
		}
		st = st.SetPage(n)
	}
	return st, nil
}

// load fetches months with a per-request loader. Failed months come back
// empty and are listed in the result.
func (s *CalendarServer) load(ctx context.Context, months []calendar.MonthKey) source.Result {
	return source.NewLoader(s.src, s.log).Load(ctx, months)
}

// ----------------------------------------------------------------------------
// Handlers
// ----------------------------------------------------------------------------

func (s *CalendarServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	st, summary, err := s.parseState(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.load(r.Context(), st.Months())
	evs := filters.Apply(res.Events)
	writeJSON(w, s.calendarResponse(st, summary, evs, res))
}

func (s *CalendarServer) calendarResponse(st calendar.State, summary calendar.MonthKey, evs []domain.Event, res source.Result) CalendarResponse {
	grid := st.Grid(s.now())

	idx := events.BuildIndex(evs)
	rows := make([][]DayJSON, len(grid))
	for i, row := range grid {
		rows[i] = make([]DayJSON, len(row))
		for j, cell := range row {
			day := DayJSON{Cell: cell, Date: cell.Key(), Selected: cell.Date() == st.Selected}
			for _, ev := range idx.ForKey(day.Date) {
				day.Count++
				if ev.Category == domain.CategoryEarnings {
					day.Earnings++
				}
				if ev.Impact == domain.ImpactHigh {
					day.HighImpact++
				}
			}
			rows[i][j] = day
		}
	}

	return CalendarResponse{
		State:      st,
		Label:      st.Label(),
		Rows:       rows,
		Stats:      events.Statistics(evs, summary.Year, summary.Month),
		Wave:       events.WaveLabel(evs, summary.Year, summary.Month),
		Summary:    summary,
		Months:     st.Months(),
		Failed:     res.Failed,
		Incomplete: res.Incomplete,
	}
}

func (s *CalendarServer) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// The grid mode is the server's, whatever the client sent.
	req.State.VariableGrid = s.opts.VariableGrid
	if err := req.State.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid state: "+err.Error())
		return
	}

	now := s.now()
	var t calendar.Transition
	switch req.Command {
	case "previous":
		t = calendar.Previous(req.State, now)
	case "next":
		t = calendar.Next(req.State, now)
	case "today":
		t = calendar.Today(req.State, now)
	case "switch":
		mode, err := calendar.ParseViewMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		t = calendar.SwitchView(req.State, mode, now)
	case "select":
		d, err := calendar.ParseDateKey(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		st, err := calendar.Select(req.State, d)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, calendar.ErrOutsidePeriod) {
				status = http.StatusUnprocessableEntity
			}
			writeError(w, status, err.Error())
			return
		}
		t = calendar.Transition{State: st}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown command %q", req.Command))
		return
	}

	writeJSON(w, t)
}

func (s *CalendarServer) handleMonthEvents(w http.ResponseWriter, r *http.Request) {
	key, err := s.parseMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Remote clients see upstream failures as errors rather than an empty
	// month, so they can fall back on their own cache.
	evs, err := s.src.FetchEvents(r.Context(), key.Year, key.Month)
	partial, incomplete := source.AsPartial(err)
	switch {
	case incomplete:
		s.log.Warn("month incomplete", "month", key.String(), "error", err)
		evs = partial
	case err != nil:
		s.log.Error("month fetch failed", "month", key.String(), "error", err)
		writeError(w, http.StatusBadGateway, "failed to load events")
		return
	}
	if evs == nil {
		evs = []domain.Event{}
	}
	writeJSON(w, MonthEventsResponse{Year: key.Year, Month: key.Month, Events: evs, Incomplete: incomplete})
}

func (s *CalendarServer) handleDayEvents(w http.ResponseWriter, r *http.Request) {
	d, err := calendar.ParseDateKey(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	qs, err := s.parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.load(r.Context(), []calendar.MonthKey{{Year: d.Year, Month: d.Month}})
	rows := events.BuildIndex(res.Events).ForKey(d.Key())
	writeJSON(w, DayEventsResponse{Date: d.Key(), Query: qs, Result: query.Run(rows, qs)})
}

func (s *CalendarServer) handleOverview(w http.ResponseWriter, r *http.Request) {
	key, err := s.parseMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.load(r.Context(), []calendar.MonthKey{key})
	ov := events.SplitOverview(res.Events, key.Year, key.Month, s.now())
	if ov.Focus == nil {
		ov.Focus = []domain.Event{}
	}
	if ov.Rest == nil {
		ov.Rest = []domain.Event{}
	}
	writeJSON(w, OverviewResponse{
		Year:     key.Year,
		Month:    key.Month,
		Label:    fmt.Sprintf("%s %d", calendar.MonthName(key.Month), key.Year),
		Overview: ov,
	})
}

func (s *CalendarServer) handleExport(w http.ResponseWriter, r *http.Request) {
	key, err := s.parseMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := export.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.load(r.Context(), []calendar.MonthKey{key})
	var buf bytes.Buffer
	if err := export.Month(&buf, kind, res.Events, key.Year, key.Month); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render CSV")
		return
	}

	filename := export.Filename(kind.Domain(), key.Year, key.Month)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(buf.Bytes())
}

func (s *CalendarServer) handleQuarters(w http.ResponseWriter, r *http.Request) {
	if s.quarters == nil {
		writeError(w, http.StatusServiceUnavailable, "earnings history not configured")
		return
	}
	ticker := strings.ToUpper(r.PathValue("ticker"))
	h, err := s.quarters.PreviousQuarters(r.Context(), ticker)
	if err != nil {
		s.log.Error("previous quarters failed", "ticker", ticker, "error", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to load quarters for %s", ticker))
		return
	}
	writeJSON(w, h)
}

func (s *CalendarServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "source": s.src.Name()})
}
