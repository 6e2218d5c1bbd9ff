// Package query runs the filter, sort and paginate pipeline behind the
// tabular event views.
package query

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"marketcal/internal/domain"
)

// SessionFilter restricts rows by reporting session.
type SessionFilter string

const (
	SessionAll  SessionFilter = "all"
	SessionPre  SessionFilter = "pre"
	SessionPost SessionFilter = "post"
)

// ParseSessionFilter parses "all", "pre" or "post". The empty string is
// "all".
func ParseSessionFilter(s string) (SessionFilter, error) {
	switch SessionFilter(strings.ToLower(s)) {
	case "", SessionAll:
		return SessionAll, nil
	case SessionPre:
		return SessionPre, nil
	case SessionPost:
		return SessionPost, nil
	}
	return "", fmt.Errorf("unknown session filter %q", s)
}

func (f SessionFilter) match(s domain.Session) bool {
	switch f {
	case SessionPre:
		return s == domain.SessionPreMarket
	case SessionPost:
		return s == domain.SessionPostMarket
	}
	return true
}

// SortKey names the column rows are ordered by.
type SortKey string

const (
	SortNone            SortKey = ""
	SortMarketCap       SortKey = "market_cap"
	SortEPSForecast     SortKey = "eps_forecast"
	SortEPSActual       SortKey = "eps_actual"
	SortRevenueForecast SortKey = "revenue_forecast"
	SortRevenueActual   SortKey = "revenue_actual"
)

// SortKeys lists the sortable columns in display order.
var SortKeys = []SortKey{SortMarketCap, SortEPSForecast, SortEPSActual, SortRevenueForecast, SortRevenueActual}

// value returns the numeric value of the key for ev, or -Inf when the value
// is missing. ok is false for keys that are not numeric columns.
func (k SortKey) value(ev domain.Event) (v float64, ok bool) {
	var p *float64
	switch k {
	case SortMarketCap:
		p = ev.MarketCap
	case SortEPSForecast:
		p = ev.EPSForecast
	case SortEPSActual:
		p = ev.EPSActual
	case SortRevenueForecast:
		p = ev.RevenueForecast
	case SortRevenueActual:
		p = ev.RevenueActual
	default:
		return 0, false
	}
	if p == nil {
		return math.Inf(-1), true
	}
	return *p, true
}

// Direction is the sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// PageSizes are the allowed page sizes.
var PageSizes = []int{6, 25, 50, 100}

// DefaultPageSize is the page size of a new State.
const DefaultPageSize = 6

// ErrPageSize is returned for a page size outside PageSizes.
var ErrPageSize = errors.New("unsupported page size")

// State is the table's query state. Like the navigation state it is a value:
// every command returns a new State.
type State struct {
	Search    string        `json:"search"`
	Session   SessionFilter `json:"session"`
	SortKey   SortKey       `json:"sort_key"`
	Direction Direction     `json:"direction"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
}

// NewState returns an unfiltered, unsorted state on page 1.
func NewState() State {
	return State{Session: SessionAll, Direction: Asc, Page: 1, PageSize: DefaultPageSize}
}

// SetSearch changes the search text and returns to page 1.
func (s State) SetSearch(q string) State {
	s.Search = q
	s.Page = 1
	return s
}

// SetSession changes the session filter and returns to page 1.
func (s State) SetSession(f SessionFilter) State {
	s.Session = f
	s.Page = 1
	return s
}

// ToggleSort selects key. Selecting the active key again flips the
// direction; a new key starts ascending. Either way the page resets to 1.
func (s State) ToggleSort(key SortKey) State {
	if s.SortKey == key {
		if s.Direction == Asc {
			s.Direction = Desc
		} else {
			s.Direction = Asc
		}
	} else {
		s.SortKey = key
		s.Direction = Asc
	}
	s.Page = 1
	return s
}

// SetPage moves to page n. Out-of-range pages are clamped when the state is
// run.
func (s State) SetPage(n int) State {
	s.Page = n
	return s
}

// SetPageSize changes the page size and returns to page 1.
func (s State) SetPageSize(n int) (State, error) {
	if !slices.Contains(PageSizes, n) {
		return s, fmt.Errorf("page size %d: %w", n, ErrPageSize)
	}
	s.PageSize = n
	s.Page = 1
	return s, nil
}

// EmptyReason explains an empty page of results.
type EmptyReason string

const (
	NotEmpty  EmptyReason = ""
	NoEvents  EmptyReason = "no_events"  // nothing to show for the period
	NoMatches EmptyReason = "no_matches" // the period has events, none match
)

// Result is one page of query output.
type Result struct {
	Rows      []domain.Event `json:"rows"`
	Total     int            `json:"total"`    // rows before filtering
	Filtered  int            `json:"filtered"` // rows after filtering
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
	PageCount int            `json:"page_count"`
	Start     int            `json:"start"` // 1-based index of the first row, 0 when empty
	End       int            `json:"end"`
	Empty     EmptyReason    `json:"empty,omitempty"`
}

// Run filters, sorts and paginates rows. PageCount is 0 when nothing matches.
// The input slice is not modified.
func Run(rows []domain.Event, s State) Result {
	size := s.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}

	filtered := Filter(rows, s.Search, s.Session)
	Sort(filtered, s.SortKey, s.Direction)

	res := Result{
		Total:     len(rows),
		Filtered:  len(filtered),
		PageSize:  size,
		PageCount: (len(filtered) + size - 1) / size,
	}
	switch {
	case len(rows) == 0:
		res.Empty = NoEvents
	case len(filtered) == 0:
		res.Empty = NoMatches
	}

	res.Page = min(max(s.Page, 1), max(res.PageCount, 1))
	if len(filtered) == 0 {
		res.Rows = []domain.Event{}
		return res
	}
	lo := (res.Page - 1) * size
	hi := min(lo+size, len(filtered))
	res.Rows = filtered[lo:hi]
	res.Start, res.End = lo+1, hi
	return res
}

// Filter returns the rows matching the search text and session filter in
// input order. Search is a case-insensitive substring match on ticker and
// name; an empty search matches everything.
func Filter(rows []domain.Event, search string, session SessionFilter) []domain.Event {
	q := strings.ToLower(strings.TrimSpace(search))
	out := make([]domain.Event, 0, len(rows))
	for _, ev := range rows {
		if q != "" &&
			!strings.Contains(strings.ToLower(ev.Ticker), q) &&
			!strings.Contains(strings.ToLower(ev.Name), q) {
			continue
		}
		if !session.match(ev.Session) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Sort orders rows in place by key. Missing values rank lowest: first when
// ascending, last when descending. The sort is stable, and a key that is not
// a numeric column leaves the order unchanged.
func Sort(rows []domain.Event, key SortKey, dir Direction) {
	if _, ok := key.value(domain.Event{}); !ok {
		return
	}
	slices.SortStableFunc(rows, func(a, b domain.Event) int {
		va, _ := key.value(a)
		vb, _ := key.value(b)
		if dir == Desc {
			return cmp.Compare(vb, va)
		}
		return cmp.Compare(va, vb)
	})
}
