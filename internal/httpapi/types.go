// Package httpapi provides an HTTP REST API over the market calendar,
// serving the same grids, tables and exports as the terminal client in JSON.
package httpapi

import (
	"marketcal/internal/calendar"
	"marketcal/internal/domain"
	"marketcal/internal/events"
	"marketcal/internal/query"
)

// DayJSON is one grid cell with its event counts.
type DayJSON struct {
	calendar.Cell
	Date       string `json:"date"`
	Count      int    `json:"count"`
	Earnings   int    `json:"earnings"`
	HighImpact int    `json:"high_impact"`
	Selected   bool   `json:"selected,omitempty"`
}

// CalendarResponse is the response of GET /api/calendar.
type CalendarResponse struct {
	State calendar.State `json:"state"`
	Label string         `json:"label"`
	Rows  [][]DayJSON    `json:"rows"`
	Stats events.Stats   `json:"stats"`
	Wave  string         `json:"wave"`
	// Summary is the month Stats and Wave describe. In week view it is the
	// requested month, which may differ from the month the week starts in.
	Summary calendar.MonthKey   `json:"summary_month"`
	Months  []calendar.MonthKey `json:"months"`
	// Failed lists months whose events could not be loaded.
	Failed []calendar.MonthKey `json:"failed,omitempty"`
	// Incomplete lists months that only some providers answered for.
	Incomplete []calendar.MonthKey `json:"incomplete,omitempty"`
}

// NavigateRequest is the body of POST /api/navigate.
type NavigateRequest struct {
	State   calendar.State `json:"state"`
	Command string         `json:"command"` // previous, next, today, switch, select
	Mode    string         `json:"mode,omitempty"`
	Date    string         `json:"date,omitempty"`
}

// DayEventsResponse is the response of GET /api/events/{date}.
type DayEventsResponse struct {
	Date  string      `json:"date"`
	Query query.State `json:"query"`
	query.Result
}

// MonthEventsResponse is the response of GET /api/events.
type MonthEventsResponse struct {
	Year   int            `json:"year"`
	Month  int            `json:"month"`
	Events []domain.Event `json:"events"`
	// Incomplete is set when some providers failed for the month.
	Incomplete bool `json:"incomplete,omitempty"`
}

// OverviewResponse is the response of GET /api/overview.
type OverviewResponse struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Label string `json:"label"`
	events.Overview
}
