// Package domain defines the core event types shared by every marketcal
// component: calendar events, their categories, impact levels and the
// reporting-session classification applied when an event is ingested.
package domain

import (
	"fmt"
	"strings"
)

// Category is the closed set of event kinds shown on the calendar.
type Category string

const (
	CategoryEarnings Category = "earnings"
	CategoryHoliday  Category = "holiday"
	CategoryEconomic Category = "economic"
	CategoryNews     Category = "news"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryEarnings, CategoryHoliday, CategoryEconomic, CategoryNews:
		return true
	}
	return false
}

// Impact is the market-impact level of an event.
type Impact string

const (
	ImpactHigh   Impact = "High"
	ImpactMedium Impact = "Medium"
	ImpactLow    Impact = "Low"
)

// Market cap thresholds for impact classification, in dollars.
const (
	HighImpactMarketCap   = 100e9
	MediumImpactMarketCap = 10e9
)

// ImpactFromMarketCap derives the impact level from a market cap in dollars.
// A missing market cap is Low.
func ImpactFromMarketCap(marketCap *float64) Impact {
	if marketCap == nil {
		return ImpactLow
	}
	switch {
	case *marketCap > HighImpactMarketCap:
		return ImpactHigh
	case *marketCap > MediumImpactMarketCap:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// ParseImpact parses an impact level case-insensitively.
func ParseImpact(s string) (Impact, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ImpactHigh, nil
	case "medium":
		return ImpactMedium, nil
	case "low":
		return ImpactLow, nil
	}
	return "", fmt.Errorf("unknown impact level %q", s)
}

// Session is the reporting session of an earnings release relative to the
// regular trading day.
type Session int

const (
	SessionUnknown Session = iota
	SessionPreMarket
	SessionPostMarket
)

func (s Session) String() string {
	switch s {
	case SessionPreMarket:
		return "pre-market"
	case SessionPostMarket:
		return "post-market"
	default:
		return "unknown"
	}
}

// MarshalText encodes the session by name.
func (s Session) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a session name. Unrecognised names decode to
// SessionUnknown.
func (s *Session) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pre-market":
		*s = SessionPreMarket
	case "post-market":
		*s = SessionPostMarket
	default:
		*s = SessionUnknown
	}
	return nil
}

// ClassifySession maps a free-text reporting time to a Session. Text
// containing "before" or "pre" is pre-market; "after" or "post" is
// post-market. Matching is case-insensitive and pre-market wins when both
// appear.
func ClassifySession(reportingTime string) Session {
	t := strings.ToLower(reportingTime)
	switch {
	case t == "":
		return SessionUnknown
	case strings.Contains(t, "before"), strings.Contains(t, "pre"):
		return SessionPreMarket
	case strings.Contains(t, "after"), strings.Contains(t, "post"):
		return SessionPostMarket
	}
	return SessionUnknown
}

// Event is a single dated calendar entry. Events are immutable once built;
// numeric fields are nil when the value is missing.
type Event struct {
	ID       string   `json:"id"`
	Date     string   `json:"date"` // YYYY-MM-DD
	Ticker   string   `json:"ticker,omitempty"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Impact   Impact   `json:"impact"`

	// ReportingTime is the provider's raw text; Session is its
	// classification, fixed at ingestion.
	ReportingTime string  `json:"reporting_time,omitempty"`
	Session       Session `json:"session"`

	MarketCap       *float64 `json:"market_cap,omitempty"`
	EPSForecast     *float64 `json:"eps_forecast,omitempty"`
	EPSActual       *float64 `json:"eps_actual,omitempty"`
	RevenueForecast *float64 `json:"revenue_forecast,omitempty"`
	RevenueActual   *float64 `json:"revenue_actual,omitempty"`

	// Economic indicator fields.
	Country   string   `json:"country,omitempty"`
	Currency  string   `json:"currency,omitempty"`
	Time      string   `json:"time,omitempty"` // HH:MM:SS as published
	Unit      string   `json:"unit,omitempty"` // "%", "M", "B" or empty
	Forecast  *float64 `json:"forecast,omitempty"`
	Previous  *float64 `json:"previous,omitempty"`
	Actual    *float64 `json:"actual,omitempty"`
	ChangePct *float64 `json:"change_pct,omitempty"`

	// Holiday fields.
	Exchange string `json:"exchange,omitempty"`
	Closed   bool   `json:"closed,omitempty"`

	Source   string `json:"source,omitempty"`
	Headline string `json:"headline,omitempty"`
	URL      string `json:"url,omitempty"`
}

// EarningsInput carries the raw fields of an earnings record as received from
// a provider.
type EarningsInput struct {
	Date            string
	Ticker          string
	Name            string
	ReportingTime   string
	MarketCap       *float64
	EPSForecast     *float64
	EPSActual       *float64
	RevenueForecast *float64
	RevenueActual   *float64
	Source          string
}

// NewEarningsEvent builds an earnings Event, classifying its reporting
// session and impact. index distinguishes multiple releases on one date.
func NewEarningsEvent(in EarningsInput, index int) Event {
	return Event{
		ID:              EarningsID(in.Ticker, in.Date, index),
		Date:            in.Date,
		Ticker:          strings.ToUpper(in.Ticker),
		Name:            in.Name,
		Category:        CategoryEarnings,
		Impact:          ImpactFromMarketCap(in.MarketCap),
		ReportingTime:   in.ReportingTime,
		Session:         ClassifySession(in.ReportingTime),
		MarketCap:       in.MarketCap,
		EPSForecast:     in.EPSForecast,
		EPSActual:       in.EPSActual,
		RevenueForecast: in.RevenueForecast,
		RevenueActual:   in.RevenueActual,
		Source:          in.Source,
	}
}

// EarningsID returns the stable identifier of an earnings release.
func EarningsID(ticker, date string, index int) string {
	return fmt.Sprintf("%s-%s-%d", strings.ToUpper(ticker), date, index)
}

// DisplayName returns the company or indicator name, falling back to the
// ticker.
func (e Event) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Ticker
}

// Float returns a pointer to v. Handy for building events in code and tests.
func Float(v float64) *float64 {
	return &v
}
