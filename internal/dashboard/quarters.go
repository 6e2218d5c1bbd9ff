package dashboard

import (
	"fmt"
	"slices"
	"strings"

	"marketcal/internal/calendar"
)

// QuarterReport is one reported quarter as returned by the earnings history
// endpoint.
type QuarterReport struct {
	Date             string   `json:"date"`
	EPSActual        *float64 `json:"eps_actual"`
	EPSEstimated     *float64 `json:"eps_estimated"`
	RevenueActual    *float64 `json:"revenue_actual"`
	RevenueEstimated *float64 `json:"revenue_estimated"`
}

// Quarter is a QuarterReport with the derived surprise figures.
type Quarter struct {
	QuarterReport
	Label         string  `json:"quarter"`      // "Q1".."Q4", from the report month
	DisplayDate   string  `json:"display_date"` // "JAN 2025"
	EPSChange     float64 `json:"eps_change"`   // percent, actual vs estimate
	EPSBeat       bool    `json:"eps_beat"`
	RevenueChange float64 `json:"revenue_change"`
	RevenueBeat   bool    `json:"revenue_beat"`
}

// QuarterHistory is a ticker's recent quarters, oldest first.
type QuarterHistory struct {
	Ticker   string    `json:"ticker"`
	Quarters []Quarter `json:"quarters"`
}

// SummarizeQuarters derives the surprise figures for reports given newest
// first, returning them oldest first. Reports with an invalid date are
// skipped.
func SummarizeQuarters(ticker string, reports []QuarterReport) QuarterHistory {
	h := QuarterHistory{Ticker: strings.ToUpper(ticker), Quarters: []Quarter{}}
	for _, r := range slices.Backward(reports) {
		d, err := calendar.ParseDateKey(r.Date)
		if err != nil {
			continue
		}
		h.Quarters = append(h.Quarters, Quarter{
			QuarterReport: r,
			Label:         fmt.Sprintf("Q%d", (d.Month+2)/3),
			DisplayDate:   fmt.Sprintf("%s %d", strings.ToUpper(calendar.ShortMonthName(d.Month)), d.Year),
			EPSChange:     PercentChange(r.EPSEstimated, r.EPSActual),
			EPSBeat:       beat(r.EPSEstimated, r.EPSActual),
			RevenueChange: PercentChange(r.RevenueEstimated, r.RevenueActual),
			RevenueBeat:   beat(r.RevenueEstimated, r.RevenueActual),
		})
	}
	return h
}

// RevenueGrowth returns the percent change in actual revenue between the two
// most recent quarters. ok is false when it cannot be computed.
func (h QuarterHistory) RevenueGrowth() (growth float64, ok bool) {
	n := len(h.Quarters)
	if n < 2 {
		return 0, false
	}
	prev, last := h.Quarters[n-2].RevenueActual, h.Quarters[n-1].RevenueActual
	if prev == nil || last == nil || *prev == 0 {
		return 0, false
	}
	return (*last - *prev) / *prev * 100, true
}

// PercentChange returns (actual - estimate) / estimate * 100, or 0 when
// either value is missing or the estimate is zero.
func PercentChange(estimate, actual *float64) float64 {
	if estimate == nil || actual == nil || *estimate == 0 {
		return 0
	}
	return (*actual - *estimate) / *estimate * 100
}

func beat(estimate, actual *float64) bool {
	return estimate != nil && actual != nil && *actual > *estimate
}
