package events

import (
	"time"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
)

// Overview divides a month of events between the focus panel and the monthly
// overview. Both lists are ordered by market cap, largest first.
type Overview struct {
	Focus        []domain.Event `json:"focus"`
	Rest         []domain.Event `json:"rest"`
	FocusDate    string         `json:"focus_date,omitempty"`
	CurrentMonth bool           `json:"current_month"`
}

// SplitOverview builds the overview for (year, month). In the current month
// the focus is today's events and the rest excludes them. In any other month
// the focus is the earliest active date and the rest is the whole month.
func SplitOverview(evs []domain.Event, year, month int, now time.Time) Overview {
	sorted := SortByMarketCapDesc(ForMonth(evs, year, month))
	today := calendar.FromTime(now)
	ov := Overview{CurrentMonth: today.Year == year && today.Month == month}

	if ov.CurrentMonth {
		ov.FocusDate = today.Key()
		for _, ev := range sorted {
			if ev.Date == ov.FocusDate {
				ov.Focus = append(ov.Focus, ev)
			} else {
				ov.Rest = append(ov.Rest, ev)
			}
		}
		return ov
	}

	if len(sorted) == 0 {
		return ov
	}
	first := sorted[0].Date
	for _, ev := range sorted[1:] {
		if ev.Date < first {
			first = ev.Date
		}
	}
	ov.FocusDate = first
	for _, ev := range sorted {
		if ev.Date == first {
			ov.Focus = append(ov.Focus, ev)
		}
	}
	ov.Rest = sorted
	return ov
}
