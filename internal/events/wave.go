package events

import (
	"marketcal/internal/calendar"
	"marketcal/internal/domain"
)

// Wave is the span of earnings activity in a month: the earliest and latest
// dates carrying at least one earnings event. Dates in between need not be
// active.
type Wave struct {
	Start calendar.Date `json:"start"`
	End   calendar.Date `json:"end"`
}

// Label renders the wave as "Jan 5 - Jan 30".
func (w Wave) Label() string {
	return w.Start.ShortLabel() + " - " + w.End.ShortLabel()
}

// Days returns the number of calendar days the wave spans, inclusive.
func (w Wave) Days() int {
	return int(w.End.Time().Sub(w.Start.Time()).Hours()/24) + 1
}

// NoActivity is the label shown when a month has no earnings events.
const NoActivity = "No earnings activity"

// DetectWave finds the earnings wave for (year, month). The second result is
// false when the month has no earnings events. Events with an unparseable
// date are skipped.
func DetectWave(evs []domain.Event, year, month int) (Wave, bool) {
	var w Wave
	found := false
	for _, ev := range ForMonth(evs, year, month) {
		if ev.Category != domain.CategoryEarnings {
			continue
		}
		d, err := calendar.ParseDateKey(ev.Date)
		if err != nil {
			continue
		}
		if !found {
			w = Wave{Start: d, End: d}
			found = true
			continue
		}
		if d.Before(w.Start) {
			w.Start = d
		}
		if d.After(w.End) {
			w.End = d
		}
	}
	return w, found
}

// WaveLabel returns the wave label for the month, or NoActivity.
func WaveLabel(evs []domain.Event, year, month int) string {
	if w, ok := DetectWave(evs, year, month); ok {
		return w.Label()
	}
	return NoActivity
}

// Stats summarises the events of one month.
type Stats struct {
	Total      int                     `json:"total"`
	Earnings   int                     `json:"earnings"`
	HighImpact int                     `json:"high_impact"`
	ByCategory map[domain.Category]int `json:"by_category"`
	ByImpact   map[domain.Impact]int   `json:"by_impact"`
	ActiveDays int                     `json:"active_days"`
}

// Statistics counts the events dated within (year, month).
func Statistics(evs []domain.Event, year, month int) Stats {
	st := Stats{
		ByCategory: make(map[domain.Category]int),
		ByImpact:   make(map[domain.Impact]int),
	}
	days := make(map[string]bool)
	for _, ev := range ForMonth(evs, year, month) {
		st.Total++
		st.ByCategory[ev.Category]++
		if ev.Impact != "" {
			st.ByImpact[ev.Impact]++
		}
		if ev.Category == domain.CategoryEarnings {
			st.Earnings++
		}
		if ev.Impact == domain.ImpactHigh {
			st.HighImpact++
		}
		days[ev.Date] = true
	}
	st.ActiveDays = len(days)
	return st
}
