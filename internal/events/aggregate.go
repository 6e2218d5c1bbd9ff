// Package events indexes calendar events by date and derives the period
// summaries shown alongside the grid: statistics, the earnings wave and the
// split between a day's events and the rest of the month.
package events

import (
	"cmp"
	"slices"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
)

// Index maps a date key to the events on that date. Within a date the input
// order is kept; callers sort for display.
type Index map[string][]domain.Event

// BuildIndex groups events by date key.
func BuildIndex(evs []domain.Event) Index {
	idx := make(Index)
	for _, ev := range evs {
		idx[ev.Date] = append(idx[ev.Date], ev)
	}
	return idx
}

// ForKey returns the events on the given date key.
func (idx Index) ForKey(key string) []domain.Event {
	return idx[key]
}

// ForDate returns the events on (year, month, day).
func (idx Index) ForDate(year, month, day int) []domain.Event {
	return idx[calendar.DateKey(year, month, day)]
}

// Count returns the number of events on the date key.
func (idx Index) Count(key string) int {
	return len(idx[key])
}

// Keys returns the indexed date keys in ascending order.
func (idx Index) Keys() []string {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// DayEvents is a grid cell with the events that fall on it.
type DayEvents struct {
	calendar.Cell
	Events []domain.Event `json:"events"`
}

// Attach merges the index into a grid, row by row.
func Attach(grid [][]calendar.Cell, idx Index) [][]DayEvents {
	out := make([][]DayEvents, len(grid))
	for r, row := range grid {
		out[r] = AttachRow(row, idx)
	}
	return out
}

// AttachRow merges the index into a single row of cells.
func AttachRow(cells []calendar.Cell, idx Index) []DayEvents {
	row := make([]DayEvents, len(cells))
	for i, c := range cells {
		row[i] = DayEvents{Cell: c, Events: idx[c.Key()]}
	}
	return row
}

// ForMonth returns the events dated within (year, month).
func ForMonth(evs []domain.Event, year, month int) []domain.Event {
	k := calendar.MonthKey{Year: year, Month: month}
	var out []domain.Event
	for _, ev := range evs {
		if k.Contains(ev.Date) {
			out = append(out, ev)
		}
	}
	return out
}

// ForRange returns the events dated from start through end inclusive.
func ForRange(evs []domain.Event, start, end calendar.Date) []domain.Event {
	lo, hi := start.Key(), end.Key()
	var out []domain.Event
	for _, ev := range evs {
		if ev.Date >= lo && ev.Date <= hi {
			out = append(out, ev)
		}
	}
	return out
}

// ForWeek returns the events in the seven days starting at weekStart.
func ForWeek(evs []domain.Event, weekStart calendar.Date) []domain.Event {
	return ForRange(evs, weekStart, weekStart.AddDays(calendar.DaysPerWeek-1))
}

// ByCategory returns the events in any of the given categories, in input
// order.
func ByCategory(evs []domain.Event, cs ...domain.Category) []domain.Event {
	var out []domain.Event
	for _, ev := range evs {
		if slices.Contains(cs, ev.Category) {
			out = append(out, ev)
		}
	}
	return out
}

// SortByMarketCapDesc returns a copy of evs ordered by market cap, largest
// first. Events without a market cap go last; ties keep input order.
func SortByMarketCapDesc(evs []domain.Event) []domain.Event {
	out := slices.Clone(evs)
	slices.SortStableFunc(out, func(a, b domain.Event) int {
		switch {
		case a.MarketCap == nil && b.MarketCap == nil:
			return 0
		case a.MarketCap == nil:
			return 1
		case b.MarketCap == nil:
			return -1
		}
		return cmp.Compare(*b.MarketCap, *a.MarketCap)
	})
	return out
}

// Merge concatenates event lists, dropping events whose ID was already seen.
// It unions the months fetched for a week that spans a month boundary.
func Merge(lists ...[]domain.Event) []domain.Event {
	seen := make(map[string]bool)
	out := make([]domain.Event, 0)
	for _, l := range lists {
		for _, ev := range l {
			if ev.ID != "" {
				if seen[ev.ID] {
					continue
				}
				seen[ev.ID] = true
			}
			out = append(out, ev)
		}
	}
	return out
}
