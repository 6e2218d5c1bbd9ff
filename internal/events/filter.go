package events

import (
	"maps"
	"slices"
	"strings"

	"marketcal/internal/domain"
)

// Filters narrows a month of events before it reaches the table. Market cap
// bounds are in billions of dollars; zero means unbounded. An empty Impact or
// Tickers matches everything.
type Filters struct {
	MarketCapMin float64       `json:"market_cap_min,omitempty"`
	MarketCapMax float64       `json:"market_cap_max,omitempty"`
	Impact       domain.Impact `json:"impact,omitempty"`
	Tickers      []string      `json:"tickers,omitempty"`
}

// Active reports whether any filter is set.
func (f Filters) Active() bool {
	return f.MarketCapMin > 0 || f.MarketCapMax > 0 || f.Impact != "" || len(f.Tickers) > 0
}

// Match reports whether ev passes every filter. An event without a market cap
// fails a minimum bound and passes a maximum bound.
func (f Filters) Match(ev domain.Event) bool {
	if f.MarketCapMin > 0 && (ev.MarketCap == nil || *ev.MarketCap < f.MarketCapMin*1e9) {
		return false
	}
	if f.MarketCapMax > 0 && ev.MarketCap != nil && *ev.MarketCap > f.MarketCapMax*1e9 {
		return false
	}
	if f.Impact != "" && ev.Impact != f.Impact {
		return false
	}
	if len(f.Tickers) > 0 {
		ok := false
		for _, t := range f.Tickers {
			if strings.EqualFold(t, ev.Ticker) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Apply returns the events that pass the filters, in input order.
func (f Filters) Apply(evs []domain.Event) []domain.Event {
	if !f.Active() {
		return evs
	}
	var out []domain.Event
	for _, ev := range evs {
		if f.Match(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// Tickers returns the distinct tickers in evs, sorted.
func Tickers(evs []domain.Event) []string {
	set := make(map[string]bool)
	for _, ev := range evs {
		if ev.Ticker != "" {
			set[ev.Ticker] = true
		}
	}
	return slices.Sorted(maps.Keys(set))
}
