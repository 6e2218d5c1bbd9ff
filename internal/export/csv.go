// Package export serializes calendar events to CSV for download.
//
// Every field, header included, is wrapped in double quotes and rows are
// separated by a bare newline with none after the last row. Missing values
// are written as N/A.
package export

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
	"marketcal/internal/events"
)

// Missing is written for an absent value.
const Missing = "N/A"

// Column is one CSV column: its header and how to render an event's value.
type Column struct {
	Header string
	Value  func(domain.Event) string
}

// Kind selects a column layout.
type Kind string

const (
	KindEarnings Kind = "earnings"
	KindEvents   Kind = "events"
	KindEconomic Kind = "economic"
)

// ParseKind parses an export kind; the empty string is KindEarnings.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindEarnings:
		return KindEarnings, nil
	case KindEvents, KindEconomic:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown export kind %q", s)
}

// Domain returns the filename prefix of the kind.
func (k Kind) Domain() string {
	switch k {
	case KindEvents:
		return "Events"
	case KindEconomic:
		return "economic-calendar"
	default:
		return "market-calendar"
	}
}

// Columns returns the column layout of the kind.
func (k Kind) Columns() []Column {
	switch k {
	case KindEvents:
		return EventsColumns
	case KindEconomic:
		return EconomicColumns
	default:
		return EarningsColumns
	}
}

// EarningsColumns is the market calendar layout with raw values.
var EarningsColumns = []Column{
	{"Date", func(e domain.Event) string { return e.Date }},
	{"Ticker", func(e domain.Event) string { return text(e.Ticker) }},
	{"Company Name", func(e domain.Event) string { return text(e.Name) }},
	{"Event Type", func(e domain.Event) string { return strings.ToUpper(string(e.Category)) }},
	{"Market Cap", func(e domain.Event) string { return raw(e.MarketCap) }},
	{"EPS Actual", func(e domain.Event) string { return raw(e.EPSActual) }},
	{"EPS Forecast", func(e domain.Event) string { return raw(e.EPSForecast) }},
	{"Revenue Actual", func(e domain.Event) string { return raw(e.RevenueActual) }},
	{"Revenue Forecast", func(e domain.Event) string { return raw(e.RevenueForecast) }},
}

// EventsColumns is the events page layout, with money in billions.
var EventsColumns = []Column{
	{"Date", func(e domain.Event) string { return e.Date }},
	{"Ticker", func(e domain.Event) string { return text(e.Ticker) }},
	{"Company Name", func(e domain.Event) string { return text(e.Name) }},
	{"Market Cap (B)", func(e domain.Event) string { return billions(e.MarketCap) }},
	{"EPS Forecast", func(e domain.Event) string { return fixed(e.EPSForecast) }},
	{"EPS Actual", func(e domain.Event) string { return fixed(e.EPSActual) }},
	{"Revenue Forecast (B)", func(e domain.Event) string { return billions(e.RevenueForecast) }},
	{"Revenue Actual (B)", func(e domain.Event) string { return billions(e.RevenueActual) }},
	{"Impact Level", func(e domain.Event) string { return text(string(e.Impact)) }},
}

// EconomicColumns is the economic calendar layout. Holidays put their
// exchange in the country column.
var EconomicColumns = []Column{
	{"Date", func(e domain.Event) string { return e.Date }},
	{"Type", func(e domain.Event) string {
		if e.Category == domain.CategoryHoliday {
			return "Holiday"
		}
		return "Economic"
	}},
	{"Event", func(e domain.Event) string { return text(e.Name) }},
	{"Country", func(e domain.Event) string {
		if e.Category == domain.CategoryHoliday {
			return text(e.Exchange)
		}
		return text(e.Country)
	}},
	{"Currency", func(e domain.Event) string { return text(e.Currency) }},
	{"Impact", func(e domain.Event) string { return text(string(e.Impact)) }},
	{"Time", func(e domain.Event) string { return text(e.Time) }},
	{"Previous", func(e domain.Event) string { return raw(e.Previous) }},
	{"Estimate", func(e domain.Event) string { return raw(e.Forecast) }},
	{"Actual", func(e domain.Event) string { return raw(e.Actual) }},
}

// Write writes the header row and one row per event.
func Write(w io.Writer, cols []Column, evs []domain.Event) error {
	bw := bufio.NewWriter(w)
	fields := make([]string, len(cols))
	for i, c := range cols {
		fields[i] = c.Header
	}
	writeRow(bw, fields)
	for _, ev := range evs {
		for i, c := range cols {
			fields[i] = c.Value(ev)
		}
		bw.WriteByte('\n')
		writeRow(bw, fields)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}

// Month writes the events of kind dated within (year, month). The economic
// layout keeps economic releases and holidays interleaved in date order.
func Month(w io.Writer, kind Kind, evs []domain.Event, year, month int) error {
	period := events.ForMonth(evs, year, month)
	if kind == KindEconomic {
		period = events.ByCategory(period, domain.CategoryEconomic, domain.CategoryHoliday)
		slices.SortStableFunc(period, func(a, b domain.Event) int { return strings.Compare(a.Date, b.Date) })
	}
	return Write(w, kind.Columns(), period)
}

// String renders evs to a CSV string.
func String(cols []Column, evs []domain.Event) string {
	var b strings.Builder
	_ = Write(&b, cols, evs)
	return b.String()
}

// Filename returns "{domain}-{MonthName}-{Year}.csv".
func Filename(domain string, year, month int) string {
	return fmt.Sprintf("%s-%s-%d.csv", domain, calendar.MonthName(month), year)
}

func writeRow(w *bufio.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(f, `"`, `""`))
		w.WriteByte('"')
	}
}

func text(s string) string {
	if s == "" {
		return Missing
	}
	return s
}

func raw(v *float64) string {
	if v == nil {
		return Missing
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fixed(v *float64) string {
	if v == nil {
		return Missing
	}
	return decimal.NewFromFloat(*v).StringFixed(2)
}

var billion = decimal.New(1, 9)

func billions(v *float64) string {
	if v == nil {
		return Missing
	}
	return decimal.NewFromFloat(*v).Div(billion).StringFixed(2)
}
