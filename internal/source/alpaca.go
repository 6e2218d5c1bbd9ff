package source

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
)

// regularClose is the NYSE closing time as reported by the Alpaca calendar.
const regularClose = "16:00"

// tradingCalendar is the part of the Alpaca client AlpacaHolidays uses.
type tradingCalendar interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// AlpacaHolidays derives market holidays from the Alpaca trading calendar:
// a weekday missing from the calendar is a full closure and a day closing
// before 16:00 is an early close.
type AlpacaHolidays struct {
	client tradingCalendar
}

// NewAlpacaHolidays creates a holiday source using the Alpaca trading API.
func NewAlpacaHolidays(apiKey, apiSecret, baseURL string) *AlpacaHolidays {
	return &AlpacaHolidays{client: alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})}
}

func (a *AlpacaHolidays) Name() string { return "alpaca-holidays" }

// FetchEvents returns the month's closures. A month the calendar has no
// trading days for at all yields no events rather than a month of holidays.
func (a *AlpacaHolidays) FetchEvents(ctx context.Context, year, month int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	first := calendar.NewDate(year, month, 1)
	last := calendar.NewDate(year, month, calendar.DaysInMonth(year, month))

	days, err := a.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: first.Time(),
		End:   last.Time(),
	})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}

	evs := []domain.Event{}
	if len(days) == 0 {
		return evs, nil
	}

	trading := make(map[string]alpaca.CalendarDay, len(days))
	for _, d := range days {
		trading[d.Date] = d
	}

	for d := first; !d.After(last); d = d.AddDays(1) {
		wd := d.Weekday()
		if wd == int(time.Saturday) || wd == int(time.Sunday) {
			continue
		}
		key := d.Key()
		day, open := trading[key]
		switch {
		case !open:
			evs = append(evs, domain.Event{
				ID:       "holiday-" + key + "-alpaca",
				Date:     key,
				Name:     "Market Closed",
				Category: domain.CategoryHoliday,
				Impact:   domain.ImpactLow,
				Exchange: "NYSE",
				Closed:   true,
				Source:   a.Name(),
			})
		case day.Close != "" && day.Close < regularClose:
			evs = append(evs, domain.Event{
				ID:       "holiday-" + key + "-alpaca",
				Date:     key,
				Name:     "Early Close",
				Category: domain.CategoryHoliday,
				Impact:   domain.ImpactLow,
				Exchange: "NYSE",
				Time:     day.Open + "-" + day.Close,
				Source:   a.Name(),
			})
		}
	}
	return evs, nil
}
