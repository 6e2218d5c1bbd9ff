package source

import (
	"context"
	"fmt"

	"marketcal/internal/domain"
)

// EventsAPI reads the economic indicator and exchange holiday calendar:
//
//	GET {base}/events/calendar?month=jan&year=2026&code=...
type EventsAPI struct {
	api  apiClient
	code string
}

// NewEventsAPI creates an economic/holiday source for the API at baseURL.
func NewEventsAPI(baseURL, code string, opts Options) *EventsAPI {
	return &EventsAPI{api: newAPIClient(baseURL, opts), code: code}
}

func (e *EventsAPI) Name() string { return "events-api" }

type eventsResponse struct {
	Data struct {
		Days []struct {
			Date   string        `json:"date"`
			Count  int           `json:"count"`
			Events []eventRecord `json:"events"`
		} `json:"days"`
	} `json:"data"`
}

type eventRecord struct {
	Type string `json:"type"`

	// economic
	Event    string `json:"event"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
	Impact   string `json:"impact"`
	Time     string `json:"time"`
	Values   struct {
		Previous         *float64 `json:"previous"`
		Estimate         *float64 `json:"estimate"`
		Actual           *float64 `json:"actual"`
		Unit             string   `json:"unit"`
		ChangePercentage *float64 `json:"change_percentage"`
	} `json:"values"`
	Source string `json:"source"`

	// holiday
	Exchange      string `json:"exchange"`
	Name          string `json:"name"`
	IsClosed      bool   `json:"is_closed"`
	AdjustedHours string `json:"adjusted_hours"`
}

// FetchEvents returns the month's economic releases and exchange holidays.
// Records of any other type are ignored.
func (e *EventsAPI) FetchEvents(ctx context.Context, year, month int) ([]domain.Event, error) {
	var resp eventsResponse
	if err := e.api.getJSON(ctx, "/events/calendar", monthQuery(year, month, e.code), &resp); err != nil {
		return nil, fmt.Errorf("fetching events for %04d-%02d: %w", year, month, err)
	}

	evs := []domain.Event{}
	for _, day := range resp.Data.Days {
		if day.Count == 0 {
			continue
		}
		for i, r := range day.Events {
			switch r.Type {
			case "economic":
				impact, err := domain.ParseImpact(r.Impact)
				if err != nil {
					impact = domain.ImpactLow
				}
				evs = append(evs, domain.Event{
					ID:        fmt.Sprintf("%s-%s-%d", r.Event, day.Date, i),
					Date:      day.Date,
					Name:      r.Event,
					Category:  domain.CategoryEconomic,
					Impact:    impact,
					Country:   r.Country,
					Currency:  r.Currency,
					Time:      r.Time,
					Unit:      r.Values.Unit,
					Forecast:  r.Values.Estimate,
					Previous:  r.Values.Previous,
					Actual:    r.Values.Actual,
					ChangePct: r.Values.ChangePercentage,
					Source:    r.Source,
				})
			case "holiday":
				evs = append(evs, domain.Event{
					ID:       fmt.Sprintf("holiday-%s-%d", day.Date, i),
					Date:     day.Date,
					Name:     r.Name,
					Category: domain.CategoryHoliday,
					Impact:   domain.ImpactLow,
					Exchange: r.Exchange,
					Closed:   r.IsClosed,
					Time:     r.AdjustedHours,
					Source:   r.Source,
				})
			}
		}
	}
	return evs, nil
}
