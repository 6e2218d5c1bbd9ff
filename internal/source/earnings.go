package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"marketcal/internal/dashboard"
	"marketcal/internal/domain"
)

// EarningsAPI reads the earnings calendar endpoint:
//
//	GET {base}/earnings/calendar?month=jan&year=2026&code=...
type EarningsAPI struct {
	api  apiClient
	code string
}

// NewEarningsAPI creates an earnings source for the API at baseURL. code is
// the access code sent with every calendar request.
func NewEarningsAPI(baseURL, code string, opts Options) *EarningsAPI {
	return &EarningsAPI{api: newAPIClient(baseURL, opts), code: code}
}

func (e *EarningsAPI) Name() string { return "earnings-api" }

type earningsResponse struct {
	Data struct {
		Days []struct {
			Date   string           `json:"date"`
			Count  int              `json:"count"`
			Events []earningsRecord `json:"events"`
		} `json:"days"`
	} `json:"data"`
}

type earningsRecord struct {
	Ticker          string   `json:"ticker"`
	CompanyName     string   `json:"company_name"`
	MarketCap       *float64 `json:"market_cap"`
	EPSActual       *float64 `json:"eps_actual"`
	EPSForecast     *float64 `json:"eps_forecast"`
	RevenueActual   *float64 `json:"revenue_actual"`
	RevenueForecast *float64 `json:"revenue_forecast"`
	ReportingTime   string   `json:"reporting_time"`
}

// FetchEvents returns the month's earnings releases. Days with a zero count
// are skipped; the per-day position keeps IDs unique.
func (e *EarningsAPI) FetchEvents(ctx context.Context, year, month int) ([]domain.Event, error) {
	var resp earningsResponse
	if err := e.api.getJSON(ctx, "/earnings/calendar", monthQuery(year, month, e.code), &resp); err != nil {
		return nil, fmt.Errorf("fetching earnings for %04d-%02d: %w", year, month, err)
	}

	evs := []domain.Event{}
	for _, day := range resp.Data.Days {
		if day.Count == 0 {
			continue
		}
		for i, r := range day.Events {
			evs = append(evs, domain.NewEarningsEvent(domain.EarningsInput{
				Date:            day.Date,
				Ticker:          r.Ticker,
				Name:            r.CompanyName,
				ReportingTime:   r.ReportingTime,
				MarketCap:       r.MarketCap,
				EPSForecast:     r.EPSForecast,
				EPSActual:       r.EPSActual,
				RevenueForecast: r.RevenueForecast,
				RevenueActual:   r.RevenueActual,
				Source:          e.Name(),
			}, i))
		}
	}
	return evs, nil
}

type previousResponse struct {
	Data struct {
		Symbol   string                    `json:"symbol"`
		Earnings []dashboard.QuarterReport `json:"earnings"`
	} `json:"data"`
}

// PreviousQuarters returns the ticker's recent reported quarters with their
// surprise figures, oldest first:
//
//	GET {base}/earnings/previous?ticker=MSFT
func (e *EarningsAPI) PreviousQuarters(ctx context.Context, ticker string) (dashboard.QuarterHistory, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return dashboard.QuarterHistory{}, fmt.Errorf("empty ticker")
	}

	var resp previousResponse
	if err := e.api.getJSON(ctx, "/earnings/previous", url.Values{"ticker": {ticker}}, &resp); err != nil {
		return dashboard.QuarterHistory{}, fmt.Errorf("fetching previous earnings for %s: %w", ticker, err)
	}
	if resp.Data.Earnings == nil {
		return dashboard.QuarterHistory{}, fmt.Errorf("previous earnings for %s: missing earnings list", ticker)
	}

	symbol := resp.Data.Symbol
	if symbol == "" {
		symbol = ticker
	}
	return dashboard.SummarizeQuarters(symbol, resp.Data.Earnings), nil
}
