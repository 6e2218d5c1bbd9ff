package news

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
	_ "time/tzdata" // New York dates without a system zoneinfo.

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/uuid"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
)

// Source reports news for a fixed watch list as calendar events, one per
// article, dated in US Eastern time.
type Source struct {
	Symbols []string

	alpaca    newsClient
	client    *http.Client
	googleURL string
	globeURL  string
	logger    *slog.Logger
	loc       *time.Location
	maxPerDay int
}

// NewSource creates a news source. Alpaca is used when apiKey is set; the
// RSS feeds need no credentials.
func NewSource(symbols []string, apiKey, apiSecret string, logger *slog.Logger) *Source {
	s := &Source{
		Symbols:   symbols,
		client:    defaultHTTPClient,
		googleURL: GoogleNewsURL,
		globeURL:  GlobeNewswireURL,
		logger:    logger,
		loc:       easternTime(),
		maxPerDay: 5,
	}
	if apiKey != "" {
		s.alpaca = marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		})
	}
	return s
}

func easternTime() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *Source) Name() string { return "news" }

// FetchEvents returns the month's articles for every watched symbol, at most
// maxPerDay per symbol and day, newest dropped first. Symbols whose feeds all
// fail are skipped.
func (s *Source) FetchEvents(ctx context.Context, year, month int) ([]domain.Event, error) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	if now := time.Now(); end.After(now) {
		end = now
	}

	evs := []domain.Event{}
	if start.After(end) {
		return evs, nil
	}

	var errs []error
	for _, sym := range s.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		articles, err := s.fetchSymbol(ctx, sym, start, end)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		evs = append(evs, s.toEvents(articles)...)
	}
	if len(s.Symbols) > 0 && len(errs) == len(s.Symbols) {
		return nil, errors.Join(errs...)
	}

	slices.SortStableFunc(evs, func(a, b domain.Event) int { return strings.Compare(a.Date, b.Date) })
	return evs, nil
}

// fetchSymbol queries every feed for one symbol, failing only when all do.
func (s *Source) fetchSymbol(ctx context.Context, sym string, start, end time.Time) ([]Article, error) {
	var all []Article
	var errs []error
	feeds := 0

	if s.alpaca != nil {
		feeds++
		a, err := FetchAlpacaNews(s.alpaca, sym, start, end)
		if err != nil {
			s.logger.Warn("alpaca news failed", "symbol", sym, "error", err)
			errs = append(errs, err)
		}
		all = append(all, a...)
	}
	if s.googleURL != "" {
		feeds++
		a, err := FetchGoogleNews(ctx, s.client, s.googleURL, sym, start, end)
		if err != nil {
			s.logger.Warn("google news failed", "symbol", sym, "error", err)
			errs = append(errs, err)
		}
		all = append(all, a...)
	}
	if s.globeURL != "" {
		feeds++
		a, err := FetchGlobeNewswire(ctx, s.client, s.globeURL, sym, start, end)
		if err != nil {
			s.logger.Warn("globenewswire failed", "symbol", sym, "error", err)
			errs = append(errs, err)
		}
		all = append(all, a...)
	}

	if feeds > 0 && len(errs) == feeds {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

// toEvents converts articles to events, capping each day per symbol.
func (s *Source) toEvents(articles []Article) []domain.Event {
	slices.SortStableFunc(articles, func(a, b Article) int { return a.Time.Compare(b.Time) })

	perDay := make(map[string]int)
	seen := make(map[string]bool)
	var evs []domain.Event
	for _, a := range articles {
		t := a.Time.In(s.loc)
		date := calendar.DateKey(t.Year(), int(t.Month()), t.Day())
		key := a.Symbol + "|" + strings.ToLower(a.Headline)
		if seen[key] || perDay[a.Symbol+date] >= s.maxPerDay {
			continue
		}
		seen[key] = true
		perDay[a.Symbol+date]++

		evs = append(evs, domain.Event{
			ID:       "news-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(a.Source+"|"+a.ID+"|"+a.Headline)).String(),
			Date:     date,
			Ticker:   strings.ToUpper(a.Symbol),
			Name:     a.Headline,
			Category: domain.CategoryNews,
			Impact:   domain.ImpactLow,
			Time:     t.Format("15:04:05"),
			Source:   a.Source,
			Headline: a.Headline,
			URL:      a.URL,
		})
	}
	return evs
}
