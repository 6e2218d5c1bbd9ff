package news

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marketcal/internal/domain"
)

type fakeAlpaca struct {
	news []marketdata.News
	err  error
}

func (f fakeAlpaca) GetNews(marketdata.GetNewsRequest) ([]marketdata.News, error) {
	return f.news, f.err
}

const googleRSS = `<?xml version="1.0"?>
<rss><channel>
<item><title>Microsoft beats estimates - Reuters</title><link>https://example.com/a</link>
<pubDate>Thu, 30 Jan 2025 01:15:00 +0000</pubDate><description>&lt;b&gt;Cloud&lt;/b&gt; growth</description></item>
<item><title>Old story - Wire</title><link>https://example.com/old</link>
<pubDate>Mon, 30 Dec 2024 12:00:00 +0000</pubDate></item>
<item><title>Bad date</title><pubDate>yesterday</pubDate></item>
</channel></rss>`

func testSource(t *testing.T, handler http.HandlerFunc, alpaca newsClient) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &Source{
		Symbols:   []string{"MSFT"},
		alpaca:    alpaca,
		client:    srv.Client(),
		googleURL: srv.URL + "/google",
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		loc:       easternTime(),
		maxPerDay: 5,
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<p>Hello &amp;  <b>world</b></p>")
	if got != "Hello & world" {
		t.Errorf("StripHTML = %q", got)
	}
}

func TestFetchGoogleNews(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		io.WriteString(w, googleRSS)
	}))
	defer srv.Close()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)
	articles, err := FetchGoogleNews(context.Background(), srv.Client(), srv.URL, "MSFT", start, end)
	if err != nil {
		t.Fatalf("FetchGoogleNews: %v", err)
	}
	if query != "MSFT stock" {
		t.Errorf("query = %q", query)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	a := articles[0]
	if a.Headline != "Microsoft beats estimates" {
		t.Errorf("Headline = %q, want publisher suffix trimmed", a.Headline)
	}
	if a.Content != "Cloud growth" || a.URL != "https://example.com/a" {
		t.Errorf("article = %+v", a)
	}
}

func TestSourceFetchEvents(t *testing.T) {
	alpaca := fakeAlpaca{news: []marketdata.News{{
		ID:        42,
		Headline:  "Microsoft to report Q2 results",
		Summary:   "<p>Earnings preview</p>",
		URL:       "https://example.com/alpaca",
		CreatedAt: time.Date(2025, 1, 29, 14, 0, 0, 0, time.UTC),
	}}}
	src := testSource(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, googleRSS)
	}, alpaca)

	evs, err := src.FetchEvents(context.Background(), 2025, 1)
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}

	// 01:15 UTC on the 30th is the evening of the 29th in New York.
	for _, ev := range evs {
		if ev.Date != "2025-01-29" {
			t.Errorf("%q dated %s, want 2025-01-29", ev.Headline, ev.Date)
		}
		if ev.Category != domain.CategoryNews || ev.Ticker != "MSFT" {
			t.Errorf("event = %+v", ev)
		}
		if !strings.HasPrefix(ev.ID, "news-") {
			t.Errorf("ID = %q", ev.ID)
		}
	}
	if evs[0].Source != "alpaca" {
		t.Errorf("first event source = %q, want the earlier alpaca article", evs[0].Source)
	}
}

func TestSourceCapsPerDay(t *testing.T) {
	var items strings.Builder
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&items, "<item><title>Story %d</title><link>https://example.com/%d</link><pubDate>Wed, 15 Jan 2025 %02d:00:00 +0000</pubDate></item>", i, i, 14+i)
	}
	src := testSource(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<rss><channel>%s</channel></rss>", items.String())
	}, nil)

	evs, err := src.FetchEvents(context.Background(), 2025, 1)
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(evs) != 5 {
		t.Errorf("got %d events, want 5", len(evs))
	}
}

func TestSourceAllFeedsFail(t *testing.T) {
	src := testSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, fakeAlpaca{err: errors.New("forbidden")})

	if _, err := src.FetchEvents(context.Background(), 2025, 1); err == nil {
		t.Error("expected error when every feed fails")
	}
}

func TestSourceFutureMonth(t *testing.T) {
	src := testSource(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a future month")
	}, nil)

	next := time.Now().AddDate(0, 2, 0)
	evs, err := src.FetchEvents(context.Background(), next.Year(), int(next.Month()))
	if err != nil || len(evs) != 0 {
		t.Errorf("FetchEvents = %v, %v", evs, err)
	}
}
