// Package news turns ticker news into calendar events. Articles come from the
// Alpaca market data API, Google News RSS and GlobeNewswire RSS.
package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// Article is a single news article from any source.
type Article struct {
	ID       string
	Symbol   string
	Time     time.Time
	Source   string
	Headline string
	Content  string
	URL      string
}

// --- HTTP client ---

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// --- Alpaca ---

// newsClient is the part of the Alpaca market data client used here.
type newsClient interface {
	GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error)
}

// FetchAlpacaNews fetches news from the Alpaca marketdata API.
func FetchAlpacaNews(mdc newsClient, symbol string, start, end time.Time) ([]Article, error) {
	alpacaNews, err := mdc.GetNews(marketdata.GetNewsRequest{
		Symbols:    []string{symbol},
		Start:      start,
		End:        end,
		TotalLimit: 50,
		Sort:       marketdata.SortAsc,
	})
	if err != nil {
		return nil, err
	}

	articles := make([]Article, 0, len(alpacaNews))
	for _, a := range alpacaNews {
		articles = append(articles, Article{
			ID:       fmt.Sprintf("alpaca-%d", a.ID),
			Symbol:   symbol,
			Time:     a.CreatedAt,
			Source:   "alpaca",
			Headline: a.Headline,
			Content:  StripHTML(a.Summary),
			URL:      a.URL,
		})
	}
	return articles, nil
}

// --- RSS ---

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	GUID    string `xml:"guid"`
	PubDate string `xml:"pubDate"`
	Desc    string `xml:"description"`
}

// rssFeed fetches and decodes an RSS document.
func rssFeed(ctx context.Context, client *http.Client, u string) (rssResponse, error) {
	var rss rssResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return rss, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := client.Do(req)
	if err != nil {
		return rss, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rss, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return rss, err
	}
	return rss, nil
}

var pubDateLayouts = []string{time.RFC1123Z, time.RFC1123, "Mon, 02 Jan 2006 15:04 MST"}

func parsePubDate(s string) (time.Time, bool) {
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// GoogleNewsURL is the Google News RSS search endpoint.
const GoogleNewsURL = "https://news.google.com/rss/search"

// FetchGoogleNews fetches news from Google News RSS. base is normally
// GoogleNewsURL.
func FetchGoogleNews(ctx context.Context, client *http.Client, base, symbol string, start, end time.Time) ([]Article, error) {
	q := url.Values{
		"q":    {symbol + " stock"},
		"hl":   {"en-US"},
		"gl":   {"US"},
		"ceid": {"US:en"},
	}
	rss, err := rssFeed(ctx, client, base+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var articles []Article
	for _, item := range rss.Channel.Items {
		t, ok := parsePubDate(item.PubDate)
		if !ok || t.Before(start) || t.After(end) {
			continue
		}
		// Google appends " - Publisher" to titles.
		headline := item.Title
		if idx := strings.LastIndex(headline, " - "); idx > 0 {
			headline = headline[:idx]
		}
		articles = append(articles, Article{
			ID:       itemID(item),
			Symbol:   symbol,
			Time:     t,
			Source:   "google",
			Headline: headline,
			Content:  StripHTML(item.Desc),
			URL:      item.Link,
		})
	}
	return articles, nil
}

// GlobeNewswireURL is the GlobeNewswire keyword feed prefix.
const GlobeNewswireURL = "https://www.globenewswire.com/RssFeed/keyword/"

// FetchGlobeNewswire fetches press releases from GlobeNewswire RSS. base is
// normally GlobeNewswireURL.
func FetchGlobeNewswire(ctx context.Context, client *http.Client, base, symbol string, start, end time.Time) ([]Article, error) {
	u := base + url.PathEscape(symbol) + "/feedTitle/GlobeNewswire.xml"
	rss, err := rssFeed(ctx, client, u)
	if err != nil {
		return nil, err
	}

	var articles []Article
	for _, item := range rss.Channel.Items {
		t, ok := parsePubDate(item.PubDate)
		if !ok || t.Before(start) || t.After(end) {
			continue
		}
		articles = append(articles, Article{
			ID:       itemID(item),
			Symbol:   symbol,
			Time:     t,
			Source:   "globenewswire",
			Headline: item.Title,
			Content:  StripHTML(item.Desc),
			URL:      item.Link,
		})
	}
	return articles, nil
}

func itemID(item rssItem) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

// --- HTML helpers ---

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes HTML tags and normalizes whitespace.
func StripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
