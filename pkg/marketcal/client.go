// Package marketcal is a Go client for the marketcal-server HTTP API. A
// Client is itself an event source, so one server can feed another
// marketcal process.
package marketcal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketcal/internal/dashboard"
	"marketcal/internal/domain"
	"marketcal/internal/source"
)

// Client provides a Go SDK for interacting with the marketcal-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new marketcal API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name identifies the client as an event source.
func (c *Client) Name() string { return "remote:" + c.baseURL }

// FetchEvents retrieves one month of events from GET /api/events. A month
// the server reports as incomplete comes back with a *source.PartialError.
func (c *Client) FetchEvents(ctx context.Context, year, month int) ([]domain.Event, error) {
	q := url.Values{"year": {strconv.Itoa(year)}, "month": {strconv.Itoa(month)}}
	var resp struct {
		Events     []domain.Event `json:"events"`
		Incomplete bool           `json:"incomplete"`
	}
	if err := c.get(ctx, "/api/events?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Events == nil {
		resp.Events = []domain.Event{}
	}
	if resp.Incomplete {
		return resp.Events, &source.PartialError{
			Events: resp.Events,
			Err:    fmt.Errorf("%s reported %04d-%02d incomplete", c.baseURL, year, month),
		}
	}
	return resp.Events, nil
}

// PreviousQuarters retrieves a ticker's recent quarters.
func (c *Client) PreviousQuarters(ctx context.Context, ticker string) (dashboard.QuarterHistory, error) {
	var h dashboard.QuarterHistory
	err := c.get(ctx, "/api/quarters/"+url.PathEscape(strings.ToUpper(ticker)), &h)
	return h, err
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	var resp map[string]string
	if err := c.get(ctx, "/health", &resp); err != nil {
		return err
	}
	if resp["status"] != "ok" {
		return fmt.Errorf("server status %q", resp["status"])
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
