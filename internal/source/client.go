package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketcal/internal/util"
)

// Options configures the HTTP-backed sources.
type Options struct {
	Client     *http.Client
	MaxRetries int
	RetryDelay time.Duration
	Limiter    *util.RateLimiter
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// apiClient issues GET requests against a provider base URL with retries and
// rate limiting.
type apiClient struct {
	base string
	opts Options
}

func newAPIClient(base string, opts Options) apiClient {
	return apiClient{base: strings.TrimRight(base, "/"), opts: opts.withDefaults()}
}

// get fetches base+path?query. Client errors (4xx) are not retried.
func (c apiClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body []byte
	err := util.Retry(ctx, c.opts.MaxRetries, c.opts.RetryDelay, func() error {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return util.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.opts.Client.Do(req)
		if err != nil {
			c.opts.Logger.Debug("request failed", "url", redact(u), "error", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			serr := &StatusError{URL: redact(u), Code: resp.StatusCode}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return util.Permanent(serr)
			}
			return serr
		}

		body, err = io.ReadAll(resp.Body)
		return err
	})
	return body, err
}

// getJSON fetches and decodes a JSON response into out.
func (c apiClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// redact hides the access code in logged URLs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("code") {
		q.Set("code", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

var monthAbbrev = [...]string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// monthQuery builds the month/year/code query shared by the calendar
// endpoints.
func monthQuery(year, month int, code string) url.Values {
	return url.Values{
		"month": {monthAbbrev[month-1]},
		"year":  {fmt.Sprint(year)},
		"code":  {code},
	}
}
