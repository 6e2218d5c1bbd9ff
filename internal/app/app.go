// Package app assembles the event pipeline from configuration: provider
// sources fanned in by source.Multi, read through the SQLite cache, with an
// optional Parquet archive.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"marketcal/internal/calendar"
	"marketcal/internal/config"
	"marketcal/internal/httpapi"
	"marketcal/internal/news"
	"marketcal/internal/source"
	"marketcal/internal/store"
	"marketcal/internal/util"
	"marketcal/pkg/marketcal"
)

// ErrNoSources is returned when the configuration enables no event source.
var ErrNoSources = errors.New("no event sources configured")

// App is the assembled pipeline.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Source is the cached fan-in of every configured provider.
	Source *source.Cached
	// Quarters serves previous-quarter lookups; nil when no provider offers
	// them.
	Quarters httpapi.QuarterSource
	Cache    *store.SQLiteStore
}

// New builds the pipeline described by cfg.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	providers, quarters := Providers(cfg, logger)
	if len(providers) == 0 {
		return nil, ErrNoSources
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	cache, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}

	var upstream source.EventSource = providers[0]
	if len(providers) > 1 {
		upstream = source.NewMulti(logger, providers...)
	}
	cached := source.NewCached(upstream, cache, time.Duration(cfg.Storage.CacheTTLMinutes)*time.Minute, logger)
	if cfg.Storage.Archive {
		cached.Archive = store.NewParquetStore(cfg.Storage.DataDir)
	}

	logger.Info("event pipeline ready", "source", cached.Name(), "cache", cfg.Storage.SQLitePath, "archive", cfg.Storage.Archive)
	return &App{
		Config:   cfg,
		Logger:   logger,
		Source:   cached,
		Quarters: quarters,
		Cache:    cache,
	}, nil
}

// Providers returns the upstream sources enabled by cfg and the first one
// able to answer previous-quarter lookups.
func Providers(cfg *config.Config, logger *slog.Logger) ([]source.EventSource, httpapi.QuarterSource) {
	opts := source.Options{
		Client:     &http.Client{Timeout: time.Duration(cfg.Sources.TimeoutSeconds) * time.Second},
		MaxRetries: cfg.Sources.MaxRetries,
		Limiter:    util.NewRateLimiter(cfg.Sources.RateLimitPerMin, 5),
		Logger:     logger,
	}

	var srcs []source.EventSource
	var quarters httpapi.QuarterSource
	if u := cfg.Sources.EarningsURL; u != "" {
		e := source.NewEarningsAPI(u, cfg.Sources.EarningsCode, opts)
		srcs = append(srcs, e)
		quarters = e
	}
	if u := cfg.Sources.EventsURL; u != "" {
		srcs = append(srcs, source.NewEventsAPI(u, cfg.Sources.EarningsCode, opts))
	}
	for _, feed := range cfg.Sources.ICSFeeds {
		srcs = append(srcs, source.NewICSSource(feed, opts))
	}
	if cfg.Sources.AlpacaHolidays {
		if cfg.Alpaca.APIKey == "" {
			logger.Warn("alpaca holidays enabled without credentials, skipping")
		} else {
			srcs = append(srcs, source.NewAlpacaHolidays(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL))
		}
	}
	if cfg.Sources.News && len(cfg.Sources.NewsSymbols) > 0 {
		srcs = append(srcs, news.NewSource(cfg.Sources.NewsSymbols, cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, logger))
	}
	if u := cfg.Sources.RemoteURL; u != "" {
		remote := marketcal.NewClient(u)
		srcs = append(srcs, remote)
		if quarters == nil {
			quarters = remote
		}
	}
	return srcs, quarters
}

// Handler returns the HTTP API over the pipeline.
func (a *App) Handler() http.Handler {
	view, err := calendar.ParseViewMode(a.Config.Calendar.DefaultView)
	if err != nil {
		view = calendar.ViewWeek
	}
	return httpapi.NewCalendarServer(a.Source, a.Quarters, httpapi.Options{
		DefaultView:  view,
		PageSize:     a.Config.Calendar.PageSize,
		VariableGrid: a.Config.Calendar.MonthGrid == "variable",
	}, a.Logger).Handler()
}

// Loader returns a period loader over the pipeline.
func (a *App) Loader() *source.Loader {
	return source.NewLoader(a.Source, a.Logger)
}

// Close releases the cache.
func (a *App) Close() error {
	return a.Cache.Close()
}
