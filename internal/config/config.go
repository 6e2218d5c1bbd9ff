package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the marketcal services and tools.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Sources  Sources  `yaml:"sources"`
	Calendar Calendar `yaml:"calendar"`
	Refresh  Refresh  `yaml:"refresh"`
}

// Storage holds paths for the event cache and archive.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`

	// CacheTTLMinutes is how long a cached month is served before the
	// sources are queried again.
	CacheTTLMinutes int  `yaml:"cache_ttl_minutes"`
	Archive         bool `yaml:"archive"` // also keep Parquet files per month
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca APIs. Holidays come
// from the trading calendar and news from the market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Sources lists where events come from.
type Sources struct {
	EarningsURL     string   `yaml:"earnings_url"`
	EarningsCode    string   `yaml:"earnings_code"`
	EventsURL       string   `yaml:"events_url"`
	ICSFeeds        []string `yaml:"ics_feeds"`
	AlpacaHolidays  bool     `yaml:"alpaca_holidays"`
	News            bool     `yaml:"news"`
	NewsSymbols     []string `yaml:"news_symbols"`
	RemoteURL       string   `yaml:"remote_url"`
	MaxRetries      int      `yaml:"max_retries"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
}

// Calendar holds presentation defaults.
type Calendar struct {
	DefaultView string `yaml:"default_view"`
	PageSize    int    `yaml:"page_size"`
	MonthGrid   string `yaml:"month_grid"`
}

// Refresh controls scheduled prefetch of upcoming months.
type Refresh struct {
	Enabled     bool   `yaml:"enabled"`
	Schedule    string `yaml:"schedule"`
	MonthsAhead int    `yaml:"months_ahead"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// EnvPath names the variable consulted when no config path is given.
const EnvPath = "MARKETCAL_CONFIG"

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, then applies .env and environment variable overrides and
// fills defaults. An empty path yields a default configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize fills zero-valued fields with their defaults.
func (c *Config) Normalize() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Storage.DataDir, "marketcal.db")
	}
	if c.Storage.CacheTTLMinutes <= 0 {
		c.Storage.CacheTTLMinutes = 360
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Sources.MaxRetries <= 0 {
		c.Sources.MaxRetries = 3
	}
	if c.Sources.TimeoutSeconds <= 0 {
		c.Sources.TimeoutSeconds = 15
	}
	if c.Calendar.DefaultView == "" {
		c.Calendar.DefaultView = "week"
	}
	if c.Calendar.PageSize == 0 {
		c.Calendar.PageSize = 6
	}
	if c.Calendar.MonthGrid == "" {
		c.Calendar.MonthGrid = "fixed"
	}
	if c.Refresh.Schedule == "" {
		c.Refresh.Schedule = "0 6 * * *"
	}
	if c.Refresh.MonthsAhead <= 0 {
		c.Refresh.MonthsAhead = 2
	}
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	switch c.Calendar.DefaultView {
	case "week", "month":
	default:
		return fmt.Errorf("calendar.default_view: unknown view %q", c.Calendar.DefaultView)
	}
	switch c.Calendar.PageSize {
	case 6, 25, 50, 100:
	default:
		return fmt.Errorf("calendar.page_size: %d is not one of 6, 25, 50, 100", c.Calendar.PageSize)
	}
	switch c.Calendar.MonthGrid {
	case "fixed", "variable":
	default:
		return fmt.Errorf("calendar.month_grid: unknown mode %q", c.Calendar.MonthGrid)
	}
	return nil
}

// Addr is the HTTP listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARKETCAL_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("MARKETCAL_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("MARKETCAL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MARKETCAL_EARNINGS_URL"); v != "" {
		cfg.Sources.EarningsURL = v
	}
	if v := os.Getenv("MARKETCAL_EARNINGS_CODE"); v != "" {
		cfg.Sources.EarningsCode = v
	}
	if v := os.Getenv("MARKETCAL_EVENTS_URL"); v != "" {
		cfg.Sources.EventsURL = v
	}
	if v := os.Getenv("MARKETCAL_ICS_FEEDS"); v != "" {
		cfg.Sources.ICSFeeds = strings.Split(v, ",")
	}
	if v := os.Getenv("MARKETCAL_REMOTE_URL"); v != "" {
		cfg.Sources.RemoteURL = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars win over the ALPACA_* names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
