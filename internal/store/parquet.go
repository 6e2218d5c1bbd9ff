package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"
)

// Compile-time interface check.
var _ EventStore = (*ParquetStore)(nil)

// ParquetStore implements EventStore using one Parquet file per month. Writes
// merge with the existing file by event ID, so the archive keeps events that
// a later fetch no longer returns.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// EventRecord is the Parquet schema for a calendar event.
type EventRecord struct {
	ID            string `parquet:"id"`
	Date          string `parquet:"date"`
	Ticker        string `parquet:"ticker"`
	Name          string `parquet:"name"`
	Category      string `parquet:"category"`
	Impact        string `parquet:"impact"`
	ReportingTime string `parquet:"reporting_time"`
	Session       string `parquet:"session"`

	MarketCap       *float64 `parquet:"market_cap,optional"`
	EPSForecast     *float64 `parquet:"eps_forecast,optional"`
	EPSActual       *float64 `parquet:"eps_actual,optional"`
	RevenueForecast *float64 `parquet:"revenue_forecast,optional"`
	RevenueActual   *float64 `parquet:"revenue_actual,optional"`

	Country   string   `parquet:"country"`
	Currency  string   `parquet:"currency"`
	Time      string   `parquet:"time"`
	Unit      string   `parquet:"unit"`
	Forecast  *float64 `parquet:"forecast,optional"`
	Previous  *float64 `parquet:"previous,optional"`
	Actual    *float64 `parquet:"actual,optional"`
	ChangePct *float64 `parquet:"change_pct,optional"`

	Exchange string `parquet:"exchange"`
	Closed   bool   `parquet:"closed"`
	Source   string `parquet:"source"`
	Headline string `parquet:"headline"`
	URL      string `parquet:"url"`
}

func toRecord(ev domain.Event) EventRecord {
	return EventRecord{
		ID:              ev.ID,
		Date:            ev.Date,
		Ticker:          ev.Ticker,
		Name:            ev.Name,
		Category:        string(ev.Category),
		Impact:          string(ev.Impact),
		ReportingTime:   ev.ReportingTime,
		Session:         ev.Session.String(),
		MarketCap:       ev.MarketCap,
		EPSForecast:     ev.EPSForecast,
		EPSActual:       ev.EPSActual,
		RevenueForecast: ev.RevenueForecast,
		RevenueActual:   ev.RevenueActual,
		Country:         ev.Country,
		Currency:        ev.Currency,
		Time:            ev.Time,
		Unit:            ev.Unit,
		Forecast:        ev.Forecast,
		Previous:        ev.Previous,
		Actual:          ev.Actual,
		ChangePct:       ev.ChangePct,
		Exchange:        ev.Exchange,
		Closed:          ev.Closed,
		Source:          ev.Source,
		Headline:        ev.Headline,
		URL:             ev.URL,
	}
}

func (r EventRecord) toEvent() domain.Event {
	var session domain.Session
	// An unrecognised name leaves the session unknown.
	_ = session.UnmarshalText([]byte(r.Session))

	return domain.Event{
		ID:              r.ID,
		Date:            r.Date,
		Ticker:          r.Ticker,
		Name:            r.Name,
		Category:        domain.Category(r.Category),
		Impact:          domain.Impact(r.Impact),
		ReportingTime:   r.ReportingTime,
		Session:         session,
		MarketCap:       r.MarketCap,
		EPSForecast:     r.EPSForecast,
		EPSActual:       r.EPSActual,
		RevenueForecast: r.RevenueForecast,
		RevenueActual:   r.RevenueActual,
		Country:         r.Country,
		Currency:        r.Currency,
		Time:            r.Time,
		Unit:            r.Unit,
		Forecast:        r.Forecast,
		Previous:        r.Previous,
		Actual:          r.Actual,
		ChangePct:       r.ChangePct,
		Exchange:        r.Exchange,
		Closed:          r.Closed,
		Source:          r.Source,
		Headline:        r.Headline,
		URL:             r.URL,
	}
}

// ---------------------------------------------------------------------------
// EventStore implementation
// ---------------------------------------------------------------------------

// WriteMonth merges evs into the month's archive file at:
//
//	<DataDir>/events/<YYYY>/<MM>.parquet
func (s *ParquetStore) WriteMonth(_ context.Context, key calendar.MonthKey, evs []domain.Event) error {
	path := s.monthPath(key)

	incoming := make([]EventRecord, 0, len(evs))
	for _, ev := range evs {
		incoming = append(incoming, toRecord(ev))
	}

	// A missing file just means there is nothing to merge.
	existing, _ := readParquetFile[EventRecord](path)
	merged := mergeEventRecords(existing, incoming)

	if err := writeParquetFile(path, merged); err != nil {
		return fmt.Errorf("writing events for %s: %w", key, err)
	}
	return nil
}

// ReadMonth reads the archived events for key, ordered by date.
func (s *ParquetStore) ReadMonth(_ context.Context, key calendar.MonthKey) ([]domain.Event, error) {
	records, err := readParquetFile[EventRecord](s.monthPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading events for %s: %w", key, err)
	}

	evs := make([]domain.Event, 0, len(records))
	for _, r := range records {
		evs = append(evs, r.toEvent())
	}
	return evs, nil
}

// FetchedAt returns the archive file's modification time.
func (s *ParquetStore) FetchedAt(_ context.Context, key calendar.MonthKey) (time.Time, error) {
	info, err := os.Stat(s.monthPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// ListMonths lists all archived months.
func (s *ParquetStore) ListMonths(_ context.Context) ([]calendar.MonthKey, error) {
	root := filepath.Join(s.DataDir, "events")
	years, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []calendar.MonthKey
	for _, y := range years {
		year, err := strconv.Atoi(y.Name())
		if !y.IsDir() || err != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, y.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			month, err := strconv.Atoi(strings.TrimSuffix(f.Name(), ".parquet"))
			if f.IsDir() || err != nil || month < 1 || month > 12 {
				continue
			}
			keys = append(keys, calendar.MonthKey{Year: year, Month: month})
		}
	}
	slices.SortFunc(keys, func(a, b calendar.MonthKey) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Month, b.Month))
	})
	return keys, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// monthPath returns the filesystem path for a month's Parquet file.
// Layout: <dataDir>/events/<YYYY>/<MM>.parquet
func (s *ParquetStore) monthPath(key calendar.MonthKey) string {
	return filepath.Join(s.DataDir, "events", fmt.Sprintf("%04d", key.Year), fmt.Sprintf("%02d.parquet", key.Month))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeEventRecords deduplicates records by ID, preferring incoming records
// over existing ones. Results are sorted by date, then ID.
func mergeEventRecords(existing, incoming []EventRecord) []EventRecord {
	seen := make(map[string]EventRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.ID] = r
	}
	for _, r := range incoming {
		seen[r.ID] = r
	}

	merged := make([]EventRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	slices.SortFunc(merged, func(a, b EventRecord) int {
		return cmp.Or(strings.Compare(a.Date, b.Date), strings.Compare(a.ID, b.ID))
	})
	return merged
}
