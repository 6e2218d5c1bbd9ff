package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketcal/internal/calendar"
	"marketcal/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ EventStore = (*SQLiteStore)(nil)

// SQLiteStore implements EventStore backed by a SQLite database. WriteMonth
// replaces the month wholesale, which suits a cache of provider responses.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS months (
	month      TEXT PRIMARY KEY,
	fetched_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	month    TEXT    NOT NULL,
	seq      INTEGER NOT NULL,
	id       TEXT    NOT NULL,
	date     TEXT    NOT NULL,
	category TEXT    NOT NULL,
	ticker   TEXT    NOT NULL DEFAULT '',
	payload  TEXT    NOT NULL,
	PRIMARY KEY (month, seq)
);
CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
CREATE INDEX IF NOT EXISTS idx_events_ticker ON events(ticker);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// tables if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serialises them anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// EventStore implementation
// ---------------------------------------------------------------------------

// WriteMonth replaces the cached events for key.
func (s *SQLiteStore) WriteMonth(ctx context.Context, key calendar.MonthKey, evs []domain.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	month := key.String()
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE month = ?`, month); err != nil {
		return fmt.Errorf("clearing %s: %w", month, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (month, seq, id, date, category, ticker, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, ev := range evs {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding event %s: %w", ev.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, month, i, ev.ID, ev.Date, string(ev.Category), ev.Ticker, string(payload)); err != nil {
			return fmt.Errorf("inserting event %s: %w", ev.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO months (month, fetched_at) VALUES (?, ?)
		 ON CONFLICT(month) DO UPDATE SET fetched_at = excluded.fetched_at`,
		month, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("marking %s fetched: %w", month, err)
	}

	return tx.Commit()
}

// ReadMonth returns the cached events for key in the order they were
// written.
func (s *SQLiteStore) ReadMonth(ctx context.Context, key calendar.MonthKey) ([]domain.Event, error) {
	if _, err := s.FetchedAt(ctx, key); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM events WHERE month = ? ORDER BY seq`, key.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	evs := []domain.Event{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev domain.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decoding cached event: %w", err)
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

// FetchedAt returns when key was last written.
func (s *SQLiteStore) FetchedAt(ctx context.Context, key calendar.MonthKey) (time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT fetched_at FROM months WHERE month = ?`, key.String()).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// ListMonths returns every cached month in ascending order.
func (s *SQLiteStore) ListMonths(ctx context.Context) ([]calendar.MonthKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT month FROM months ORDER BY month`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []calendar.MonthKey
	for rows.Next() {
		var month string
		if err := rows.Scan(&month); err != nil {
			return nil, err
		}
		key, err := calendar.ParseMonthKey(month)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// EventsForTicker returns every cached event for ticker across all months,
// ordered by date.
func (s *SQLiteStore) EventsForTicker(ctx context.Context, ticker string) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE ticker = ? ORDER BY date, month, seq`, ticker)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []domain.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev domain.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decoding cached event: %w", err)
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}
