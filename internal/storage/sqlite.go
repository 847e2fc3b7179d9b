package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    service      TEXT    NOT NULL,
    host         TEXT    NOT NULL,
    type         TEXT    NOT NULL,
    status       TEXT    NOT NULL CHECK(status IN ('up', 'down')),
    message      TEXT    NOT NULL,
    delivered    INTEGER NOT NULL,
    error        TEXT    NOT NULL DEFAULT '',
    observed_at  TEXT    NOT NULL,
    delivered_at TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deliveries_service ON deliveries(service);
CREATE INDEX IF NOT EXISTS idx_deliveries_service_id ON deliveries(service, id DESC);
`

// Entry is one journaled delivery attempt.
type Entry struct {
	ID          int64     `json:"id"`
	Service     string    `json:"service"`
	Host        string    `json:"host"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Delivered   bool      `json:"delivered"`
	Error       string    `json:"error,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// DB wraps a SQLite delivery journal.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Record persists one delivery attempt.
func (d *DB) Record(ctx context.Context, e Entry) error {
	delivered := 0
	if e.Delivered {
		delivered = 1
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO deliveries (service, host, type, status, message, delivered, error, observed_at, delivered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Service,
		e.Host,
		e.Type,
		e.Status,
		e.Message,
		delivered,
		e.Error,
		e.ObservedAt.UTC().Format(time.RFC3339Nano),
		e.DeliveredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording delivery for %q: %w", e.Service, err)
	}
	return nil
}

// AllLatest returns the most recent entry for each service.
func (d *DB) AllLatest(ctx context.Context) ([]Entry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM deliveries
		WHERE id IN (
			SELECT MAX(id) FROM deliveries GROUP BY service
		)
		ORDER BY service
	`)
	if err != nil {
		return nil, fmt.Errorf("querying all latest: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ServiceHistory returns paginated journal entries for a service, newest
// first, plus the total count.
func (d *DB) ServiceHistory(ctx context.Context, service string, limit, offset int) ([]Entry, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries WHERE service = ?`, service,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting deliveries for %q: %w", service, err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+columns+` FROM deliveries WHERE service = ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		service, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history for %q: %w", service, err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

const columns = `id, service, host, type, status, message, delivered, error, observed_at, delivered_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var delivered int
	var observedAt, deliveredAt string
	err := row.Scan(&e.ID, &e.Service, &e.Host, &e.Type, &e.Status, &e.Message, &delivered, &e.Error, &observedAt, &deliveredAt)
	if err != nil {
		return nil, err
	}
	e.Delivered = delivered != 0
	if e.ObservedAt, err = parseTime(observedAt); err != nil {
		return nil, err
	}
	if e.DeliveredAt, err = parseTime(deliveredAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	// Fallback to RFC3339 without sub-second precision.
	t, err2 := time.Parse(time.RFC3339, s)
	if err2 != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, errors.Join(err, err2))
	}
	return t, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery row: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery rows: %w", err)
	}
	return entries, nil
}
