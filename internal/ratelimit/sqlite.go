package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const counterSchema = `
CREATE TABLE IF NOT EXISTS rate_counters (
	key        TEXT PRIMARY KEY,
	count      INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_counters_expires ON rate_counters(expires_at);
`

// SQLiteCounter keeps counts in a SQLite table so several relay processes on
// one host share a budget.
type SQLiteCounter struct {
	db     *sql.DB
	now    func() time.Time
	closer bool
}

// OpenSQLiteCounter opens (or creates) a counter database at path.
func OpenSQLiteCounter(path string, now func() time.Time) (*SQLiteCounter, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open counter database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	c, err := NewSQLiteCounter(db, now)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.closer = true
	return c, nil
}

// NewSQLiteCounter uses an existing SQLite handle. A nil now means time.Now.
func NewSQLiteCounter(db *sql.DB, now func() time.Time) (*SQLiteCounter, error) {
	if now == nil {
		now = time.Now
	}
	if _, err := db.Exec(counterSchema); err != nil {
		return nil, fmt.Errorf("failed to apply counter schema: %w", err)
	}
	return &SQLiteCounter{db: db, now: now}, nil
}

// Get implements Counter.
func (c *SQLiteCounter) Get(ctx context.Context, key string) (int, bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT count FROM rate_counters WHERE key = ? AND expires_at > ?`,
		key, c.now().UnixNano()).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading counter %s: %w", key, err)
	}
	return n, true, nil
}

// Put implements Counter.
func (c *SQLiteCounter) Put(ctx context.Context, key string, n int, ttl time.Duration) error {
	now := c.now()
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM rate_counters WHERE expires_at <= ?`, now.UnixNano()); err != nil {
		return fmt.Errorf("sweeping counters: %w", err)
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO rate_counters (key, count, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET count = excluded.count, expires_at = excluded.expires_at`,
		key, n, now.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("writing counter %s: %w", key, err)
	}
	return nil
}

// Close closes the database if this counter opened it.
func (c *SQLiteCounter) Close() error {
	if !c.closer {
		return nil
	}
	return c.db.Close()
}
