package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id               TEXT PRIMARY KEY,
	cycle_id         TEXT NOT NULL,
	ts               TEXT NOT NULL,
	ticker           TEXT NOT NULL,
	side             TEXT NOT NULL,
	requested_shares INTEGER NOT NULL,
	shares           INTEGER NOT NULL,
	reference_price  REAL NOT NULL,
	notional         REAL NOT NULL,
	verdict          TEXT NOT NULL,
	reason           TEXT NOT NULL,
	adjustments      TEXT NOT NULL DEFAULT '',
	detail           TEXT NOT NULL DEFAULT '',
	reasoning        TEXT NOT NULL DEFAULT '',
	order_id         TEXT NOT NULL DEFAULT '',
	order_status     TEXT NOT NULL DEFAULT '',
	fill_price       REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
CREATE INDEX IF NOT EXISTS idx_decisions_ticker ON decisions(ticker);
`

// tsLayout is fixed width so timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteJournal stores entries in a local SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (and creates if needed) the database at path. ":memory:" is accepted.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	if path == "" {
		return nil, errors.New("journal path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO decisions (id, cycle_id, ts, ticker, side, requested_shares, shares, reference_price,
			notional, verdict, reason, adjustments, detail, reasoning, order_id, order_status, fill_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CycleID, e.Timestamp.UTC().Format(tsLayout), e.Ticker, e.Side,
		e.RequestedShares, e.Shares, e.ReferencePrice, e.Notional, e.Verdict, e.Reason,
		strings.Join(e.Adjustments, ","), e.Detail, e.Reasoning, e.OrderID, e.OrderStatus, e.FillPrice)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, cycle_id, ts, ticker, side, requested_shares, shares, reference_price, notional,
			verdict, reason, adjustments, detail, reasoning, order_id, order_status, fill_price
		FROM decisions ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e           Entry
			ts, adjusts string
		)
		if err := rows.Scan(&e.ID, &e.CycleID, &ts, &e.Ticker, &e.Side, &e.RequestedShares, &e.Shares,
			&e.ReferencePrice, &e.Notional, &e.Verdict, &e.Reason, &adjusts, &e.Detail, &e.Reasoning,
			&e.OrderID, &e.OrderStatus, &e.FillPrice); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if e.Timestamp, err = time.Parse(tsLayout, ts); err != nil {
			return nil, fmt.Errorf("parse decision time %q: %w", ts, err)
		}
		if adjusts != "" {
			e.Adjustments = strings.Split(adjusts, ",")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByReason aggregates entries since the given time.
func (j *SQLiteJournal) CountByReason(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT reason, COUNT(*) FROM decisions WHERE ts >= ? GROUP BY reason`,
		since.UTC().Format(tsLayout))
	if err != nil {
		return nil, fmt.Errorf("count decisions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}

// Close releases the underlying DB handle.
func (j *SQLiteJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
