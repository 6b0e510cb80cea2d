package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// IndexDB provides SQLite-based storage for the capture index: one row per
// completed fetch attempt, supporting the completion summary and post-run
// audit of which URLs were archived, failed, or filtered.
//
// The index is best-effort like the mirror: index errors never abort the
// crawl, they only degrade auditability.
type IndexDB struct {
	db     *sql.DB
	dbPath string
}

// Outcome values stored in the index.
const (
	OutcomeArchived = "archived"
	OutcomeFailed   = "failed"
	OutcomeFiltered = "filtered"
)

// CaptureRow is one indexed crawl event.
type CaptureRow struct {
	URL        string
	Depth      int
	StatusCode int
	Outcome    string
	ErrorKind  string
	BodyDigest string
	RecordedAt time.Time
}

// Open opens or creates an IndexDB at the specified path.
func Open(dbPath string) (*IndexDB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	// SQLite only supports one writer; the crawl has exactly one index
	// writer goroutine at a time anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	idb := &IndexDB{
		db:     db,
		dbPath: dbPath,
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := idb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return idb, nil
}

func (idb *IndexDB) Close() error {
	return idb.db.Close()
}

func (idb *IndexDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS captures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		depth INTEGER NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		body_digest TEXT NOT NULL DEFAULT '',
		recorded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_captures_url ON captures(url);
	CREATE INDEX IF NOT EXISTS idx_captures_outcome ON captures(outcome);
	`
	_, err := idb.db.ExecContext(context.Background(), schema)
	return err
}

// RecordCapture inserts one crawl event row.
func (idb *IndexDB) RecordCapture(ctx context.Context, row CaptureRow) error {
	_, err := idb.db.ExecContext(ctx,
		`INSERT INTO captures (url, depth, status_code, outcome, error_kind, body_digest, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.URL, row.Depth, row.StatusCode, row.Outcome, row.ErrorKind, row.BodyDigest, row.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record capture: %w", err)
	}
	return nil
}

// ListCaptures returns all rows with the given outcome, in insertion order.
// An empty outcome returns every row.
func (idb *IndexDB) ListCaptures(ctx context.Context, outcome string) ([]CaptureRow, error) {
	query := `SELECT url, depth, status_code, outcome, error_kind, body_digest, recorded_at
		FROM captures`
	args := []any{}
	if outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, outcome)
	}
	query += ` ORDER BY id`

	rows, err := idb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	defer rows.Close()

	var result []CaptureRow
	for rows.Next() {
		var row CaptureRow
		if err := rows.Scan(&row.URL, &row.Depth, &row.StatusCode, &row.Outcome,
			&row.ErrorKind, &row.BodyDigest, &row.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capture row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// CountByOutcome returns the number of rows with the given outcome.
func (idb *IndexDB) CountByOutcome(ctx context.Context, outcome string) (int, error) {
	var count int
	err := idb.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM captures WHERE outcome = ?`, outcome).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count captures: %w", err)
	}
	return count, nil
}
