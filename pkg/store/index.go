// Package store keeps a sqlite index of crawl runs and page results.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/amosWeiskopf/site2md/internal/models"
)

var ErrRunNotFound = errors.New("run not found")

// Index records every page result and run summary. Safe for concurrent use;
// writes are serialized on a single connection.
type Index struct {
	db   *sql.DB
	path string
}

// RunRecord is a stored run
type RunRecord struct {
	RunID      string
	SeedURL    string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Attempted  int
	Succeeded  int
	Failed     int
	Cancelled  bool
}

// PageRecord is a stored page result
type PageRecord struct {
	RunID         string
	URL           string
	Success       bool
	Title         string
	StatusCode    int
	Error         string
	ErrorKind     string
	Depth         int
	Attempts      int
	FetchedAt     time.Time
	Duration      time.Duration
	MarkdownBytes int
}

// Open opens or creates the index database at path
func Open(path string) (*Index, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	idx := &Index{db: db, path: path}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := idx.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return idx, nil
}

// Path returns the database file path
func (idx *Index) Path() string {
	return idx.path
}

// Close closes the database
func (idx *Index) Close() error {
	return idx.db.Close()
}

func (idx *Index) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		seed_url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		attempted INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		summary_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		success INTEGER NOT NULL,
		title TEXT,
		status_code INTEGER,
		error TEXT,
		error_kind TEXT,
		depth INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		fetched_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		markdown_bytes INTEGER NOT NULL,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
	`
	_, err := idx.db.ExecContext(context.Background(), schema)
	return err
}

// RecordPage inserts or replaces the result for url within runID
func (idx *Index) RecordPage(ctx context.Context, runID string, page models.PageResult) error {
	query := `
	INSERT INTO pages (run_id, url, success, title, status_code, error, error_kind, depth, attempts, fetched_at, duration_ms, markdown_bytes)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		success = excluded.success,
		title = excluded.title,
		status_code = excluded.status_code,
		error = excluded.error,
		error_kind = excluded.error_kind,
		depth = excluded.depth,
		attempts = excluded.attempts,
		fetched_at = excluded.fetched_at,
		duration_ms = excluded.duration_ms,
		markdown_bytes = excluded.markdown_bytes
	`
	_, err := idx.db.ExecContext(ctx, query,
		runID,
		page.URL,
		page.Success,
		page.Title,
		page.StatusCode,
		page.Error,
		page.ErrorKind,
		page.Depth,
		page.Attempts,
		formatTime(page.FetchedAt),
		page.Duration.Milliseconds(),
		len(page.Markdown),
	)
	if err != nil {
		return fmt.Errorf("failed to insert page record: %w", err)
	}
	return nil
}

// RecordRun inserts or replaces a run summary
func (idx *Index) RecordRun(ctx context.Context, s *models.CrawlSummary) error {
	summaryJSON, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}

	query := `
	INSERT INTO runs (run_id, seed_url, started_at, finished_at, duration_ms, attempted, succeeded, failed, cancelled, summary_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		finished_at = excluded.finished_at,
		duration_ms = excluded.duration_ms,
		attempted = excluded.attempted,
		succeeded = excluded.succeeded,
		failed = excluded.failed,
		cancelled = excluded.cancelled,
		summary_json = excluded.summary_json
	`
	_, err = idx.db.ExecContext(ctx, query,
		s.RunID,
		s.SeedURL,
		formatTime(s.StartedAt),
		formatTime(s.FinishedAt),
		s.Duration.Milliseconds(),
		s.TotalAttempted,
		s.TotalSucceeded,
		s.TotalFailed,
		s.Cancelled,
		string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first
func (idx *Index) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
	SELECT run_id, seed_url, started_at, finished_at, duration_ms, attempted, succeeded, failed, cancelled
	FROM runs
	ORDER BY started_at DESC
	LIMIT ?
	`
	rows, err := idx.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Run returns one run by ID
func (idx *Index) Run(ctx context.Context, runID string) (*RunRecord, error) {
	query := `
	SELECT run_id, seed_url, started_at, finished_at, duration_ms, attempted, succeeded, failed, cancelled
	FROM runs
	WHERE run_id = ?
	`
	r, err := scanRun(idx.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// Pages returns the page records of a run ordered by URL
func (idx *Index) Pages(ctx context.Context, runID string) ([]PageRecord, error) {
	query := `
	SELECT run_id, url, success, title, status_code, error, error_kind, depth, attempts, fetched_at, duration_ms, markdown_bytes
	FROM pages
	WHERE run_id = ?
	ORDER BY url
	`
	rows, err := idx.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []PageRecord
	for rows.Next() {
		var (
			p                    PageRecord
			title, errText, kind sql.NullString
			status               sql.NullInt64
			fetchedAt            string
			durationMS           int64
		)
		if err := rows.Scan(&p.RunID, &p.URL, &p.Success, &title, &status, &errText, &kind,
			&p.Depth, &p.Attempts, &fetchedAt, &durationMS, &p.MarkdownBytes); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Title = title.String
		p.StatusCode = int(status.Int64)
		p.Error = errText.String
		p.ErrorKind = kind.String
		p.FetchedAt = parseTime(fetchedAt)
		p.Duration = time.Duration(durationMS) * time.Millisecond
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		r                 RunRecord
		started, finished string
		durationMS        int64
	)
	err := row.Scan(&r.RunID, &r.SeedURL, &started, &finished, &durationMS, &r.Attempted, &r.Succeeded, &r.Failed, &r.Cancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
