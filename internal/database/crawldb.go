package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/clinicscan/internal/model"
)

// FileName is the database file name inside the data directory.
const FileName = "clinicscan.db"

// CrawlDB provides SQLite-based storage for runs, pages and clinic records.
//
// Design decision: We use a single database file for all runs rather than
// one file per run. Comparing a clinic or a page hash across runs is then
// a plain query.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string

	// lock is held while the database is open.
	lock *flock.Flock
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
// It returns ErrLocked when another process has the database open.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock database: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dbPath)
	}

	// modernc.org/sqlite: mode=rw refuses to create the file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = lock.Unlock() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
		lock:   lock,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = cdb.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = cdb.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the path of the database file.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection and releases the lock.
func (cdb *CrawlDB) Close() error {
	err := cdb.db.Close()
	if unlockErr := cdb.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Runs store one scan each, with the full report as JSON
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		scope_prefix TEXT NOT NULL,
		start_urls TEXT NOT NULL,
		visited_pages INTEGER NOT NULL DEFAULT 0,
		record_count INTEGER NOT NULL DEFAULT 0,
		incomplete_count INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Pages store every capture fetched during a run
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		capture_url TEXT NOT NULL,
		original_url TEXT NOT NULL,
		capture_timestamp INTEGER,
		title TEXT,
		hash TEXT,
		size INTEGER,
		candidate INTEGER NOT NULL DEFAULT 0,
		entity INTEGER NOT NULL DEFAULT 0,
		fetched_at DATETIME,
		UNIQUE(run_id, capture_url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_capture ON pages(capture_url);
	CREATE INDEX IF NOT EXISTS idx_pages_original ON pages(original_url);

	-- Clinics store the consolidated records of a run
	CREATE TABLE IF NOT EXISTS clinics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		dedup_name TEXT NOT NULL,
		dedup_address TEXT NOT NULL,
		name TEXT,
		address TEXT,
		email TEXT,
		phone TEXT,
		services TEXT,
		source_address TEXT NOT NULL,
		capture_timestamp INTEGER,
		UNIQUE(run_id, dedup_name, dedup_address)
	);

	CREATE INDEX IF NOT EXISTS idx_clinics_key ON clinics(dedup_name, dedup_address);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a scan report with its pages and records in one transaction
// and sets report.RunID.
func (cdb *CrawlDB) SaveRun(ctx context.Context, report *model.ScanReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}
	startURLs, err := json.Marshal(report.StartURLs)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize start URLs: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (started_at, scope_prefix, start_urls, visited_pages, record_count, incomplete_count, duration_ms, error, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.DateScanned.UTC().Format(time.RFC3339Nano),
		report.ScopePrefix,
		string(startURLs),
		report.VisitedPages(),
		len(report.Records),
		report.Validation.IncompleteClinics,
		report.Duration.Milliseconds(),
		nullString(report.ErrorMessage),
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}

	for _, crawl := range report.Crawls {
		for _, page := range crawl.Pages {
			if err := insertPage(ctx, tx, runID, page); err != nil {
				return 0, err
			}
		}
	}

	for _, rec := range report.Records {
		if err := insertClinic(ctx, tx, runID, rec); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	report.RunID = runID
	return runID, nil
}

// insertPage inserts or updates a page of a run.
// Uses UPSERT because batch crawls can fetch the same capture twice.
func insertPage(ctx context.Context, tx *sql.Tx, runID int64, page *model.Page) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO pages (run_id, capture_url, original_url, capture_timestamp, title, hash, size, candidate, entity, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, capture_url) DO UPDATE SET
		title = excluded.title,
		hash = excluded.hash,
		size = excluded.size,
		entity = excluded.entity,
		fetched_at = excluded.fetched_at
	`,
		runID,
		page.CaptureURL,
		page.OriginalURL,
		page.Timestamp,
		page.Title,
		page.Hash,
		page.Size,
		page.Candidate,
		page.Entity,
		page.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert page: %w", err)
	}
	return nil
}

// insertClinic inserts a record of a run.
func insertClinic(ctx context.Context, tx *sql.Tx, runID int64, rec *model.Record) error {
	services, err := json.Marshal(rec.Services)
	if err != nil {
		return fmt.Errorf("failed to serialize services: %w", err)
	}

	key := rec.Key()
	_, err = tx.ExecContext(ctx, `
	INSERT INTO clinics (run_id, dedup_name, dedup_address, name, address, email, phone, services, source_address, capture_timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		key.Name,
		key.Address,
		rec.Name,
		rec.Address,
		rec.Email,
		rec.Phone,
		string(services),
		rec.SourceAddress,
		rec.CaptureTimestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert clinic %q: %w", key, err)
	}
	return nil
}

// RunSummary contains summary information about a stored run.
// This is used for displaying history without loading the full report.
type RunSummary struct {
	// ID is the unique identifier of the run.
	ID int64

	// StartedAt is when the scan started.
	StartedAt time.Time

	// ScopePrefix is the scope of the scan.
	ScopePrefix string

	// StartURLs are the start captures of the scan.
	StartURLs []string

	// VisitedPages is the number of captures fetched.
	VisitedPages int

	// Records is the number of consolidated clinic records.
	Records int

	// Incomplete is the number of records missing a critical field.
	Incomplete int

	// Duration is how long the scan took.
	Duration time.Duration

	// Error is the error that cut the scan short, if any.
	Error string
}

const runSummaryColumns = `id, started_at, scope_prefix, start_urls, visited_pages, record_count, incomplete_count, duration_ms, error`

// ListRuns returns stored runs, newest first. A limit of 0 or less returns all runs.
func (cdb *CrawlDB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT ` + runSummaryColumns + ` FROM runs ORDER BY id DESC`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	results := make([]RunSummary, 0)
	for rows.Next() {
		summary, err := scanRunSummary(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *summary)
	}
	return results, rows.Err()
}

// LatestRun returns the most recent run, or nil if none is stored.
func (cdb *CrawlDB) LatestRun(ctx context.Context) (*RunSummary, error) {
	row := cdb.db.QueryRowContext(ctx, `SELECT `+runSummaryColumns+` FROM runs ORDER BY id DESC LIMIT 1`)
	summary, err := scanRunSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return summary, err
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunSummary(row rowScanner) (*RunSummary, error) {
	var summary RunSummary
	var startedAt, startURLs string
	var durationMS int64
	var runErr sql.NullString

	err := row.Scan(
		&summary.ID,
		&startedAt,
		&summary.ScopePrefix,
		&startURLs,
		&summary.VisitedPages,
		&summary.Records,
		&summary.Incomplete,
		&durationMS,
		&runErr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	summary.StartedAt = parseTimestamp(startedAt)
	summary.Duration = time.Duration(durationMS) * time.Millisecond
	summary.Error = runErr.String
	if err := json.Unmarshal([]byte(startURLs), &summary.StartURLs); err != nil {
		summary.StartURLs = nil
	}
	return &summary, nil
}

// GetRun retrieves the full report of a run.
func (cdb *CrawlDB) GetRun(ctx context.Context, id int64) (*model.ScanReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report model.ScanReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	report.RunID = id
	return &report, nil
}

// GetRunRecords retrieves the clinic records of a run, ordered by dedup key.
func (cdb *CrawlDB) GetRunRecords(ctx context.Context, runID int64) ([]*model.Record, error) {
	if err := cdb.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := cdb.db.QueryContext(ctx, `
	SELECT source_address, name, address, email, phone, services, capture_timestamp
	FROM clinics
	WHERE run_id = ?
	ORDER BY dedup_name, dedup_address
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	defer rows.Close()

	records := make([]*model.Record, 0)
	for rows.Next() {
		var source, name, address, email, phone, servicesJSON string
		var captured int64
		if err := rows.Scan(&source, &name, &address, &email, &phone, &servicesJSON, &captured); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		var services []string
		if err := json.Unmarshal([]byte(servicesJSON), &services); err != nil {
			return nil, fmt.Errorf("failed to parse services: %w", err)
		}
		records = append(records, model.NewRecord(source, name, address, email, phone, services, captured))
	}
	return records, rows.Err()
}

// GetRunPages retrieves the pages fetched during a run, in capture URL order.
func (cdb *CrawlDB) GetRunPages(ctx context.Context, runID int64) ([]*model.Page, error) {
	if err := cdb.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := cdb.db.QueryContext(ctx, `
	SELECT capture_url, original_url, capture_timestamp, title, hash, size, candidate, entity, fetched_at
	FROM pages
	WHERE run_id = ?
	ORDER BY capture_url
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	pages := make([]*model.Page, 0)
	for rows.Next() {
		var page model.Page
		var fetchedAt string
		err := rows.Scan(
			&page.CaptureURL,
			&page.OriginalURL,
			&page.Timestamp,
			&page.Title,
			&page.Hash,
			&page.Size,
			&page.Candidate,
			&page.Entity,
			&fetchedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		page.FetchedAt = parseTimestamp(fetchedAt)
		pages = append(pages, &page)
	}
	return pages, rows.Err()
}

// PreviousPageHash returns the hash a capture had in the latest run before
// runID, or "" if it was not fetched before.
func (cdb *CrawlDB) PreviousPageHash(ctx context.Context, captureURL string, runID int64) (string, error) {
	var hash sql.NullString
	err := cdb.db.QueryRowContext(ctx, `
	SELECT hash FROM pages
	WHERE capture_url = ? AND run_id < ?
	ORDER BY run_id DESC
	LIMIT 1
	`, captureURL, runID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get previous hash: %w", err)
	}
	return hash.String, nil
}

func (cdb *CrawlDB) requireRun(ctx context.Context, runID int64) error {
	var exists int
	err := cdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
