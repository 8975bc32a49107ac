// Package store persists scan history in SQLite so report history and
// per-link trends survive restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/docsentry/docsentry/internal/report"
)

// Store provides SQLite persistence for scan reports.
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath and runs migrations. WAL mode and a
// busy timeout suit the read-heavy API workload.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		scan_trigger TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		documents INTEGER NOT NULL DEFAULT 0,
		findings_info INTEGER NOT NULL DEFAULT 0,
		findings_warning INTEGER NOT NULL DEFAULT 0,
		findings_error INTEGER NOT NULL DEFAULT 0,
		links_checked INTEGER NOT NULL DEFAULT 0,
		links_broken INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);

	CREATE TABLE IF NOT EXISTS link_checks (
		scan_id TEXT NOT NULL,
		url TEXT NOT NULL,
		ok INTEGER NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		checked_at TEXT NOT NULL,
		stale INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (scan_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_link_checks_url ON link_checks(url);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ScanRecord is one row of scan history, without the full report payload.
type ScanRecord struct {
	ID              string    `json:"id"`
	Trigger         string    `json:"trigger"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	Documents       int       `json:"documents"`
	FindingsInfo    int       `json:"findingsInfo"`
	FindingsWarning int       `json:"findingsWarning"`
	FindingsError   int       `json:"findingsError"`
	LinksChecked    int       `json:"linksChecked"`
	LinksBroken     int       `json:"linksBroken"`
}

// LinkCheckRecord is one probed link from one scan.
type LinkCheckRecord struct {
	ScanID     string    `json:"scanId"`
	URL        string    `json:"url"`
	OK         bool      `json:"ok"`
	StatusCode int       `json:"statusCode,omitempty"`
	Category   string    `json:"category"`
	DurationMS int64     `json:"durationMs"`
	CheckedAt  time.Time `json:"checkedAt"`
	Stale      bool      `json:"stale,omitempty"`
}

// SaveReport stores a finalized report under the given scan id. The scan
// row and its link rows commit in one transaction.
func (s *Store) SaveReport(ctx context.Context, id, trigger string, rep *report.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO scans (id, scan_trigger, started_at, finished_at, documents,
		findings_info, findings_warning, findings_error,
		links_checked, links_broken, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		trigger,
		rep.StartedAt.Format(time.RFC3339Nano),
		rep.FinishedAt.Format(time.RFC3339Nano),
		rep.Summary.Documents,
		rep.Summary.Infos,
		rep.Summary.Warnings,
		rep.Summary.Errors,
		rep.Summary.LinksChecked,
		rep.Summary.LinksBroken,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}

	for _, link := range rep.Links {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO link_checks (scan_id, url, ok, status_code, category, duration_ms, checked_at, stale)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id, url) DO NOTHING
		`,
			id,
			link.URL,
			boolToInt(link.OK),
			link.StatusCode,
			link.Category,
			link.DurationMS,
			link.CheckedAt.Format(time.RFC3339Nano),
			boolToInt(link.Stale),
		)
		if err != nil {
			return fmt.Errorf("insert link check: %w", err)
		}
	}

	return tx.Commit()
}

// RecentScans returns up to limit scans, newest first.
func (s *Store) RecentScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, scan_trigger, started_at, finished_at, documents,
		findings_info, findings_warning, findings_error,
		links_checked, links_broken
	FROM scans
	ORDER BY started_at DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var scans []ScanRecord
	for rows.Next() {
		rec, err := scanRecordFromRow(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, rec)
	}
	return scans, rows.Err()
}

// GetScan returns one scan row by id, or nil when absent.
func (s *Store) GetScan(ctx context.Context, id string) (*ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, scan_trigger, started_at, finished_at, documents,
		findings_info, findings_warning, findings_error,
		links_checked, links_broken
	FROM scans
	WHERE id = ?
	`, id)
	rec, err := scanRecordFromRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetReport returns the full stored report for a scan, or nil when absent.
func (s *Store) GetReport(ctx context.Context, id string) (*report.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT report_json FROM scans WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rep report.Report
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		return nil, fmt.Errorf("unmarshal report %s: %w", id, err)
	}
	return &rep, nil
}

// LatestReport returns the newest stored report and its scan id, or nil
// when the history is empty. Serves the report endpoint after a restart
// until the first scan completes.
func (s *Store) LatestReport(ctx context.Context) (string, *report.Report, error) {
	var id, payload string
	err := s.db.QueryRowContext(ctx, `
	SELECT id, report_json FROM scans
	ORDER BY started_at DESC
	LIMIT 1
	`).Scan(&id, &payload)
	if err == sql.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	var rep report.Report
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		return "", nil, fmt.Errorf("unmarshal report %s: %w", id, err)
	}
	return id, &rep, nil
}

// LinkHistory returns past checks of one URL, newest first.
func (s *Store) LinkHistory(ctx context.Context, url string, limit int) ([]LinkCheckRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT scan_id, url, ok, status_code, category, duration_ms, checked_at, stale
	FROM link_checks
	WHERE url = ?
	ORDER BY checked_at DESC
	LIMIT ?
	`, url, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var checks []LinkCheckRecord
	for rows.Next() {
		var (
			rec          LinkCheckRecord
			ok, stale    int
			checkedAtStr string
		)
		if err := rows.Scan(&rec.ScanID, &rec.URL, &ok, &rec.StatusCode,
			&rec.Category, &rec.DurationMS, &checkedAtStr, &stale); err != nil {
			return nil, err
		}
		rec.OK = ok != 0
		rec.Stale = stale != 0
		rec.CheckedAt = parseTime(checkedAtStr)
		checks = append(checks, rec)
	}
	return checks, rows.Err()
}

// Prune keeps the newest keep scans and deletes the rest along with their
// link rows. Returns the number of scans removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		keep = 50
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	DELETE FROM link_checks WHERE scan_id NOT IN (
		SELECT id FROM scans ORDER BY started_at DESC LIMIT ?
	)`, keep)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `
	DELETE FROM scans WHERE id NOT IN (
		SELECT id FROM scans ORDER BY started_at DESC LIMIT ?
	)`, keep)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecordFromRow(row rowScanner) (ScanRecord, error) {
	var (
		rec                  ScanRecord
		startedStr, finished string
	)
	err := row.Scan(&rec.ID, &rec.Trigger, &startedStr, &finished,
		&rec.Documents, &rec.FindingsInfo, &rec.FindingsWarning,
		&rec.FindingsError, &rec.LinksChecked, &rec.LinksBroken)
	if err != nil {
		return ScanRecord{}, err
	}
	rec.StartedAt = parseTime(startedStr)
	rec.FinishedAt = parseTime(finished)
	return rec, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
