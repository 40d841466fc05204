package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/pass-with-high-score/devtool-web-sub002/internal/scan"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/version"
)

// ErrScanNotFound is returned when no stored scan matches an id
var ErrScanNotFound = errors.New("scan not found")

// SQLiteStorage keeps the scan history
// Enables queries like "which subdomains appeared since the last scan"
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// ScanRecord is one row of the history listing
type ScanRecord struct {
	ID               string    `json:"id"`
	Domain           string    `json:"domain"`
	Version          string    `json:"version"`
	StartedAt        time.Time `json:"startedAt"`
	DurationMs       int64     `json:"durationMs"`
	WildcardDetected bool      `json:"wildcardDetected"`
	Partial          bool      `json:"partial"`
	Total            int       `json:"total"`
	Live             int       `json:"live"`
}

// SubdomainDiff lists hostnames that appeared or disappeared between two scans
type SubdomainDiff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// NewSQLiteStorage opens (creating if needed) subscan.db in baseDir
func NewSQLiteStorage(baseDir string) (*SQLiteStorage, error) {
	baseDir = expandHome(baseDir)
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	dbPath := filepath.Join(baseDir, "subscan.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// WAL lets the server read history while a CLI scan writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStorage{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		version TEXT,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER DEFAULT 0,
		wildcard_detected INTEGER DEFAULT 0,
		partial INTEGER DEFAULT 0,
		total INTEGER DEFAULT 0,
		live INTEGER DEFAULT 0,
		report_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_scans_domain ON scans(domain);
	CREATE INDEX IF NOT EXISTS idx_scans_started_at ON scans(started_at);

	CREATE TABLE IF NOT EXISTS subdomains (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		subdomain TEXT NOT NULL,
		is_alive INTEGER DEFAULT 0,
		http_status INTEGER,
		server TEXT,
		addresses TEXT,
		sources TEXT,
		FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE,
		UNIQUE(scan_id, subdomain)
	);
	CREATE INDEX IF NOT EXISTS idx_subdomains_scan ON subdomains(scan_id);
	CREATE INDEX IF NOT EXISTS idx_subdomains_subdomain ON subdomains(subdomain);

	CREATE TABLE IF NOT EXISTS technologies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		host TEXT NOT NULL,
		technology TEXT NOT NULL,
		FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE,
		UNIQUE(scan_id, host, technology)
	);
	CREATE INDEX IF NOT EXISTS idx_tech_scan ON technologies(scan_id);

	CREATE TABLE IF NOT EXISTS source_runs (
		scan_id TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		count INTEGER DEFAULT 0,
		pages INTEGER DEFAULT 0,
		error TEXT,
		FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE,
		PRIMARY KEY (scan_id, source)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file location
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveReport records a finished scan with its hosts, technologies and
// per-source outcome in one transaction.
func (s *SQLiteStorage) SaveReport(ctx context.Context, r *scan.Report) error {
	reportJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO scans (id, domain, version, started_at, duration_ms, wildcard_detected, partial, total, live, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ScanID, r.Domain, version.Version, r.StartedAt, r.DurationMs,
		boolInt(r.WildcardDetected), boolInt(r.Partial), len(r.Results), r.LiveCount(), string(reportJSON))
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}

	subStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO subdomains (scan_id, subdomain, is_alive, http_status, server, addresses, sources)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer subStmt.Close()

	techStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO technologies (scan_id, host, technology) VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer techStmt.Close()

	for _, res := range r.Results {
		var status sql.NullInt64
		if res.HTTPStatus != nil {
			status = sql.NullInt64{Int64: int64(*res.HTTPStatus), Valid: true}
		}
		var server sql.NullString
		if res.Server != nil {
			server = sql.NullString{String: *res.Server, Valid: true}
		}
		if _, err := subStmt.ExecContext(ctx, r.ScanID, res.Hostname, boolInt(res.Live()), status, server,
			strings.Join(res.Addresses, ","), strings.Join(res.Sources, ",")); err != nil {
			return fmt.Errorf("insert %s: %w", res.Hostname, err)
		}
		for _, tech := range res.Technologies {
			if _, err := techStmt.ExecContext(ctx, r.ScanID, res.Hostname, tech); err != nil {
				return fmt.Errorf("insert technology for %s: %w", res.Hostname, err)
			}
		}
	}

	for _, sum := range r.SourceSummary {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO source_runs (scan_id, source, status, count, pages, error)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ScanID, sum.Source, string(sum.Status), sum.Count, sum.Pages, sum.Error)
		if err != nil {
			return fmt.Errorf("insert source run %s: %w", sum.Source, err)
		}
	}

	return tx.Commit()
}

// ListScans returns the most recent scans, newest first. An empty domain
// lists every domain.
func (s *SQLiteStorage) ListScans(ctx context.Context, domain string, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, version, started_at, duration_ms, wildcard_detected, partial, total, live
		FROM scans
		WHERE domain = ? OR ? = ''
		ORDER BY started_at DESC
		LIMIT ?
	`, domain, domain, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ScanRecord
	for rows.Next() {
		var r ScanRecord
		var wildcard, partial int
		var ver sql.NullString
		if err := rows.Scan(&r.ID, &r.Domain, &ver, &r.StartedAt, &r.DurationMs, &wildcard, &partial, &r.Total, &r.Live); err != nil {
			return nil, err
		}
		r.Version = ver.String
		r.WildcardDetected = wildcard == 1
		r.Partial = partial == 1
		results = append(results, r)
	}
	return results, rows.Err()
}

// LoadReport returns the stored report for id. A unique id prefix (as
// printed by the history listing) is accepted too.
func (s *SQLiteStorage) LoadReport(ctx context.Context, id string) (*scan.Report, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrScanNotFound
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT report_json FROM scans WHERE id = ? OR id LIKE ? ESCAPE '\' LIMIT 2
	`, id, escapeLike(id)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(docs) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, id)
	case 2:
		return nil, fmt.Errorf("scan id prefix %q is ambiguous", id)
	}

	var r scan.Report
	if err := json.Unmarshal([]byte(docs[0]), &r); err != nil {
		return nil, fmt.Errorf("decode stored report %s: %w", id, err)
	}
	return &r, nil
}

// DiffSubdomains compares the hostnames of two stored scans
func (s *SQLiteStorage) DiffSubdomains(ctx context.Context, oldScanID, newScanID string) (*SubdomainDiff, error) {
	diff := &SubdomainDiff{Added: []string{}, Removed: []string{}}

	query := `
		SELECT subdomain FROM subdomains WHERE scan_id = ?
		EXCEPT
		SELECT subdomain FROM subdomains WHERE scan_id = ?
		ORDER BY subdomain
	`
	var err error
	if diff.Added, err = s.querySubdomains(ctx, query, newScanID, oldScanID); err != nil {
		return nil, err
	}
	if diff.Removed, err = s.querySubdomains(ctx, query, oldScanID, newScanID); err != nil {
		return nil, err
	}
	return diff, nil
}

func (s *SQLiteStorage) querySubdomains(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []string{}
	for rows.Next() {
		var sub string
		if err := rows.Scan(&sub); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// GetTechStack counts hosts per technology across every scan of domain
func (s *SQLiteStorage) GetTechStack(ctx context.Context, domain string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.technology, COUNT(DISTINCT t.host)
		FROM technologies t
		JOIN scans s ON t.scan_id = s.id
		WHERE s.domain = ?
		GROUP BY t.technology
	`, domain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stack := make(map[string]int)
	for rows.Next() {
		var tech string
		var count int
		if err := rows.Scan(&tech, &count); err != nil {
			return nil, err
		}
		stack[tech] = count
	}
	return stack, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
