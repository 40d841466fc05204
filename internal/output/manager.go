package output

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/scan"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/storage"
)

// Policy is what the caller decided about presenting a report
type Policy struct {
	// SuppressWildcard hides resolution-only hosts when wildcard DNS was detected
	SuppressWildcard bool
}

// Apply returns the report as the caller wants it shown and stored
func (p Policy) Apply(r *scan.Report) *scan.Report {
	if p.SuppressWildcard {
		return r.SuppressWildcard()
	}
	return r
}

// Manager handles report files and the optional scan history
type Manager struct {
	files   *storage.LocalStorage
	history *storage.SQLiteStorage
	policy  Policy
}

// NewManager creates a file-only output manager
func NewManager(outputDir string, policy Policy) *Manager {
	return &Manager{files: storage.NewLocalStorage(outputDir), policy: policy}
}

// NewManagerWithSQLite also records scans in the history database. A
// database that cannot be opened only disables history.
func NewManagerWithSQLite(outputDir string, policy Policy) *Manager {
	m := NewManager(outputDir, policy)

	db, err := storage.NewSQLiteStorage(m.files.BaseDir())
	if err != nil {
		debug.Warnf("SQLite initialization failed: %v (using file storage only)", err)
		return m
	}
	m.history = db
	return m
}

// Close closes the history database if open
func (m *Manager) Close() error {
	if m.history != nil {
		return m.history.Close()
	}
	return nil
}

// History returns the history database (may be nil)
func (m *Manager) History() *storage.SQLiteStorage {
	return m.history
}

// BaseDir returns the output root
func (m *Manager) BaseDir() string {
	return m.files.BaseDir()
}

// ScanDir is the directory of one scan relative to the output root
func ScanDir(r *scan.Report) string {
	id := r.ScanID
	if len(id) > 8 {
		id = id[:8]
	}
	return filepath.Join(r.Domain, id)
}

// Save applies the policy and writes report.json, subdomains.txt and
// live.txt under the scan directory, then records the scan in history.
// It returns the report as saved and the absolute scan directory.
func (m *Manager) Save(ctx context.Context, r *scan.Report) (*scan.Report, string, error) {
	r = m.policy.Apply(r)
	dir := ScanDir(r)

	if err := m.files.WriteJSON(ctx, filepath.Join(dir, "report.json"), r); err != nil {
		return r, "", fmt.Errorf("write report: %w", err)
	}

	var all, live []string
	for _, res := range r.Results {
		all = append(all, res.Hostname)
		if res.Live() && res.FinalURL != nil {
			live = append(live, *res.FinalURL)
		}
	}
	if err := m.files.WriteLines(ctx, filepath.Join(dir, "subdomains.txt"), all); err != nil {
		return r, "", fmt.Errorf("write subdomains: %w", err)
	}
	if err := m.files.WriteLines(ctx, filepath.Join(dir, "live.txt"), live); err != nil {
		return r, "", fmt.Errorf("write live hosts: %w", err)
	}

	if m.history != nil {
		if err := m.history.SaveReport(ctx, r); err != nil {
			debug.Warnf("Failed to record scan history: %v", err)
		}
	}
	return r, filepath.Join(m.files.BaseDir(), dir), nil
}
