package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage writes scan artifacts under one data directory. Files are
// replaced atomically, so an interrupted save never leaves half a report.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage roots storage at baseDir; a leading ~/ is expanded
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{baseDir: expandHome(baseDir)}
}

// BaseDir returns the data directory
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

// Write replaces the file at rel with data
func (s *LocalStorage) Write(ctx context.Context, rel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(s.baseDir, rel)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// WriteJSON writes v as indented JSON
func (s *LocalStorage) WriteJSON(ctx context.Context, rel string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	return s.Write(ctx, rel, buf.Bytes())
}

// WriteLines writes one string per line. Nothing is written for an empty slice.
func (s *LocalStorage) WriteLines(ctx context.Context, rel string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	return s.Write(ctx, rel, []byte(strings.Join(lines, "\n")+"\n"))
}

func expandHome(dir string) string {
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, dir[2:])
		}
	}
	return dir
}
