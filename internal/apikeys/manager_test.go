package apikeys

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T, env map[string]string) *Manager {
	t.Helper()
	m := NewManagerAt(filepath.Join(t.TempDir(), "config.yaml"))
	m.getenv = func(k string) string { return env[k] }
	return m
}

func TestFirstSkipsPlaceholdersAndPrefersEnv(t *testing.T) {
	m := newTestManager(t, map[string]string{"SHODAN_API_KEY": "env-shodan-key"})
	if err := os.WriteFile(m.Path(), []byte(`
osint:
  virustotal: ["YOUR_VT_KEY", "real-vt-key-1234"]
  shodan: ["file-shodan-key"]
`), 0600); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := m.First("virustotal"); got != "real-vt-key-1234" {
		t.Errorf("virustotal = %q, placeholder should be skipped", got)
	}
	if got := m.First("shodan"); got != "env-shodan-key" {
		t.Errorf("shodan = %q, env key should win", got)
	}
	if got := m.First("censys"); got != "" {
		t.Errorf("unknown provider returned %q", got)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	m := newTestManager(t, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.First("virustotal") != "" || m.First("shodan") != "" {
		t.Error("expected no keys")
	}
}

func TestSetSaveRoundTripDoesNotPersistEnvKeys(t *testing.T) {
	m := newTestManager(t, map[string]string{"VT_API_KEY": "env-vt-secret"})
	if err := m.LoadFile(); err != nil {
		t.Fatal(err)
	}
	if err := m.Set("shodan", "  new-shodan-key  "); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Set("github", "x"); err == nil {
		t.Error("expected error for unsupported provider")
	}
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "env-vt-secret") {
		t.Error("environment key written to disk")
	}

	reloaded := newTestManager(t, nil)
	reloaded.configPath = m.Path()
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if got := reloaded.First("shodan"); got != "new-shodan-key" {
		t.Errorf("shodan after reload = %q", got)
	}
}

func TestImportFromSubfinder(t *testing.T) {
	dir := t.TempDir()
	sfPath := filepath.Join(dir, "provider-config.yaml")
	if err := os.WriteFile(sfPath, []byte(`
virustotal:
  - vt-from-subfinder
shodan:
  - your_shodan_key
  - sh-from-subfinder
chaos: []
`), 0600); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, nil)
	if n := m.ImportFromSubfinder(sfPath); n != 2 {
		t.Errorf("imported %d keys, want 2", n)
	}
	if n := m.ImportFromSubfinder(sfPath); n != 0 {
		t.Errorf("second import added %d duplicates", n)
	}
	if n := m.ImportFromSubfinder(filepath.Join(dir, "missing.yaml")); n != 0 {
		t.Errorf("missing file imported %d", n)
	}
	if m.First("shodan") != "sh-from-subfinder" {
		t.Errorf("shodan = %q", m.First("shodan"))
	}
}

func TestShowConfigMasksKeys(t *testing.T) {
	m := newTestManager(t, nil)
	_ = m.Set("virustotal", "abcdefghijklmnop")

	out := m.ShowConfig()
	if strings.Contains(out, "abcdefghijklmnop") {
		t.Errorf("key not masked:\n%s", out)
	}
	if !strings.Contains(out, "abcd...mnop") {
		t.Errorf("masked key missing:\n%s", out)
	}
	if !strings.Contains(out, "source disabled") {
		t.Errorf("unset shodan should be reported:\n%s", out)
	}
}

func TestCreateDefaultConfigOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	created, err := CreateDefaultConfig(path)
	if err != nil || !created {
		t.Fatalf("first call: created=%v err=%v", created, err)
	}
	created, err = CreateDefaultConfig(path)
	if err != nil || created {
		t.Fatalf("second call: created=%v err=%v", created, err)
	}

	m := NewManagerAt(path)
	m.getenv = func(string) string { return "" }
	if err := m.Load(); err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
}

func TestTestKeyStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		wantValid bool
	}{
		{http.StatusOK, true},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		client := &http.Client{Transport: rewriteTransport{target: srv.URL}}

		got := TestKey(client, "shodan", "some-shodan-key")
		if got.Valid != tt.wantValid {
			t.Errorf("status %d: valid = %v, want %v (%s)", tt.status, got.Valid, tt.wantValid, got.Error)
		}
		if got.Key == "some-shodan-key" {
			t.Error("TestResult must carry the masked key")
		}
		srv.Close()
	}
}

func TestTestKeyErrorOmitsKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := &http.Client{Transport: rewriteTransport{target: srv.URL}}

	const key = "shodan-secret-0123456789"
	got := TestKey(client, "shodan", key)
	if got.Valid || got.Error == "" {
		t.Fatalf("unreachable endpoint: valid=%v error=%q", got.Valid, got.Error)
	}
	if strings.Contains(got.Error, key) {
		t.Errorf("error leaks the key: %s", got.Error)
	}
}

// rewriteTransport sends every request to target, keeping path and query
type rewriteTransport struct{ target string }

func (rt rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	u := *r.URL
	u.Scheme = "http"
	u.Host = strings.TrimPrefix(rt.target, "http://")
	req := r.Clone(r.Context())
	req.URL = &u
	req.Host = u.Host
	return http.DefaultTransport.RoundTrip(req)
}
