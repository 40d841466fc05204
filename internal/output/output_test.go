package output

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/scan"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/subdomain"
)

func TestMain(m *testing.M) {
	debug.SetOutput(io.Discard)
	color.NoColor = true
	os.Exit(m.Run())
}

func wildcardReport() *scan.Report {
	status := 200
	server := "nginx"
	final := "https://www.example.com/"

	live := scan.Result{Hostname: "www.example.com", Sources: []string{"crtsh"}}
	live.HTTPStatus = &status
	live.Server = &server
	live.FinalURL = &final
	live.Technologies = []string{"Nginx"}
	live.Addresses = []string{"198.51.100.1"}

	dnsOnly := scan.Result{Hostname: "ghost.example.com", Sources: []string{"virustotal"}}
	dnsOnly.Technologies = []string{}
	dnsOnly.Addresses = []string{"198.51.100.99"}

	return &scan.Report{
		ScanID:           "0123456789abcdef",
		Domain:           "example.com",
		WildcardDetected: true,
		Wildcard:         subdomain.WildcardStatus{Detected: true, ProbeHost: "subscan-wc-x.example.com", Addresses: []string{"198.51.100.99"}},
		Results:          []scan.Result{dnsOnly, live},
		SourceSummary: []*subdomain.SourceResult{
			{Source: "crtsh", Status: subdomain.StatusCompleted, Count: 1, Pages: 1},
			{Source: "virustotal", Status: subdomain.StatusRateLimited, Count: 1, Pages: 2, Error: "rate limited (status 429)"},
		},
		StartedAt:  time.Now().UTC(),
		DurationMs: 2500,
	}
}

func TestPolicyApply(t *testing.T) {
	r := wildcardReport()
	if got := (Policy{}).Apply(r); len(got.Results) != 2 {
		t.Errorf("default policy dropped results: %d", len(got.Results))
	}
	got := Policy{SuppressWildcard: true}.Apply(r)
	if len(got.Results) != 1 || got.Results[0].Hostname != "www.example.com" {
		t.Errorf("suppressed = %+v", got.Results)
	}
}

func TestManagerSave(t *testing.T) {
	dir := t.TempDir()
	m := NewManagerWithSQLite(dir, Policy{SuppressWildcard: true})
	defer m.Close()

	saved, scanDir, err := m.Save(context.Background(), wildcardReport())
	if err != nil {
		t.Fatal(err)
	}
	if scanDir != filepath.Join(dir, "example.com", "01234567") {
		t.Errorf("scan dir = %s", scanDir)
	}
	if len(saved.Results) != 1 {
		t.Errorf("policy not applied before saving: %d results", len(saved.Results))
	}

	data, err := os.ReadFile(filepath.Join(scanDir, "report.json"))
	if err != nil {
		t.Fatal(err)
	}
	var decoded scan.Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Domain != "example.com" || len(decoded.Results) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}

	live, err := os.ReadFile(filepath.Join(scanDir, "live.txt"))
	if err != nil || string(live) != "https://www.example.com/\n" {
		t.Errorf("live.txt = %q, %v", live, err)
	}

	if m.History() == nil {
		t.Fatal("history not opened")
	}
	scans, err := m.History().ListScans(context.Background(), "", 5)
	if err != nil || len(scans) != 1 {
		t.Errorf("history = %+v, %v", scans, err)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, wildcardReport())
	out := buf.String()

	for _, want := range []string{
		"example.com: 2 subdomains, 1 live",
		"Wildcard DNS",
		"rate_limited",
		"ghost.example.com",
		"dns",
		"Nginx",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, wildcardReport()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"wildcardDetected": true`) {
		t.Errorf("json = %s", buf.String())
	}
}
