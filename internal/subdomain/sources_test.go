package subdomain

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testOptions(srv *httptest.Server) SourceOptions {
	return SourceOptions{Client: srv.Client(), MaxPages: 5}
}

func TestVirusTotalRateLimitOnPageThreeKeepsEarlierPages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-apikey") != "vt-key" {
			t.Errorf("missing api key header")
		}
		page := calls.Add(1)
		switch page {
		case 1:
			if r.URL.Query().Get("cursor") != "" {
				t.Errorf("first page must not send a cursor")
			}
			fmt.Fprint(w, `{"data":[{"id":"a.example.com","type":"domain"},{"id":"evil.net","type":"domain"}],"meta":{"cursor":"c1"}}`)
		case 2:
			if got := r.URL.Query().Get("cursor"); got != "c1" {
				t.Errorf("page 2 cursor = %q, want c1", got)
			}
			fmt.Fprint(w, `{"data":[{"id":"B.example.com","type":"domain"}],"meta":{"cursor":"c2"}}`)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"code":"QuotaExceededError","message":"Quota exceeded"}}`)
		}
	}))
	defer srv.Close()

	src := NewVirusTotalSource("vt-key", testOptions(srv))
	src.baseURL = srv.URL

	res := src.Discover(context.Background(), "example.com")
	if res.Status != StatusRateLimited {
		t.Fatalf("status = %s, want %s", res.Status, StatusRateLimited)
	}
	want := []string{"a.example.com", "b.example.com"}
	if !reflect.DeepEqual(res.Hosts, want) {
		t.Errorf("hosts = %v, want %v", res.Hosts, want)
	}
	if res.Pages != 2 {
		t.Errorf("pages = %d, want 2", res.Pages)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("requests = %d, rate limit must not be retried", got)
	}
}

func TestVirusTotalStopsAtPageCeiling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		fmt.Fprintf(w, `{"data":[{"id":"h%d.example.com"}],"meta":{"cursor":"next-%d"}}`, n, n)
	}))
	defer srv.Close()

	opts := testOptions(srv)
	opts.MaxPages = 3
	src := NewVirusTotalSource("k", opts)
	src.baseURL = srv.URL

	res := src.Discover(context.Background(), "example.com")
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s", res.Status)
	}
	if calls.Load() != 3 || res.Pages != 3 || res.Count != 3 {
		t.Errorf("calls=%d pages=%d count=%d, want 3/3/3", calls.Load(), res.Pages, res.Count)
	}
}

func TestKeyedSourcesSkipWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s", r.URL)
	}))
	defer srv.Close()

	for _, src := range []Source{
		NewVirusTotalSource("", testOptions(srv)),
		NewShodanSource("", testOptions(srv)),
	} {
		res := src.Discover(context.Background(), "example.com")
		if res.Status != StatusSkipped {
			t.Errorf("%s: status = %s, want skipped", src.Name(), res.Status)
		}
		if len(res.Hosts) != 0 || res.Error == "" {
			t.Errorf("%s: skipped result should be empty with a reason: %+v", src.Name(), res)
		}
	}
}

func TestShodanPaginatesAndJoinsLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/dns/domain/example.com" || r.URL.Query().Get("key") != "sh" {
			t.Errorf("unexpected request %s", r.URL)
		}
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"domain":"example.com","subdomains":["www","API",""],"more":true}`)
		case "2":
			fmt.Fprint(w, `{"domain":"example.com","subdomains":["mail"],"more":false}`)
		default:
			t.Errorf("page %s requested after more=false", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()

	src := NewShodanSource("sh", testOptions(srv))
	src.baseURL = srv.URL

	res := src.Discover(context.Background(), "example.com")
	if res.Status != StatusCompleted || res.Pages != 2 {
		t.Fatalf("status=%s pages=%d", res.Status, res.Pages)
	}
	want := []string{"www.example.com", "api.example.com", "mail.example.com"}
	if !reflect.DeepEqual(res.Hosts, want) {
		t.Errorf("hosts = %v, want %v", res.Hosts, want)
	}
}

func TestShodanInvalidKeyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Please provide a valid API key"}`)
	}))
	defer srv.Close()

	src := NewShodanSource("bad", testOptions(srv))
	src.baseURL = srv.URL

	res := src.Discover(context.Background(), "example.com")
	if res.Status != StatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
	if !strings.Contains(res.Error, "401") || !strings.Contains(res.Error, "invalid API key") {
		t.Errorf("error = %q, want invalid key with status code", res.Error)
	}
}

func TestTransportErrorDoesNotLeakKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	opts := testOptions(srv)
	srv.Close()

	src := NewShodanSource("secret-shodan-key", opts)
	src.baseURL = base

	res := src.Discover(context.Background(), "example.com")
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if strings.Contains(res.Error, "secret-shodan-key") {
		t.Errorf("error leaks the API key: %q", res.Error)
	}
}

func TestCrtShFiltersOutOfScopeNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "%.example.com" || r.URL.Query().Get("output") != "json" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[
			{"name_value":"*.example.com\nshop.example.com","common_name":"example.com"},
			{"name_value":"mail.EXAMPLE.com","common_name":"mail.example.com"},
			{"name_value":"example.net\nexample.com.evil.org","common_name":"example.net"}
		]`)
	}))
	defer srv.Close()

	src := NewCrtShSource(testOptions(srv))
	src.baseURL = srv.URL

	res := src.Discover(context.Background(), "example.com")
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s (%s)", res.Status, res.Error)
	}
	got := append([]string{}, res.Hosts...)
	sort.Strings(got)
	want := []string{"example.com", "mail.example.com", "shop.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("hosts = %v, want %v", got, want)
	}
	for _, h := range res.Hosts {
		if !InScope(h, "example.com") {
			t.Errorf("out-of-scope host leaked: %s", h)
		}
	}
}

func TestCrtShServerErrorIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewCrtShSource(testOptions(srv))
	src.baseURL = srv.URL

	res := src.Discover(context.Background(), "example.com")
	if res.Status != StatusFailed || len(res.Hosts) != 0 {
		t.Errorf("got %+v, want failed with no hosts", res)
	}
}

func TestSourceTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	src := NewCrtShSource(testOptions(srv))
	src.baseURL = srv.URL

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := src.Discover(ctx, "example.com")
	if res.Status != StatusTimedOut {
		t.Errorf("status = %s, want timed_out", res.Status)
	}
}

func TestSubfinderSourceUsesEnumerator(t *testing.T) {
	src := NewSubfinderSource("", time.Minute)
	src.enumerate = func(ctx context.Context, domain string) ([]string, error) {
		return parseHostLines([]byte("dev.example.com\nPortal.example.com\n\nunrelated.org\n")), nil
	}

	res := src.Discover(context.Background(), "example.com")
	if res.Status != StatusCompleted || res.Pages != 1 {
		t.Fatalf("status=%s pages=%d", res.Status, res.Pages)
	}
	got := append([]string{}, res.Hosts...)
	sort.Strings(got)
	want := []string{"dev.example.com", "portal.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("hosts = %v, want %v", got, want)
	}
}

func TestSubfinderSourceKeepsPartialOnDeadline(t *testing.T) {
	src := NewSubfinderSource("", time.Minute)
	src.enumerate = func(ctx context.Context, domain string) ([]string, error) {
		<-ctx.Done()
		return []string{"x.example.com"}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := src.Discover(ctx, "example.com")
	if res.Status != StatusTimedOut || res.Count != 1 {
		t.Errorf("got status=%s count=%d, want timed_out with 1 host", res.Status, res.Count)
	}
}

func TestParseHostLines(t *testing.T) {
	got := parseHostLines([]byte("a.example.com\r\n\n  b.example.com \n\n"))
	want := []string{"a.example.com", "b.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseHostLines = %v, want %v", got, want)
	}
	if got := parseHostLines(nil); len(got) != 0 {
		t.Errorf("empty output gave %v", got)
	}
}
