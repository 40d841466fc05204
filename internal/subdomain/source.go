package subdomain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/ratelimit"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/version"
)

// Source is one passive discovery provider. Discover never fails the scan:
// provider errors end up in the returned result's Status and Error.
type Source interface {
	Name() string
	Discover(ctx context.Context, domain string) *SourceResult
}

// Status is the outcome of one source for one scan
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusSkipped     Status = "skipped"
	StatusRateLimited Status = "rate_limited"
	StatusFailed      Status = "failed"
	StatusTimedOut    Status = "timed_out"
)

// SourceResult is what one source contributed
type SourceResult struct {
	Source   string        `json:"source"`
	Status   Status        `json:"status"`
	Hosts    []string      `json:"-"`
	Count    int           `json:"count"`
	Pages    int           `json:"pages"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Responded reports whether the provider actually answered during this scan
func (r *SourceResult) Responded() bool {
	return r.Status == StatusCompleted || r.Status == StatusRateLimited
}

func skipped(name, reason string) *SourceResult {
	debug.Debugf("%s: skipped (%s)", name, reason)
	return &SourceResult{Source: name, Status: StatusSkipped, Error: reason}
}

// finish scopes the gathered hosts and classifies err into a status.
// Hosts collected before a failure are always kept.
func finish(name, domain string, start time.Time, raw []string, pages int, err error) *SourceResult {
	res := &SourceResult{
		Source:   name,
		Hosts:    scopeHosts(raw, domain),
		Pages:    pages,
		Duration: time.Since(start),
	}
	res.Count = len(res.Hosts)

	switch {
	case err == nil:
		res.Status = StatusCompleted
	case errors.Is(err, ratelimit.ErrRateLimited):
		res.Status = StatusRateLimited
		res.Error = err.Error()
		debug.Warnf("%s: rate limited after %d page(s), keeping %d hosts (quota exhausted, not an empty result)", name, pages, res.Count)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		res.Status = StatusTimedOut
		res.Error = err.Error()
		debug.Warnf("%s: timed out after %d page(s), keeping %d hosts", name, pages, res.Count)
	default:
		res.Status = StatusFailed
		res.Error = err.Error()
		debug.Warnf("%s: %v (keeping %d hosts)", name, err, res.Count)
	}

	debug.LogEnd(name, start, string(res.Status), res.Count, err)
	return res
}

// SourceOptions configures the HTTP-backed sources
type SourceOptions struct {
	Client   *http.Client
	MaxPages int
	RPS      float64
}

func (o SourceOptions) withDefaults() SourceOptions {
	if o.Client == nil {
		o.Client = NewHTTPClient(30 * time.Second)
	}
	if o.MaxPages < 1 {
		o.MaxPages = 5
	}
	return o
}

// NewHTTPClient returns a client suitable for provider APIs
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     30 * time.Second,
		},
	}
}

// httpSource is the shared request path of the API-backed sources
type httpSource struct {
	client *http.Client
	pacer  *ratelimit.Pacer
}

func newHTTPSource(opts SourceOptions) httpSource {
	return httpSource{client: opts.Client, pacer: ratelimit.NewPacer(opts.RPS)}
}

// get makes a paced GET request and returns the body of a 2xx response
func (h httpSource) get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	if err := h.pacer.Wait(ctx); err != nil {
		// the limiter refuses waits that would outlive the deadline
		return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		// *url.Error repeats the request URL, which may carry an API key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
		}
		return nil, err
	}
	return ratelimit.ReadResponse(resp)
}
