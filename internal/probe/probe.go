package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/resolve"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/techdetect"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/version"
)

const (
	maxRedirects = 10
	maxBodyRead  = 64 << 10

	// DeadlineExceeded is the Error of candidates the scan ran out of time for
	DeadlineExceeded = "scan deadline exceeded"
)

// ProbeResult is the HTTP view of one candidate. HTTPStatus, Server and
// FinalURL are nil when no response was received.
type ProbeResult struct {
	HTTPStatus   *int      `json:"httpStatus"`
	Server       *string   `json:"server"`
	FinalURL     *string   `json:"finalUrl"`
	Technologies []string  `json:"technologies"`
	Addresses    []string  `json:"addresses,omitempty"`
	Scheme       string    `json:"scheme,omitempty"`
	Error        string    `json:"error,omitempty"`
	ProbedAt     time.Time `json:"probedAt"`
}

// Live reports whether the host answered over HTTP(S)
func (r ProbeResult) Live() bool {
	return r.HTTPStatus != nil
}

// Options configures a Prober
type Options struct {
	Timeout     time.Duration
	Concurrency int
	Transport   http.RoundTripper
	Resolver    resolve.Resolver
}

// Prober checks candidates over HTTPS then HTTP
type Prober struct {
	client      *http.Client
	timeout     time.Duration
	concurrency int
	resolver    resolve.Resolver
}

// New creates a prober. A nil Transport uses NewTransport.
func New(opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 15
	}
	if opts.Transport == nil {
		opts.Transport = NewTransport()
	}

	return &Prober{
		client:      &http.Client{Transport: opts.Transport},
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		resolver:    opts.Resolver,
	}
}

// NewTransport dials IPv4 only and accepts any certificate, since probed
// hosts are arbitrary and often misconfigured.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		},
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout: 5 * time.Second,
		DisableKeepAlives:   true,
		MaxIdleConnsPerHost: -1,
	}
}

// Probe tries https:// then http:// within one timeout. Any HTTP response,
// including 4xx and 5xx, ends the sequence. A redirect whose target cannot
// be reached keeps the redirect response and records the failure in Error.
// Probe never fails.
func (p *Prober) Probe(ctx context.Context, host string) ProbeResult {
	res := ProbeResult{Technologies: []string{}, ProbedAt: time.Now().UTC()}

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addrs := make(chan []string, 1)
	go func() { addrs <- p.lookup(pctx, host) }()

	var failures []string
	for _, scheme := range []string{"https", "http"} {
		err := p.fetch(pctx, scheme, host, &res)
		if err == nil {
			break
		}
		failures = append(failures, fmt.Sprintf("%s: %v", scheme, err))
		if pctx.Err() != nil {
			break
		}
	}

	res.Addresses = <-addrs

	switch {
	case res.Live():
		res.Technologies = techdetect.Merge(res.Technologies, techdetect.ProvidersForAddrs(res.Addresses))
	case ctx.Err() != nil:
		res.Error = DeadlineExceeded
	default:
		res.Error = strings.Join(failures, "; ")
	}
	return res
}

// fetch fills res from one scheme's response
func (p *Prober) fetch(ctx context.Context, scheme, host string, res *ProbeResult) error {
	target := scheme + "://" + host + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	// last is the most recent redirect response, kept in case the next hop fails
	var last *http.Response
	client := *p.client
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		last = next.Response
		if len(via) > maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		if last == nil {
			return unwrapURLError(err)
		}
		// the host answered; only a redirect target was unreachable.
		// The body of last is already closed, so only headers are read.
		fillResponse(res, scheme, target, last)
		res.Technologies = techdetect.ClassifyResponse(last.Header, "")
		res.Error = fmt.Sprintf("%s: redirect: %v", scheme, err)
		return nil
	}
	defer resp.Body.Close()

	fillResponse(res, scheme, target, resp)
	res.Technologies = techdetect.ClassifyResponse(resp.Header, metaGenerator(resp))
	return nil
}

func fillResponse(res *ProbeResult, scheme, target string, resp *http.Response) {
	status := resp.StatusCode
	res.HTTPStatus = &status
	res.Scheme = scheme

	if srv := resp.Header.Get("Server"); srv != "" {
		res.Server = &srv
	}
	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	res.FinalURL = &final
}

// metaGenerator returns <meta name="generator"> from the first 64 KiB of an HTML body
func metaGenerator(resp *http.Response) string {
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if ct != "" && !strings.Contains(ct, "html") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return ""
	}

	var generator string
	doc.Find("meta[name][content]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if name, _ := s.Attr("name"); strings.EqualFold(strings.TrimSpace(name), "generator") {
			generator, _ = s.Attr("content")
			generator = strings.TrimSpace(generator)
			return false
		}
		return true
	})
	return generator
}

func (p *Prober) lookup(ctx context.Context, host string) []string {
	if p.resolver == nil {
		return nil
	}
	addrs, err := p.resolver.LookupA(ctx, host)
	if err != nil && !errors.Is(err, resolve.ErrNXDomain) {
		debug.Debugf("resolve %s: %v", host, err)
	}
	return addrs
}

// unwrapURLError drops the "Get <url>:" prefix net/http adds
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// ProbeAll probes hosts with at most Concurrency requests in flight and
// returns one result per host, in input order. onResult, if set, is called
// from worker goroutines as each probe finishes. Hosts not probed before ctx
// ends get a result with Error set to DeadlineExceeded.
func (p *Prober) ProbeAll(ctx context.Context, hosts []string, onResult func(i int, r ProbeResult)) []ProbeResult {
	results := make([]ProbeResult, len(hosts))
	done := make([]bool, len(hosts))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r := p.Probe(ctx, host)

			mu.Lock()
			results[i] = r
			done[i] = true
			mu.Unlock()

			if onResult != nil {
				onResult(i, r)
			}
			return nil
		})
	}
	_ = g.Wait()

	skipped := 0
	for i := range hosts {
		if !done[i] {
			results[i] = ProbeResult{Technologies: []string{}, Error: DeadlineExceeded, ProbedAt: time.Now().UTC()}
			skipped++
		}
	}
	if skipped > 0 {
		debug.Warnf("Scan deadline reached, %d of %d hosts not probed", skipped, len(hosts))
	}
	return results
}
