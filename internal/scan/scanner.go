package scan

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/config"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/probe"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/resolve"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/subdomain"
)

// ErrNoSourcesCompleted is returned when the scan deadline passed before
// any source answered.
var ErrNoSourcesCompleted = errors.New("scan deadline exceeded before any source completed")

// ProgressFunc is called after each probe with the number finished so far
type ProgressFunc func(done, total int)

type options struct {
	sources   []subdomain.Source
	resolver  resolve.Resolver
	transport http.RoundTripper
	progress  ProgressFunc
}

// Option customizes a Scanner
type Option func(*options)

// WithSources replaces the sources built from config
func WithSources(sources ...subdomain.Source) Option {
	return func(o *options) { o.sources = sources }
}

// WithResolver replaces the DNS resolver used for wildcard checks and probes
func WithResolver(r resolve.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithTransport replaces the prober's HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithProgress registers a probe progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// Scanner runs the discovery pipeline for one domain at a time. It holds no
// per-scan state and may be used concurrently.
type Scanner struct {
	wildcard    *subdomain.WildcardDetector
	aggregator  *subdomain.Aggregator
	prober      *probe.Prober
	scanTimeout time.Duration
	progress    ProgressFunc
}

// New builds a scanner from cfg
func New(cfg *config.Config, opts ...Option) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.resolver == nil {
		o.resolver = resolve.New(cfg.Resolvers, cfg.DNSTimeout())
	}
	if o.sources == nil {
		o.sources = subdomain.NewSources(cfg, subdomain.NewHTTPClient(cfg.SourceTimeoutDuration()))
	}

	return &Scanner{
		wildcard:   subdomain.NewWildcardDetector(o.resolver),
		aggregator: subdomain.NewAggregator(cfg.SourceTimeoutDuration(), o.sources...),
		prober: probe.New(probe.Options{
			Timeout:     cfg.ProbeTimeout(),
			Concurrency: cfg.ProbeConcurrency,
			Transport:   o.transport,
			Resolver:    o.resolver,
		}),
		scanTimeout: cfg.ScanTimeoutDuration(),
		progress:    o.progress,
	}, nil
}

// SourceNames returns the names of the configured sources
func (s *Scanner) SourceNames() []string {
	var names []string
	for _, src := range s.aggregator.Sources() {
		names = append(names, src.Name())
	}
	return names
}

// Run scans domain. Only an invalid domain or a scan deadline that left no
// source answered is an error; everything else degrades into the report.
func (s *Scanner) Run(ctx context.Context, domain string) (*Report, error) {
	domain, err := subdomain.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	if s.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.scanTimeout)
		defer cancel()
	}

	start := time.Now()
	report := &Report{
		ScanID:    uuid.NewString(),
		Domain:    domain,
		StartedAt: start.UTC(),
	}

	debug.Infof("Checking wildcard DNS for %s...", domain)
	ws, err := s.wildcard.Detect(ctx, domain)
	if err != nil {
		debug.Warnf("%v", err)
	}
	report.Wildcard = ws
	report.WildcardDetected = ws.Detected

	debug.Infof("Querying %d sources...", len(s.aggregator.Sources()))
	candidates, summaries := s.aggregator.Aggregate(ctx, domain)
	report.SourceSummary = summaries
	if ctx.Err() != nil && !anyResponded(summaries) {
		return nil, ErrNoSourcesCompleted
	}
	debug.Successf("%d unique subdomains from %d sources", len(candidates), len(summaries))

	hosts := make([]string, len(candidates))
	for i, c := range candidates {
		hosts[i] = c.Hostname
	}

	debug.Infof("Probing %d hosts...", len(hosts))
	var done atomic.Int64
	probes := s.prober.ProbeAll(ctx, hosts, func(int, probe.ProbeResult) {
		n := done.Add(1)
		if s.progress != nil {
			s.progress(int(n), len(hosts))
		}
	})

	report.Results = make([]Result, len(candidates))
	for i, c := range candidates {
		report.Results[i] = Result{Hostname: c.Hostname, Sources: c.Sources, ProbeResult: probes[i]}
	}
	report.Partial = ctx.Err() != nil
	report.DurationMs = time.Since(start).Milliseconds()

	debug.Successf("%d of %d hosts live", report.LiveCount(), len(report.Results))
	return report, nil
}

func anyResponded(summaries []*subdomain.SourceResult) bool {
	for _, s := range summaries {
		if s.Responded() {
			return true
		}
	}
	return false
}
