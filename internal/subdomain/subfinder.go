package subdomain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/projectdiscovery/subfinder/v2/pkg/runner"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
)

// enumerateFunc returns the hostnames subfinder found for domain
type enumerateFunc func(ctx context.Context, domain string) ([]string, error)

// SubfinderSource embeds the subfinder passive engine as one aggregated
// source. Pagination and per-provider quotas are handled inside subfinder,
// so a run always counts as a single page.
type SubfinderSource struct {
	providerConfig string
	timeout        time.Duration
	enumerate      enumerateFunc
}

// NewSubfinderSource creates the subfinder source. providerConfig may be empty.
func NewSubfinderSource(providerConfig string, timeout time.Duration) *SubfinderSource {
	s := &SubfinderSource{providerConfig: providerConfig, timeout: timeout}
	s.enumerate = s.runSubfinder
	return s
}

func (s *SubfinderSource) Name() string { return "subfinder" }

func (s *SubfinderSource) Discover(ctx context.Context, domain string) *SourceResult {
	start := debug.LogStart(s.Name(), domain)

	hosts, err := s.enumerate(ctx, domain)
	if err == nil && ctx.Err() != nil {
		// subfinder returns what it had when the context expired
		err = ctx.Err()
	}
	sort.Strings(hosts)
	debug.Debugf("subfinder: %d hosts", len(hosts))
	return finish(s.Name(), domain, start, hosts, 1, err)
}

func (s *SubfinderSource) runSubfinder(ctx context.Context, domain string) ([]string, error) {
	timeout := s.timeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	minutes := int(math.Ceil(timeout.Minutes()))
	if minutes < 1 {
		minutes = 1
	}

	opts := &runner.Options{
		Threads:            10,
		Timeout:            30,
		MaxEnumerationTime: minutes,
		Silent:             true,
		ProviderConfig:     s.providerConfig,
	}

	r, err := runner.NewRunner(opts)
	if err != nil {
		return nil, fmt.Errorf("create subfinder runner: %w", err)
	}
	// results are written one hostname per line once enumeration ends
	var out bytes.Buffer
	err = r.EnumerateSingleDomainWithCtx(ctx, domain, []io.Writer{&out})
	return parseHostLines(out.Bytes()), err
}

func parseHostLines(data []byte) []string {
	var hosts []string
	for _, line := range bytes.Split(data, []byte("\n")) {
		if h := strings.TrimSpace(string(line)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
