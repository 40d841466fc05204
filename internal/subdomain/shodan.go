package subdomain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/ratelimit"
)

// ShodanSource reads the Shodan DNS database. Shodan returns bare labels
// which are joined back onto the domain; "more" drives pagination.
type ShodanSource struct {
	httpSource
	apiKey   string
	maxPages int
	baseURL  string
}

type shodanDomainResponse struct {
	Domain     string   `json:"domain"`
	Subdomains []string `json:"subdomains"`
	More       bool     `json:"more"`
	Error      string   `json:"error"`
}

// NewShodanSource creates the Shodan source. An empty key disables it.
func NewShodanSource(apiKey string, opts SourceOptions) *ShodanSource {
	opts = opts.withDefaults()
	return &ShodanSource{
		httpSource: newHTTPSource(opts),
		apiKey:     apiKey,
		maxPages:   opts.MaxPages,
		baseURL:    "https://api.shodan.io",
	}
}

func (s *ShodanSource) Name() string { return "shodan" }

func (s *ShodanSource) Discover(ctx context.Context, domain string) *SourceResult {
	if s.apiKey == "" {
		return skipped(s.Name(), "no API key")
	}
	start := debug.LogStart(s.Name(), domain)

	var names []string
	pages := 0
	for page := 1; page <= s.maxPages; page++ {
		u := fmt.Sprintf("%s/dns/domain/%s?key=%s&page=%d", s.baseURL, url.PathEscape(domain), url.QueryEscape(s.apiKey), page)
		body, err := s.get(ctx, u, nil)
		var se *ratelimit.StatusError
		if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
			err = fmt.Errorf("invalid API key: %w", err)
		}
		if err != nil {
			return finish(s.Name(), domain, start, names, pages, err)
		}
		pages++

		var resp shodanDomainResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return finish(s.Name(), domain, start, names, pages, fmt.Errorf("decode page %d: %w", page, err))
		}
		if resp.Error != "" {
			return finish(s.Name(), domain, start, names, pages, fmt.Errorf("shodan: %s", resp.Error))
		}

		for _, label := range resp.Subdomains {
			if label == "" {
				continue
			}
			names = append(names, label+"."+domain)
		}
		if !resp.More {
			break
		}
	}
	return finish(s.Name(), domain, start, names, pages, nil)
}
