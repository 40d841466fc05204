package subdomain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
)

// VirusTotalSource reads passive DNS subdomains from the VirusTotal v3 API.
// Pages are chained through meta.cursor.
type VirusTotalSource struct {
	httpSource
	apiKey   string
	maxPages int
	baseURL  string
}

type vtSubdomainsResponse struct {
	Data []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"data"`
	Meta struct {
		Cursor string `json:"cursor"`
	} `json:"meta"`
}

// NewVirusTotalSource creates the VirusTotal source. An empty key disables it.
func NewVirusTotalSource(apiKey string, opts SourceOptions) *VirusTotalSource {
	opts = opts.withDefaults()
	return &VirusTotalSource{
		httpSource: newHTTPSource(opts),
		apiKey:     apiKey,
		maxPages:   opts.MaxPages,
		baseURL:    "https://www.virustotal.com",
	}
}

func (s *VirusTotalSource) Name() string { return "virustotal" }

func (s *VirusTotalSource) Discover(ctx context.Context, domain string) *SourceResult {
	if s.apiKey == "" {
		return skipped(s.Name(), "no API key")
	}
	start := debug.LogStart(s.Name(), domain)

	var names []string
	cursor := ""
	pages := 0
	for pages < s.maxPages {
		u := fmt.Sprintf("%s/api/v3/domains/%s/subdomains?limit=40", s.baseURL, url.PathEscape(domain))
		if cursor != "" {
			u += "&cursor=" + url.QueryEscape(cursor)
		}

		body, err := s.get(ctx, u, map[string]string{"x-apikey": s.apiKey})
		if err != nil {
			return finish(s.Name(), domain, start, names, pages, err)
		}
		pages++

		var resp vtSubdomainsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return finish(s.Name(), domain, start, names, pages, fmt.Errorf("decode page %d: %w", pages, err))
		}
		for _, d := range resp.Data {
			names = append(names, d.ID)
		}

		if resp.Meta.Cursor == "" || len(resp.Data) == 0 {
			break
		}
		cursor = resp.Meta.Cursor
	}

	if pages == s.maxPages && cursor != "" {
		debug.Debugf("%s: stopped at page ceiling (%d)", s.Name(), s.maxPages)
	}
	return finish(s.Name(), domain, start, names, pages, nil)
}
