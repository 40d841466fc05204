package subdomain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
)

// CrtShSource queries Certificate Transparency logs through crt.sh.
// crt.sh returns everything in one response, so there is no pagination.
type CrtShSource struct {
	httpSource
	baseURL string
}

// NewCrtShSource creates the CT log source
func NewCrtShSource(opts SourceOptions) *CrtShSource {
	opts = opts.withDefaults()
	return &CrtShSource{httpSource: newHTTPSource(opts), baseURL: "https://crt.sh"}
}

func (s *CrtShSource) Name() string { return "crtsh" }

func (s *CrtShSource) Discover(ctx context.Context, domain string) *SourceResult {
	start := debug.LogStart(s.Name(), domain)

	u := fmt.Sprintf("%s/?q=%s&output=json", s.baseURL, url.QueryEscape("%."+domain))
	body, err := s.get(ctx, u, nil)
	if err != nil {
		return finish(s.Name(), domain, start, nil, 0, err)
	}

	var entries []struct {
		NameValue  string `json:"name_value"`
		CommonName string `json:"common_name"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return finish(s.Name(), domain, start, nil, 1, fmt.Errorf("decode crt.sh response: %w", err))
	}

	var names []string
	for _, e := range entries {
		// name_value holds one SAN per line
		names = append(names, strings.Split(e.NameValue, "\n")...)
		if e.CommonName != "" {
			names = append(names, e.CommonName)
		}
	}
	return finish(s.Name(), domain, start, names, 1, nil)
}
