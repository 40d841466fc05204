package scan

import (
	"time"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/probe"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/subdomain"
)

// Result is one candidate together with its probe outcome
type Result struct {
	Hostname string   `json:"hostname"`
	Sources  []string `json:"sources"`
	probe.ProbeResult
}

// ResolutionOnly reports whether the host resolved but never answered HTTP
func (r Result) ResolutionOnly() bool {
	return len(r.Addresses) > 0 && r.HTTPStatus == nil
}

// Report is the outcome of one scan
type Report struct {
	ScanID           string                    `json:"scanId"`
	Domain           string                    `json:"domain"`
	WildcardDetected bool                      `json:"wildcardDetected"`
	Wildcard         subdomain.WildcardStatus  `json:"wildcard"`
	Results          []Result                  `json:"results"`
	Partial          bool                      `json:"partial"`
	SourceSummary    []*subdomain.SourceResult `json:"sourceSummary"`
	StartedAt        time.Time                 `json:"startedAt"`
	DurationMs       int64                     `json:"durationMs"`
}

// Duration returns the scan's wall time
func (r *Report) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// LiveCount returns how many results answered over HTTP(S)
func (r *Report) LiveCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Live() {
			n++
		}
	}
	return n
}

// SuppressWildcard returns a copy of the report without resolution-only
// results when the zone has wildcard DNS. Those hosts most likely resolve
// only because of the wildcard. The report is returned unchanged otherwise.
func (r *Report) SuppressWildcard() *Report {
	if !r.WildcardDetected {
		return r
	}
	cp := *r
	cp.Results = make([]Result, 0, len(r.Results))
	for _, res := range r.Results {
		if !res.ResolutionOnly() {
			cp.Results = append(cp.Results, res)
		}
	}
	return &cp
}
