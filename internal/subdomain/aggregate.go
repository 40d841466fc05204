package subdomain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
)

// Candidate is a discovered hostname and every source that reported it
type Candidate struct {
	Hostname string   `json:"hostname"`
	Sources  []string `json:"sources"`
}

// stragglerGrace is how long Aggregate waits for sources that ignore
// cancellation once the parent context is done.
const stragglerGrace = 2 * time.Second

// Aggregator fans out to every source and merges what comes back
type Aggregator struct {
	sources []Source
	timeout time.Duration
}

// NewAggregator creates an aggregator; each source call is bounded by timeout
func NewAggregator(timeout time.Duration, sources ...Source) *Aggregator {
	return &Aggregator{sources: sources, timeout: timeout}
}

// Sources returns the configured sources
func (a *Aggregator) Sources() []Source {
	return a.sources
}

// Aggregate runs all sources concurrently. A slow or failing source only
// loses its own contribution. The merge is a single fold on this goroutine;
// the returned candidates are sorted by hostname.
func (a *Aggregator) Aggregate(ctx context.Context, domain string) ([]Candidate, []*SourceResult) {
	results := make(chan *SourceResult, len(a.sources))
	for _, src := range a.sources {
		go func(src Source) {
			sctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			results <- discoverSafely(sctx, src, domain)
		}(src)
	}

	pending := make(map[string]bool, len(a.sources))
	for _, src := range a.sources {
		pending[src.Name()] = true
	}

	merged := make(map[string]map[string]bool)
	var summaries []*SourceResult
	var grace <-chan time.Time
	done := ctx.Done()

	for len(pending) > 0 {
		select {
		case res := <-results:
			delete(pending, res.Source)
			summaries = append(summaries, res)
			fold(merged, res, domain)
		case <-done:
			done = nil
			grace = time.After(stragglerGrace)
		case <-grace:
			for name := range pending {
				debug.Warnf("%s: abandoned after scan deadline", name)
				summaries = append(summaries, &SourceResult{Source: name, Status: StatusTimedOut, Error: ctx.Err().Error()})
			}
			pending = nil
		}
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Source < summaries[j].Source })
	return toCandidates(merged), summaries
}

// discoverSafely turns a panicking source into a failed result
func discoverSafely(ctx context.Context, src Source, domain string) (res *SourceResult) {
	defer func() {
		if r := recover(); r != nil {
			res = &SourceResult{Source: src.Name(), Status: StatusFailed, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()
	res = src.Discover(ctx, domain)
	if res == nil {
		res = &SourceResult{Source: src.Name(), Status: StatusFailed, Error: "no result"}
	}
	res.Source = src.Name()
	return res
}

func fold(merged map[string]map[string]bool, res *SourceResult, domain string) {
	for _, h := range res.Hosts {
		key := NormalizeHost(h)
		if !InScope(key, domain) {
			continue
		}
		if merged[key] == nil {
			merged[key] = make(map[string]bool)
		}
		merged[key][res.Source] = true
	}
}

func toCandidates(merged map[string]map[string]bool) []Candidate {
	candidates := make([]Candidate, 0, len(merged))
	for host, set := range merged {
		sources := make([]string, 0, len(set))
		for s := range set {
			sources = append(sources, s)
		}
		sort.Strings(sources)
		candidates = append(candidates, Candidate{Hostname: host, Sources: sources})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Hostname < candidates[j].Hostname })
	return candidates
}
