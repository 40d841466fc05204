package subdomain

import (
	"net/http"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/config"
)

// SourceNames lists every source subscan knows about, in display order
var SourceNames = []string{"crtsh", "virustotal", "shodan", "subfinder"}

// NewSources builds the enabled sources from cfg. Key-gated sources are
// always built and report "skipped" themselves when their key is missing,
// so the report shows why a provider contributed nothing.
func NewSources(cfg *config.Config, client *http.Client) []Source {
	opts := SourceOptions{
		Client:   client,
		MaxPages: cfg.MaxPagesPerSource,
		RPS:      cfg.SourceRPS,
	}

	var sources []Source
	if cfg.CertTransparencyEnabled {
		sources = append(sources, NewCrtShSource(opts))
	}
	sources = append(sources,
		NewVirusTotalSource(cfg.VirusTotalAPIKey, opts),
		NewShodanSource(cfg.ShodanAPIKey, opts),
	)
	if cfg.SubfinderEnabled {
		sources = append(sources, NewSubfinderSource(cfg.SubfinderProviderConfig, cfg.SourceTimeoutDuration()))
	}
	return sources
}
