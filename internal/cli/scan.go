package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/apikeys"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/config"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/output"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/scan"
)

var (
	scanCfg = config.DefaultConfig()

	noCT        bool
	noSubfinder bool
	noHistory   bool
	jsonOutput  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <domain>",
	Short: "Discover and probe the subdomains of a domain",
	Long: `Discover subdomains from passive sources and probe each one.

Sources without an API key are skipped, never fatal. Keys come from
~/.subscan/config.yaml, the environment, or the --vt-key/--shodan-key flags.

Results are written to <output>/<domain>/<scan-id>/ and recorded in the
history database unless --no-history is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()

	// Sources
	f.BoolVar(&noCT, "no-ct", false, "Disable the crt.sh certificate transparency source")
	f.BoolVar(&noSubfinder, "no-subfinder", false, "Disable the embedded subfinder engine")
	f.StringVar(&scanCfg.VirusTotalAPIKey, "vt-key", "", "VirusTotal API key (overrides config file)")
	f.StringVar(&scanCfg.ShodanAPIKey, "shodan-key", "", "Shodan API key (overrides config file)")
	f.StringVar(&scanCfg.SubfinderProviderConfig, "subfinder-config", "", "subfinder provider-config.yaml")

	// Limits
	f.IntVar(&scanCfg.MaxPagesPerSource, "max-pages", scanCfg.MaxPagesPerSource, "Page ceiling per paginated source")
	f.Float64Var(&scanCfg.SourceRPS, "rps", scanCfg.SourceRPS, "Requests per second per source (0 = unpaced)")
	f.IntVarP(&scanCfg.ProbeConcurrency, "concurrency", "c", scanCfg.ProbeConcurrency, "Concurrent HTTP probes")

	// Timeouts
	f.IntVar(&scanCfg.ProbeTimeoutMs, "probe-timeout", scanCfg.ProbeTimeoutMs, "Per-host probe budget in milliseconds")
	f.IntVar(&scanCfg.SourceTimeout, "source-timeout", scanCfg.SourceTimeout, "Per-source timeout in seconds")
	f.IntVar(&scanCfg.ScanTimeout, "timeout", scanCfg.ScanTimeout, "Whole-scan deadline in seconds (0 = none)")
	f.IntVar(&scanCfg.DNSTimeoutMs, "dns-timeout", scanCfg.DNSTimeoutMs, "Per-query DNS timeout in milliseconds")
	f.StringSliceVar(&scanCfg.Resolvers, "resolvers", scanCfg.Resolvers, "DNS resolvers (host:port)")

	// Output
	f.StringVarP(&scanCfg.OutputDir, "output", "o", scanCfg.OutputDir, "Output directory")
	f.BoolVar(&scanCfg.SuppressWildcard, "suppress-wildcard", false, "Hide resolution-only hosts when wildcard DNS is detected")
	f.BoolVar(&jsonOutput, "json", false, "Print the report as JSON instead of a table")
	f.BoolVar(&noHistory, "no-history", false, "Do not record the scan in the history database")
	f.BoolVar(&scanCfg.Debug, "debug", false, "Show per-source timing logs")
}

func runScan(cmd *cobra.Command, args []string) error {
	if !jsonOutput {
		printBanner()
	}

	cfg := *scanCfg
	cfg.Domain = args[0]
	cfg.CertTransparencyEnabled = !noCT
	cfg.SubfinderEnabled = !noSubfinder
	cfg.HistoryDB = !noHistory
	applyKeys(&cfg)

	if cfg.Debug {
		debug.Enable()
		defer debug.Summary()
	}

	var (
		bar     *progressbar.ProgressBar
		barOnce sync.Once
	)
	progress := func(done, total int) {
		barOnce.Do(func() {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("Probing"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionClearOnFinish(),
			)
		})
		_ = bar.Add(1)
	}

	scanner, err := scan.New(&cfg, scan.WithProgress(progress))
	if err != nil {
		return err
	}

	debug.Infof("Sources: %s", strings.Join(scanner.SourceNames(), ", "))
	report, err := scanner.Run(cmd.Context(), cfg.Domain)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if errors.Is(err, scan.ErrNoSourcesCompleted) {
			return fmt.Errorf("%w (try a larger --timeout)", err)
		}
		return err
	}

	policy := output.Policy{SuppressWildcard: cfg.SuppressWildcard}
	var mgr *output.Manager
	if cfg.HistoryDB {
		mgr = output.NewManagerWithSQLite(cfg.OutputDir, policy)
	} else {
		mgr = output.NewManager(cfg.OutputDir, policy)
	}
	defer mgr.Close()

	// Saving uses a fresh context so an interrupted scan still persists
	view, dir, err := mgr.Save(context.WithoutCancel(cmd.Context()), report)
	if err != nil {
		color.New(color.FgYellow).Fprintf(os.Stderr, "[!] Could not save results: %v\n", err)
	}

	if jsonOutput {
		return output.WriteJSON(os.Stdout, view)
	}
	output.PrintSummary(os.Stdout, view)
	if dir != "" {
		color.New(color.FgHiBlack).Printf("\nResults saved to %s\n", dir)
	}
	return nil
}

// applyKeys fills keys not given as flags from the key file and environment
func applyKeys(cfg *config.Config) {
	mgr := apikeys.NewManager()
	if err := mgr.Load(); err != nil {
		debug.Warnf("Could not load API keys: %v", err)
	}
	if cfg.VirusTotalAPIKey == "" {
		cfg.VirusTotalAPIKey = mgr.First("virustotal")
	}
	if cfg.ShodanAPIKey == "" {
		cfg.ShodanAPIKey = mgr.First("shodan")
	}
	if cfg.SubfinderProviderConfig == "" {
		cfg.SubfinderProviderConfig = mgr.GetConfig().SubfinderProviderConfig
	}
}
