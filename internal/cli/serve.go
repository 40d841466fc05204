package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/scan"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/server"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/storage"
)

var (
	serveCfg    = server.DefaultConfig()
	serveNoAuth bool
	serveOutput string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan API server",
	Long: `Expose scans over HTTP.

  POST /api/scans        {"domain": "example.com", "suppressWildcard": true}
  GET  /api/scans        list recorded scans (?domain=&limit=)
  GET  /api/scans/:id    full report for a scan (id or unique prefix)

The server binds to localhost and requires an API key unless --no-auth is set.
Send the key as "Authorization: Bearer <key>" or "X-API-Key: <key>".`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.IntVarP(&serveCfg.Port, "port", "p", serveCfg.Port, "Port to listen on")
	f.StringVar(&serveCfg.Host, "host", serveCfg.Host, "Address to bind (use 0.0.0.0 to expose)")
	f.StringVar(&serveCfg.APIKey, "api-key", "", "API key (generated when empty)")
	f.BoolVar(&serveNoAuth, "no-auth", false, "Disable API key authentication")
	f.StringSliceVar(&serveCfg.AllowedOrigins, "cors", serveCfg.AllowedOrigins, "Allowed CORS origins")
	f.BoolVar(&serveCfg.SuppressWildcard, "suppress-wildcard", false, "Default wildcard policy for requests that do not set one")
	f.Float64Var(&serveCfg.ScansPerMinute, "scans-per-minute", serveCfg.ScansPerMinute, "Scan budget per client")
	f.IntVar(&serveCfg.ScanBurst, "scan-burst", serveCfg.ScanBurst, "Scan burst per client")
	f.StringVarP(&serveOutput, "output", "o", scanCfg.OutputDir, "Directory holding the history database")
	f.BoolVar(&serveCfg.Debug, "debug", false, "Verbose logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	printBanner()

	cfg := *scanCfg
	applyKeys(&cfg)
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = 300
	}
	if serveCfg.Debug {
		debug.Enable()
	}

	scanner, err := scan.New(&cfg)
	if err != nil {
		return err
	}

	var history server.History
	db, err := storage.NewSQLiteStorage(serveOutput)
	if err != nil {
		debug.Warnf("History disabled: %v", err)
	} else {
		defer db.Close()
		history = db
	}

	switch {
	case serveNoAuth:
		serveCfg.APIKey = ""
		color.New(color.FgYellow).Println("[!] Authentication disabled, anyone who can reach the port can run scans")
	case serveCfg.APIKey == "":
		serveCfg.APIKey = server.GenerateAPIKey()
		color.New(color.FgGreen).Printf("[+] Generated API key: %s\n", serveCfg.APIKey)
	}

	srv := server.New(serveCfg, scanner, history)
	return srv.StartWithGracefulShutdown(cmd.Context())
}
