package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/apikeys"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "subscan",
	Short: "Passive subdomain discovery with HTTP liveness and technology probing",
	Long: `subscan - passive subdomain discovery for a single domain.

Queries certificate transparency, VirusTotal, Shodan and the subfinder engine,
checks for wildcard DNS, then probes every candidate over HTTPS/HTTP to report
status, server, and technologies.

Examples:
  subscan scan example.com
  subscan scan example.com --json --suppress-wildcard
  subscan serve --port 8888
  subscan history list --domain example.com`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command. ctx is cancelled on interrupt, which ends
// a running scan with a partial report.
func Execute(ctx context.Context) error {
	// A missing key file only disables the keyed sources
	if _, err := apikeys.CreateDefaultConfig(apikeys.GetDefaultConfigPath()); err != nil {
		color.New(color.FgYellow).Printf("[!] Could not create key template: %v\n", err)
	}
	return rootCmd.ExecuteContext(ctx)
}

func printBanner() {
	cyan := color.New(color.FgCyan, color.Bold)
	gray := color.New(color.FgHiBlack)
	cyan.Println(`
             __
   ___ __ __/ /  ___ _______ ____
  (_-</ // / _ \(_-</ __/ _ ` + "`" + `/ _ \
 /___/\_,_/_.__/___/\__/\_,_/_//_/`)
	gray.Printf("  v%s - passive subdomain discovery\n\n", version.Version)
}

// bold prints a section header the way every command does
func bold(format string, args ...interface{}) {
	color.New(color.FgCyan, color.Bold).Println(fmt.Sprintf(format, args...))
}
