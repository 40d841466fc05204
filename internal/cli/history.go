package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/output"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/storage"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/subdomain"
)

var (
	historyDir    string
	historyDomain string
	historyLimit  int
	historyJSON   bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect previously recorded scans",
	Long: `Query the scan history database (~/.subscan/subscan.db).

Scan IDs may be abbreviated to any unique prefix.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded scans, newest first",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <scan-id>",
	Short: "Print a recorded report",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDiffCmd = &cobra.Command{
	Use:   "diff <old-scan-id> <new-scan-id>",
	Short: "Show subdomains added and removed between two scans",
	Args:  cobra.ExactArgs(2),
	RunE:  runHistoryDiff,
}

var historyTechCmd = &cobra.Command{
	Use:   "tech <domain>",
	Short: "Summarize technologies seen on a domain's live hosts",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryTech,
}

func init() {
	historyCmd.PersistentFlags().StringVarP(&historyDir, "output", "o", scanCfg.OutputDir, "Directory holding the history database")

	historyListCmd.Flags().StringVarP(&historyDomain, "domain", "d", "", "Only scans of this domain")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum scans to list")
	historyShowCmd.Flags().BoolVar(&historyJSON, "json", false, "Print the report as JSON")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDiffCmd)
	historyCmd.AddCommand(historyTechCmd)
}

func openHistory() (*storage.SQLiteStorage, error) {
	db, err := storage.NewSQLiteStorage(historyDir)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return db, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	domain := historyDomain
	if domain != "" {
		if domain, err = subdomain.NormalizeDomain(domain); err != nil {
			return err
		}
	}

	scans, err := db.ListScans(cmd.Context(), domain, historyLimit)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		color.New(color.FgHiBlack).Println("No scans recorded yet. Run 'subscan scan <domain>' first.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOMAIN\tSTARTED\tHOSTS\tLIVE\tFLAGS")
	for _, s := range scans {
		var flags string
		if s.WildcardDetected {
			flags += "wildcard "
		}
		if s.Partial {
			flags += "partial"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(s.ID), s.Domain, s.StartedAt.Local().Format(time.DateTime), s.Total, s.Live, flags)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := db.LoadReport(cmd.Context(), args[0])
	if errors.Is(err, storage.ErrScanNotFound) {
		return fmt.Errorf("no scan matches %q", args[0])
	}
	if err != nil {
		return err
	}

	if historyJSON {
		return output.WriteJSON(os.Stdout, report)
	}
	output.PrintSummary(os.Stdout, report)
	return nil
}

func runHistoryDiff(cmd *cobra.Command, args []string) error {
	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	// Resolve prefixes to full IDs first
	oldReport, err := db.LoadReport(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	newReport, err := db.LoadReport(cmd.Context(), args[1])
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}

	diff, err := db.DiffSubdomains(cmd.Context(), oldReport.ScanID, newReport.ScanID)
	if err != nil {
		return err
	}

	bold("\n[+] %s: %s -> %s", newReport.Domain, shortID(oldReport.ScanID), shortID(newReport.ScanID))
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	for _, h := range diff.Added {
		green.Printf("    + %s\n", h)
	}
	for _, h := range diff.Removed {
		red.Printf("    - %s\n", h)
	}
	fmt.Printf("\n    %d added, %d removed\n", len(diff.Added), len(diff.Removed))
	return nil
}

func runHistoryTech(cmd *cobra.Command, args []string) error {
	domain, err := subdomain.NormalizeDomain(args[0])
	if err != nil {
		return err
	}

	db, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	stack, err := db.GetTechStack(cmd.Context(), domain)
	if err != nil {
		return err
	}
	if len(stack) == 0 {
		color.New(color.FgHiBlack).Printf("No technologies recorded for %s\n", domain)
		return nil
	}

	names := make([]string, 0, len(stack))
	for name := range stack {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if stack[names[i]] != stack[names[j]] {
			return stack[names[i]] > stack[names[j]]
		}
		return names[i] < names[j]
	})

	bold("\n[+] Technologies on %s", domain)
	for _, name := range names {
		fmt.Printf("    %-24s %d hosts\n", name, stack[name])
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
