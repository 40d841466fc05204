package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/scan"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/subdomain"
)

// WriteJSON writes the report as indented JSON
func WriteJSON(w io.Writer, r *scan.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintSummary writes the colored console view of a report
func PrintSummary(w io.Writer, r *scan.Report) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	fmt.Fprintln(w)
	bold.Fprintf(w, "[+] %s: %d subdomains, %d live", r.Domain, len(r.Results), r.LiveCount())
	gray.Fprintf(w, "  (%s, scan %s)\n", r.Duration(), r.ScanID)

	if r.WildcardDetected {
		yellow.Fprintf(w, "[!] Wildcard DNS: %s resolves to %s\n", r.Wildcard.ProbeHost, strings.Join(r.Wildcard.Addresses, ", "))
	} else if r.Wildcard.Caveat != "" {
		yellow.Fprintf(w, "[!] %s\n", r.Wildcard.Caveat)
	}
	if r.Partial {
		yellow.Fprintln(w, "[!] Scan deadline reached, results are partial")
	}

	fmt.Fprintln(w)
	for _, s := range r.SourceSummary {
		c := green
		switch s.Status {
		case subdomain.StatusRateLimited, subdomain.StatusTimedOut:
			c = yellow
		case subdomain.StatusFailed:
			c = red
		case subdomain.StatusSkipped:
			c = gray
		}
		line := fmt.Sprintf("    %-11s %-13s %4d hosts", s.Source, s.Status, s.Count)
		if s.Pages > 1 {
			line += fmt.Sprintf(" (%d pages)", s.Pages)
		}
		if s.Error != "" && s.Status != subdomain.StatusCompleted {
			line += "  " + s.Error
		}
		c.Fprintln(w, line)
	}
	fmt.Fprintln(w)

	if len(r.Results) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tSTATUS\tSERVER\tTECHNOLOGIES\tSOURCES")
	for _, res := range r.Results {
		status := "-"
		if res.HTTPStatus != nil {
			status = fmt.Sprint(*res.HTTPStatus)
		} else if res.ResolutionOnly() {
			status = "dns"
		}
		server := "-"
		if res.Server != nil {
			server = *res.Server
		}
		techs := strings.Join(res.Technologies, ",")
		if techs == "" {
			techs = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", res.Hostname, status, server, techs, strings.Join(res.Sources, ","))
	}
	tw.Flush()
}
