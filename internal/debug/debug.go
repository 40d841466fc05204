package debug

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	enabled bool
	mu      sync.Mutex
	out     io.Writer = os.Stderr
	logs    []LogEntry
)

type LogEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Count     int           `json:"count"`
}

// Enable turns on debug logging
func Enable() {
	mu.Lock()
	enabled = true
	mu.Unlock()
}

// IsEnabled returns whether debug logging is enabled
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// SetOutput redirects all log output. Passing nil silences it.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = io.Discard
	}
	out = w
}

// Reset clears the debug flag and the recorded entries
func Reset() {
	mu.Lock()
	enabled = false
	logs = nil
	mu.Unlock()
}

func write(c *color.Color, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	c.Fprintf(out, format, args...)
}

// Infof prints a progress line
func Infof(format string, args ...interface{}) {
	write(color.New(color.FgCyan), "    [*] "+format+"\n", args...)
}

// Successf prints a completed-step line
func Successf(format string, args ...interface{}) {
	write(color.New(color.FgGreen), "    [+] "+format+"\n", args...)
}

// Warnf prints a degraded-but-continuing condition
func Warnf(format string, args ...interface{}) {
	write(color.New(color.FgYellow), "    [!] "+format+"\n", args...)
}

// Debugf prints only when debug logging is enabled
func Debugf(format string, args ...interface{}) {
	if !IsEnabled() {
		return
	}
	write(color.New(color.FgHiBlack), "    [DEBUG "+time.Now().Format("15:04:05.000")+"] "+format+"\n", args...)
}

// LogStart logs the start of a source query
func LogStart(source, domain string) time.Time {
	start := time.Now()
	if IsEnabled() {
		write(color.New(color.FgHiBlack), "    [DEBUG %s] START: %s %s\n", start.Format("15:04:05.000"), source, domain)
	}
	return start
}

// LogEnd logs the completion of a source query and records it for the summary
func LogEnd(source string, start time.Time, status string, count int, err error) {
	duration := time.Since(start)
	end := time.Now()

	mu.Lock()
	logs = append(logs, LogEntry{
		Timestamp: end,
		Source:    source,
		Duration:  duration,
		Status:    status,
		Count:     count,
	})
	mu.Unlock()

	if !IsEnabled() {
		return
	}

	statusColor := color.New(color.FgGreen)
	label := strings.ToUpper(status)
	if err != nil {
		statusColor = color.New(color.FgRed)
		label = fmt.Sprintf("%s: %v", label, err)
	}

	mu.Lock()
	defer mu.Unlock()
	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    [DEBUG %s] END:   %s ", end.Format("15:04:05.000"), source)
	statusColor.Fprintf(out, "%s", label)
	gray.Fprintf(out, " (duration: %s, hosts: %d)\n", duration.Round(time.Millisecond), count)
}

// Summary prints a summary of all source queries
func Summary() {
	if !IsEnabled() {
		return
	}
	entries := GetLogs()
	if len(entries) == 0 {
		return
	}

	mu.Lock()
	defer mu.Unlock()
	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(out)
	cyan.Fprintln(out, "═══════════════════════════════════════════════════════")
	cyan.Fprintln(out, "                    DEBUG SUMMARY")
	cyan.Fprintln(out, "═══════════════════════════════════════════════════════")

	var total time.Duration
	for _, l := range entries {
		mark := "✓"
		if l.Status != "completed" && l.Status != "skipped" {
			mark = "✗"
		}
		fmt.Fprintf(out, "  %s %-14s %-13s %5d %10s\n", mark, l.Source, l.Status, l.Count, l.Duration.Round(time.Millisecond))
		total += l.Duration
	}

	fmt.Fprintln(out, "───────────────────────────────────────────────────────")
	fmt.Fprintf(out, "  Total source time: %s\n", total.Round(time.Millisecond))
	fmt.Fprintf(out, "  Sources queried: %d\n", len(entries))
	cyan.Fprintln(out, "═══════════════════════════════════════════════════════")
}

// GetLogs returns all logged entries
func GetLogs() []LogEntry {
	mu.Lock()
	defer mu.Unlock()
	return append([]LogEntry{}, logs...)
}
