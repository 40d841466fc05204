package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration options for subscan
type Config struct {
	// Target configuration
	Domain string

	// Sources. API keys are optional; a missing key disables that source.
	CertTransparencyEnabled bool
	VirusTotalAPIKey        string
	ShodanAPIKey            string
	SubfinderEnabled        bool
	SubfinderProviderConfig string // Optional subfinder provider-config.yaml

	// Limits
	MaxPagesPerSource int // Page ceiling per paginated source (default: 5)
	SourceRPS         float64
	ProbeConcurrency  int // Concurrent HTTP probes (default: 15)

	// Timeouts
	ProbeTimeoutMs  int // Per-host probe budget shared by HTTPS and HTTP (default: 5000)
	SourceTimeout   int // Per-source timeout in seconds (default: 60)
	ScanTimeout     int // Whole-scan deadline in seconds (default: 0 = no limit)
	DNSTimeoutMs    int // Per-query DNS timeout (default: 3000)
	Resolvers       []string

	// Output
	OutputDir        string
	SuppressWildcard bool // Caller policy: hide resolution-only results under wildcard DNS
	HistoryDB        bool // Record scans in the SQLite history database

	// Debug
	Debug bool
}

// DefaultResolvers are public resolvers used when none are configured
var DefaultResolvers = []string{"1.1.1.1:53", "8.8.8.8:53", "9.9.9.9:53"}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		CertTransparencyEnabled: true,
		SubfinderEnabled:        true,
		MaxPagesPerSource:       5,
		SourceRPS:               1,
		ProbeConcurrency:        15,
		ProbeTimeoutMs:          5000,
		SourceTimeout:           60,
		ScanTimeout:             0,
		DNSTimeoutMs:            3000,
		Resolvers:               append([]string{}, DefaultResolvers...),
		OutputDir:               DefaultDataDir(),
		HistoryDB:               true,
	}
}

// DefaultDataDir returns ~/.subscan, falling back to ./.subscan
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".subscan"
	}
	return filepath.Join(home, ".subscan")
}

// Validate rejects values that would make a scan unbounded or meaningless
func (c *Config) Validate() error {
	if c.MaxPagesPerSource < 1 {
		return fmt.Errorf("max pages per source must be at least 1, got %d", c.MaxPagesPerSource)
	}
	if c.ProbeConcurrency < 1 {
		return fmt.Errorf("probe concurrency must be at least 1, got %d", c.ProbeConcurrency)
	}
	if c.ProbeTimeoutMs < 1 {
		return fmt.Errorf("probe timeout must be positive, got %dms", c.ProbeTimeoutMs)
	}
	if c.SourceTimeout < 1 {
		return fmt.Errorf("source timeout must be positive, got %ds", c.SourceTimeout)
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("scan timeout cannot be negative")
	}
	if c.DNSTimeoutMs < 1 {
		return fmt.Errorf("dns timeout must be positive, got %dms", c.DNSTimeoutMs)
	}
	if len(c.Resolvers) == 0 {
		return fmt.Errorf("at least one resolver is required")
	}
	return nil
}

// ProbeTimeout returns the per-host probe budget
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

// SourceTimeoutDuration returns the per-source budget
func (c *Config) SourceTimeoutDuration() time.Duration {
	return time.Duration(c.SourceTimeout) * time.Second
}

// ScanTimeoutDuration returns the whole-scan deadline, 0 meaning none
func (c *Config) ScanTimeoutDuration() time.Duration {
	return time.Duration(c.ScanTimeout) * time.Second
}

// DNSTimeout returns the per-query DNS timeout
func (c *Config) DNSTimeout() time.Duration {
	return time.Duration(c.DNSTimeoutMs) * time.Millisecond
}
