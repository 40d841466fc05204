package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.MaxPagesPerSource != 5 || cfg.ProbeConcurrency != 15 || cfg.ProbeTimeoutMs != 5000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.CertTransparencyEnabled || !cfg.SubfinderEnabled {
		t.Error("keyless sources should be enabled by default")
	}
	if cfg.ProbeTimeout() != 5*time.Second || cfg.ScanTimeoutDuration() != 0 {
		t.Errorf("durations: probe=%s scan=%s", cfg.ProbeTimeout(), cfg.ScanTimeoutDuration())
	}

	// the default resolver list must not alias the package variable
	cfg.Resolvers[0] = "changed"
	if DefaultResolvers[0] == "changed" {
		t.Error("DefaultConfig shares DefaultResolvers")
	}
}

func TestValidateRejectsUnboundedValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pages", func(c *Config) { c.MaxPagesPerSource = 0 }},
		{"zero concurrency", func(c *Config) { c.ProbeConcurrency = 0 }},
		{"zero probe timeout", func(c *Config) { c.ProbeTimeoutMs = 0 }},
		{"zero source timeout", func(c *Config) { c.SourceTimeout = 0 }},
		{"negative scan timeout", func(c *Config) { c.ScanTimeout = -1 }},
		{"zero dns timeout", func(c *Config) { c.DNSTimeoutMs = 0 }},
		{"no resolvers", func(c *Config) { c.Resolvers = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
