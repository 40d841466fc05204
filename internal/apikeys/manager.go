// Package apikeys manages the optional provider credentials used by the
// passive sources. Keys live in ~/.subscan/config.yaml and can be overridden
// by environment variables; an absent key simply disables its source.
package apikeys

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk key file
type Config struct {
	OSINT OSINTKeys `yaml:"osint"`

	// Path to a subfinder provider-config.yaml used by the subfinder source
	SubfinderProviderConfig string `yaml:"subfinder_provider_config,omitempty"`
}

// OSINTKeys holds API keys for the key-gated sources
type OSINTKeys struct {
	VirusTotal []string `yaml:"virustotal,omitempty"`
	Shodan     []string `yaml:"shodan,omitempty"`
}

// Manager handles API key operations
type Manager struct {
	config     *Config
	configPath string
	getenv     func(string) string
}

// NewManager creates a manager for the default config path
func NewManager() *Manager {
	return NewManagerAt(GetDefaultConfigPath())
}

// NewManagerAt creates a manager for an explicit config path
func NewManagerAt(path string) *Manager {
	return &Manager{
		config:     &Config{},
		configPath: path,
		getenv:     os.Getenv,
	}
}

// GetDefaultConfigPath returns the key file path
func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".subscan", "config.yaml")
}

// GetSubfinderConfigPath returns subfinder's own provider config path
func GetSubfinderConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "subfinder", "provider-config.yaml")
}

// Path returns the file this manager reads and writes
func (m *Manager) Path() string {
	return m.configPath
}

// Load loads API keys from config file and environment variables
func (m *Manager) Load() error {
	if err := m.loadFromFile(); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read %s: %w", m.configPath, err)
		}
	}
	m.loadFromEnv()
	return nil
}

// LoadFile loads only the key file. Use it before Save so environment
// keys are not written to disk.
func (m *Manager) LoadFile() error {
	if err := m.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", m.configPath, err)
	}
	return nil
}

func (m *Manager) loadFromFile() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, m.config)
}

// Environment keys take precedence: they are placed first so First() returns them
func (m *Manager) loadFromEnv() {
	envMappings := []struct {
		env    string
		target *[]string
	}{
		{"VT_API_KEY", &m.config.OSINT.VirusTotal},
		{"VIRUSTOTAL_API_KEY", &m.config.OSINT.VirusTotal},
		{"SHODAN_API_KEY", &m.config.OSINT.Shodan},
	}

	for _, mapping := range envMappings {
		key := strings.TrimSpace(m.getenv(mapping.env))
		if key == "" || containsKey(*mapping.target, key) {
			continue
		}
		*mapping.target = append([]string{key}, *mapping.target...)
	}
}

// Save saves the current config to file
func (m *Manager) Save() error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	header := "# subscan provider keys - run 'subscan config show' to inspect\n\n"
	return os.WriteFile(m.configPath, []byte(header+string(data)), 0600)
}

// GetConfig returns the loaded configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// First returns the first usable key for a provider, or "" when none is set
func (m *Manager) First(provider string) string {
	keys, ok := m.keysFor(provider)
	if !ok {
		return ""
	}
	for _, k := range *keys {
		if k != "" && !isPlaceholder(k) {
			return k
		}
	}
	return ""
}

// Set stores a key for a provider, making it the preferred one
func (m *Manager) Set(provider, key string) error {
	keys, ok := m.keysFor(provider)
	if !ok {
		return fmt.Errorf("unknown provider %q (supported: virustotal, shodan)", provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty key for %s", provider)
	}

	filtered := []string{key}
	for _, k := range *keys {
		if k != key {
			filtered = append(filtered, k)
		}
	}
	*keys = filtered
	return nil
}

func (m *Manager) keysFor(provider string) (*[]string, bool) {
	switch strings.ToLower(provider) {
	case "virustotal", "vt":
		return &m.config.OSINT.VirusTotal, true
	case "shodan":
		return &m.config.OSINT.Shodan, true
	}
	return nil, false
}

// ImportFromSubfinder copies virustotal/shodan keys out of subfinder's provider config
func (m *Manager) ImportFromSubfinder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}

	var subfinderConfig map[string][]string
	if err := yaml.Unmarshal(data, &subfinderConfig); err != nil {
		return 0
	}

	imported := 0
	for _, provider := range []string{"virustotal", "shodan"} {
		target, _ := m.keysFor(provider)
		for _, k := range subfinderConfig[provider] {
			if k == "" || isPlaceholder(k) || containsKey(*target, k) {
				continue
			}
			*target = append(*target, k)
			imported++
		}
	}
	return imported
}

// ShowConfig renders the configured keys, masked
func (m *Manager) ShowConfig() string {
	var sb strings.Builder
	sb.WriteString("OSINT keys:\n")
	for _, provider := range []string{"virustotal", "shodan"} {
		keys, _ := m.keysFor(provider)
		if len(*keys) == 0 {
			sb.WriteString(fmt.Sprintf("  %-12s (not set, source disabled)\n", provider))
			continue
		}
		masked := make([]string, 0, len(*keys))
		for _, k := range *keys {
			masked = append(masked, maskKey(k))
		}
		sb.WriteString(fmt.Sprintf("  %-12s %s\n", provider, strings.Join(masked, ", ")))
	}
	if m.config.SubfinderProviderConfig != "" {
		sb.WriteString(fmt.Sprintf("Subfinder provider config: %s\n", m.config.SubfinderProviderConfig))
	}
	return sb.String()
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// TestResult represents the result of testing an API key
type TestResult struct {
	Provider string
	Key      string
	Valid    bool
	Error    string
	Latency  time.Duration
}

// TestKey checks a key against the provider's account endpoint
func TestKey(client *http.Client, provider, key string) TestResult {
	result := TestResult{
		Provider: provider,
		Key:      maskKey(key),
	}

	var testURL string
	headers := map[string]string{}
	switch strings.ToLower(provider) {
	case "shodan":
		testURL = "https://api.shodan.io/api-info?key=" + key
	case "virustotal":
		testURL = "https://www.virustotal.com/api/v3/ip_addresses/8.8.8.8"
		headers["x-apikey"] = key
	default:
		result.Error = "testing not implemented"
		return result
	}

	req, err := http.NewRequest(http.MethodGet, testURL, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		// the request URL can carry the key, so report only the cause
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
		}
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		result.Valid = true
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		result.Error = "invalid or expired key"
	case resp.StatusCode == http.StatusTooManyRequests:
		result.Valid = true
		result.Error = "rate limited (key is valid)"
	default:
		result.Error = fmt.Sprintf("status: %d", resp.StatusCode)
	}
	return result
}

// maskKey masks a key for display
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// isPlaceholder checks if a key is a placeholder value
func isPlaceholder(key string) bool {
	key = strings.ToLower(key)
	placeholders := []string{
		"your_", "xxx", "your-", "api_key", "api-key",
		"replace", "changeme", "todo", "fixme", "your ",
	}
	for _, p := range placeholders {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

// CreateDefaultConfig writes a template key file if none exists
func CreateDefaultConfig(configPath string) (bool, error) {
	if _, err := os.Stat(configPath); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return false, err
	}

	template := `# subscan provider keys
# Sources without a key are skipped, they never fail a scan.
# Environment overrides: VT_API_KEY / VIRUSTOTAL_API_KEY, SHODAN_API_KEY

osint:
  # VirusTotal - https://virustotal.com (500 lookups/day, 4/min on the free tier)
  virustotal: []

  # Shodan - https://account.shodan.io
  shodan: []

# Optional subfinder provider config (defaults to ~/.config/subfinder/provider-config.yaml)
subfinder_provider_config: ""
`
	return true, os.WriteFile(configPath, []byte(template), 0600)
}
