package subdomain

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// ErrInvalidDomain is returned for root domains that are not plausible hostnames
var ErrInvalidDomain = errors.New("invalid domain")

var (
	labelRe    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	hostCharRe = regexp.MustCompile(`^[a-z0-9_.-]+$`)
)

// NormalizeDomain validates a root domain and returns its lowercase ASCII
// (punycode) form without a trailing dot.
func NormalizeDomain(input string) (string, error) {
	d := strings.TrimSuffix(strings.TrimSpace(input), ".")
	if d == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDomain)
	}
	if net.ParseIP(d) != nil {
		return "", fmt.Errorf("%w: %q is an IP address", ErrInvalidDomain, input)
	}

	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidDomain, input, err)
	}
	ascii = strings.ToLower(ascii)

	if len(ascii) > 253 {
		return "", fmt.Errorf("%w: %q is longer than 253 characters", ErrInvalidDomain, input)
	}
	labels := strings.Split(ascii, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("%w: %q has no public suffix", ErrInvalidDomain, input)
	}
	for _, l := range labels {
		if !labelRe.MatchString(l) {
			return "", fmt.Errorf("%w: %q has invalid label %q", ErrInvalidDomain, input, l)
		}
	}
	return ascii, nil
}

// NormalizeHost is the candidate uniqueness key: lowercase, trimmed, no
// trailing dot and no leading wildcard label.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(h, ".")
	h = strings.TrimPrefix(h, "*.")
	return h
}

// InScope reports whether an already-normalized host equals domain or is a
// subdomain of it. Providers are not trusted to scope their own output.
func InScope(host, domain string) bool {
	if host == "" || !hostCharRe.MatchString(host) {
		return false
	}
	if strings.Contains(host, "..") || strings.HasPrefix(host, ".") {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// scopeHosts normalizes, scope-checks and dedupes raw provider output,
// keeping first-seen order.
func scopeHosts(raw []string, domain string) []string {
	seen := make(map[string]bool, len(raw))
	var result []string
	for _, r := range raw {
		h := NormalizeHost(r)
		if !InScope(h, domain) || seen[h] {
			continue
		}
		seen[h] = true
		result = append(result, h)
	}
	return result
}
