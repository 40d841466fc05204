package techdetect

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"net/netip"
	"strings"
)

//go:embed ranges/cloudflare-ipv4.txt
var cloudflareIPv4 string

// providerRanges holds the CDN ranges checked by ProviderForIP
var providerRanges = map[string][]netip.Prefix{
	"Cloudflare": mustParseRanges(cloudflareIPv4),
}

// ParseRanges reads one CIDR per line, skipping blanks and # comments
func ParseRanges(r io.Reader) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := netip.ParsePrefix(line)
		if err != nil {
			return nil, fmt.Errorf("parse range %q: %w", line, err)
		}
		prefixes = append(prefixes, p.Masked())
	}
	return prefixes, scanner.Err()
}

func mustParseRanges(s string) []netip.Prefix {
	p, err := ParseRanges(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return p
}

// ProviderForIP returns the CDN label for addr, or "" when addr is not in
// any known range or is not a valid IPv4 address.
func ProviderForIP(addr string) string {
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is4() {
		return ""
	}
	for label, prefixes := range providerRanges {
		for _, p := range prefixes {
			if p.Contains(ip) {
				return label
			}
		}
	}
	return ""
}

// ProvidersForAddrs returns the sorted labels of every provider owning one of addrs
func ProvidersForAddrs(addrs []string) []string {
	labels := make(map[string]bool)
	for _, a := range addrs {
		if l := ProviderForIP(a); l != "" {
			labels[l] = true
		}
	}
	return sorted(labels)
}
