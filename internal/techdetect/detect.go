package techdetect

import (
	"net/http"
	"sort"
	"strings"
)

// signature maps a case-insensitive token found in one header to a label
type signature struct {
	Token string
	Label string
}

// serverSignatures match the Server header. A token matches as a whole word,
// so "express" does not match "ExpressionEngine". Every match is reported.
var serverSignatures = []signature{
	{"cloudflare", "Cloudflare"},
	{"vercel", "Vercel"},
	{"netlify", "Netlify"},
	{"openresty", "OpenResty"},
	{"nginx", "Nginx"},
	{"apache", "Apache"},
	{"microsoft-iis", "Microsoft IIS"},
	{"litespeed", "LiteSpeed"},
	{"caddy", "Caddy"},
	{"envoy", "Envoy"},
	{"cloudfront", "Amazon CloudFront"},
	{"amazons3", "Amazon S3"},
	{"awselb", "AWS ELB"},
	{"gfe", "Google Frontend"},
	{"google frontend", "Google Frontend"},
	{"gws", "Google Frontend"},
	{"akamai", "Akamai"},
	{"varnish", "Varnish"},
	{"github.com", "GitHub Pages"},
	{"heroku", "Heroku"},
}

var poweredBySignatures = []signature{
	{"php", "PHP"},
	{"asp.net", "ASP.NET"},
	{"express", "Express"},
	{"next.js", "Next.js"},
	{"servlet", "Servlet"},
	{"wp engine", "WordPress"},
	{"wordpress", "WordPress"},
	{"drupal", "Drupal"},
	{"ghost", "Ghost"},
	{"wix", "Wix"},
	{"shopify", "Shopify"},
	{"squarespace", "Squarespace"},
	{"vercel", "Vercel"},
	{"netlify", "Netlify"},
}

var generatorSignatures = []signature{
	{"wordpress", "WordPress"},
	{"drupal", "Drupal"},
	{"joomla", "Joomla"},
	{"ghost", "Ghost"},
	{"hugo", "Hugo"},
	{"wix", "Wix"},
	{"shopify", "Shopify"},
	{"squarespace", "Squarespace"},
	{"gatsby", "Gatsby"},
	{"next.js", "Next.js"},
}

// providerHeaders are set only by the named provider, so their presence
// alone identifies it.
var providerHeaders = []signature{
	{"Cf-Ray", "Cloudflare"},
	{"X-Vercel-Id", "Vercel"},
	{"X-Nf-Request-Id", "Netlify"},
	{"X-Amz-Cf-Id", "Amazon CloudFront"},
	{"X-Github-Request-Id", "GitHub Pages"},
	{"X-Fastly-Request-Id", "Fastly"},
	{"Fastly-Debug-Digest", "Fastly"},
}

// headerValueSignatures identify a provider by a token in a shared header
var headerValueSignatures = []struct {
	Header string
	signature
}{
	{"X-Served-By", signature{"cache", "Fastly"}},
	{"Via", signature{"vegur", "Heroku"}},
}

// Classify maps the Server, X-Powered-By and meta generator values of one
// response to technology labels. The result is deduplicated and sorted;
// empty inputs give an empty (non-nil) slice.
func Classify(server, poweredBy, generator string) []string {
	labels := make(map[string]bool)
	match(labels, server, serverSignatures)
	match(labels, poweredBy, poweredBySignatures)
	match(labels, generator, generatorSignatures)
	return sorted(labels)
}

// ClassifyResponse is Classify over a header set, plus provider-only markers
func ClassifyResponse(headers http.Header, generator string) []string {
	labels := make(map[string]bool)
	for _, l := range Classify(headers.Get("Server"), headers.Get("X-Powered-By"), generator) {
		labels[l] = true
	}
	for _, sig := range providerHeaders {
		if headers.Get(sig.Token) != "" {
			labels[sig.Label] = true
		}
	}
	for _, hv := range headerValueSignatures {
		match(labels, headers.Get(hv.Header), []signature{hv.signature})
	}
	return sorted(labels)
}

// Merge unions label lists, keeping the sorted deduplicated form
func Merge(lists ...[]string) []string {
	labels := make(map[string]bool)
	for _, list := range lists {
		for _, l := range list {
			labels[l] = true
		}
	}
	return sorted(labels)
}

func match(labels map[string]bool, value string, table []signature) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return
	}
	for _, sig := range table {
		if containsWord(v, sig.Token) {
			labels[sig.Label] = true
		}
	}
}

// containsWord reports whether token occurs in v between non-alphanumeric
// bytes or the ends of v
func containsWord(v, token string) bool {
	for off := 0; off <= len(v)-len(token); {
		i := strings.Index(v[off:], token)
		if i < 0 {
			return false
		}
		start, end := off+i, off+i+len(token)
		if (start == 0 || !isWordByte(v[start-1])) && (end == len(v) || !isWordByte(v[end])) {
			return true
		}
		off = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func sorted(labels map[string]bool) []string {
	out := make([]string, 0, len(labels))
	for l := range labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
