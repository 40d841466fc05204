package subdomain

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "example.com", want: "example.com"},
		{in: "  Example.COM. ", want: "example.com"},
		{in: "sub.example.co.uk", want: "sub.example.co.uk"},
		{in: "bücher.de", want: "xn--bcher-kva.de"},
		{in: "", wantErr: true},
		{in: "localhost", wantErr: true},
		{in: "192.168.1.1", wantErr: true},
		{in: "exa mple.com", wantErr: true},
		{in: "-bad.example.com", wantErr: true},
		{in: "example..com", wantErr: true},
		{in: "https://example.com", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeDomain(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidDomain) {
				t.Errorf("NormalizeDomain(%q) err = %v, want ErrInvalidDomain", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeDomain(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInScope(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"api.example.com", true},
		{"a.b.example.com", true},
		{"_dmarc.example.com", true},
		{"notexample.com", false},
		{"example.com.evil.net", false},
		{"evil.net", false},
		{"", false},
		{"a..example.com", false},
		{"foo bar.example.com", false},
		{"*.example.com", false},
	}
	for _, tt := range tests {
		if got := InScope(tt.host, "example.com"); got != tt.want {
			t.Errorf("InScope(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestScopeHostsNormalizesAndDedupes(t *testing.T) {
	raw := []string{
		"API.Example.com.",
		"*.dev.example.com",
		"api.example.com",
		"cdn.othersite.net",
		"example.com.attacker.io",
		"  www.example.com ",
	}
	got := scopeHosts(raw, "example.com")
	want := []string{"api.example.com", "dev.example.com", "www.example.com"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("scopeHosts = %v, want %v", got, want)
	}
}
