// Package resolve performs IPv4 address lookups against explicit upstream
// resolvers so callers can tell NXDOMAIN apart from timeouts and server failures.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// ErrNXDomain is returned when an upstream answers "no such name"
var ErrNXDomain = errors.New("no such host")

// Resolver looks up A records for a hostname
type Resolver interface {
	LookupA(ctx context.Context, host string) ([]string, error)
}

// RcodeError is a non-NXDOMAIN failure response (SERVFAIL, REFUSED, ...)
type RcodeError struct {
	Server string
	Rcode  int
}

func (e *RcodeError) Error() string {
	return fmt.Sprintf("%s answered %s", e.Server, dns.RcodeToString[e.Rcode])
}

// DNSResolver queries a fixed list of upstream servers in order
type DNSResolver struct {
	servers []string
	client  *dns.Client
}

// New creates a resolver. Servers without a port get :53.
func New(servers []string, timeout time.Duration) *DNSResolver {
	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		normalized = append(normalized, s)
	}
	return &DNSResolver{
		servers: normalized,
		client:  &dns.Client{Timeout: timeout},
	}
}

// LookupA returns the IPv4 addresses for host.
// An empty slice with nil error means the name exists without A records.
func (r *DNSResolver) LookupA(ctx context.Context, host string) ([]string, error) {
	if len(r.servers) == 0 {
		return nil, errors.New("no resolvers configured")
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	var lastErr error
	for _, srv := range r.servers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, _, err := r.client.ExchangeContext(ctx, msg, srv)
		if err != nil {
			lastErr = err
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
			return extractA(resp), nil
		case dns.RcodeNameError:
			return nil, ErrNXDomain
		default:
			lastErr = &RcodeError{Server: srv, Rcode: resp.Rcode}
		}
	}
	return nil, lastErr
}

func extractA(msg *dns.Msg) []string {
	seen := make(map[string]bool)
	var addrs []string
	for _, rr := range msg.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		ip := a.A.String()
		if !seen[ip] {
			seen[ip] = true
			addrs = append(addrs, ip)
		}
	}
	return addrs
}

// IsTimeout reports whether err is a network or context timeout
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
