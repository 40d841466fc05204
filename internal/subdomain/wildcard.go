package subdomain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/resolve"
)

// WildcardStatus is the wildcard verdict for one scan. It is never reused
// for another domain or another scan.
type WildcardStatus struct {
	Detected  bool     `json:"detected"`
	ProbeHost string   `json:"probeHost"`
	Addresses []string `json:"addresses,omitempty"`
	Caveat    string   `json:"caveat,omitempty"`
}

var labelCounter atomic.Uint64

// probeLabel only has to be unique against real zone content, so a counter
// mixed with the clock is enough.
func probeLabel() string {
	n := labelCounter.Add(1)
	seed := uint64(time.Now().UnixNano()) ^ (n * 0x9E3779B97F4A7C15)
	return "subscan-wc-" + strconv.FormatUint(seed, 36) + strconv.FormatUint(n, 36)
}

// WildcardDetector checks whether a zone answers for arbitrary labels
type WildcardDetector struct {
	resolver resolve.Resolver
	label    func() string
}

// NewWildcardDetector creates a detector using resolver
func NewWildcardDetector(resolver resolve.Resolver) *WildcardDetector {
	return &WildcardDetector{resolver: resolver, label: probeLabel}
}

// Detect resolves a random label under domain. NXDOMAIN (or an empty answer)
// means no wildcard. Timeouts and server failures also yield "no wildcard",
// with Caveat set, so one auxiliary check cannot abort the scan. The error is
// only non-nil for failures that are not DNS or network conditions.
func (d *WildcardDetector) Detect(ctx context.Context, domain string) (WildcardStatus, error) {
	status := WildcardStatus{ProbeHost: d.label() + "." + domain}

	addrs, err := d.resolver.LookupA(ctx, status.ProbeHost)
	switch {
	case err == nil && len(addrs) > 0:
		status.Detected = true
		status.Addresses = addrs
		debug.Warnf("Wildcard DNS detected for %s (%s resolves to %v)", domain, status.ProbeHost, addrs)
		return status, nil

	case err == nil, errors.Is(err, resolve.ErrNXDomain):
		debug.Successf("No wildcard DNS detected for %s", domain)
		return status, nil

	case isAmbiguous(err):
		status.Caveat = fmt.Sprintf("wildcard check inconclusive (%v); assuming no wildcard", err)
		debug.Warnf("%s", status.Caveat)
		return status, nil

	default:
		status.Caveat = fmt.Sprintf("wildcard check failed (%v); assuming no wildcard", err)
		return status, fmt.Errorf("wildcard check for %s: %w", domain, err)
	}
}

// isAmbiguous covers conditions where the zone's behaviour is simply unknown
func isAmbiguous(err error) bool {
	if resolve.IsTimeout(err) || errors.Is(err, context.Canceled) {
		return true
	}
	var rcodeErr *resolve.RcodeError
	if errors.As(err, &rcodeErr) {
		return true
	}
	var netErr net.Error
	var opErr *net.OpError
	return errors.As(err, &netErr) || errors.As(err, &opErr)
}
