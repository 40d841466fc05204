package subdomain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/resolve"
)

type stubResolver struct {
	answer map[string][]string
	err    error
	asked  []string
}

func (s *stubResolver) LookupA(ctx context.Context, host string) ([]string, error) {
	s.asked = append(s.asked, host)
	if s.err != nil {
		return nil, s.err
	}
	if addrs, ok := s.answer[host]; ok {
		return addrs, nil
	}
	if addrs, ok := s.answer["*"]; ok {
		return addrs, nil
	}
	return nil, resolve.ErrNXDomain
}

func TestWildcardDetected(t *testing.T) {
	r := &stubResolver{answer: map[string][]string{"*": {"203.0.113.7"}}}
	status, err := NewWildcardDetector(r).Detect(context.Background(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !status.Detected {
		t.Fatal("expected wildcard")
	}
	if !strings.HasSuffix(status.ProbeHost, ".example.com") {
		t.Errorf("probe host %q not under domain", status.ProbeHost)
	}
	if len(status.Addresses) != 1 || status.Caveat != "" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestWildcardNXDomain(t *testing.T) {
	status, err := NewWildcardDetector(&stubResolver{}).Detect(context.Background(), "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if status.Detected || status.Caveat != "" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestWildcardEmptyAnswerIsNotWildcard(t *testing.T) {
	d := NewWildcardDetector(&stubResolver{})
	d.label = func() string { return "fixed" }
	d.resolver = &stubResolver{answer: map[string][]string{"fixed.example.com": nil}}

	status, err := d.Detect(context.Background(), "example.com")
	if err != nil || status.Detected {
		t.Errorf("got %+v, %v", status, err)
	}
}

func TestWildcardAmbiguousFailuresCarryCaveat(t *testing.T) {
	for name, lookupErr := range map[string]error{
		"timeout":  context.DeadlineExceeded,
		"servfail": &resolve.RcodeError{Server: "127.0.0.1:53", Rcode: 2},
		"refused":  &resolve.RcodeError{Server: "127.0.0.1:53", Rcode: 5},
	} {
		t.Run(name, func(t *testing.T) {
			status, err := NewWildcardDetector(&stubResolver{err: lookupErr}).Detect(context.Background(), "example.com")
			if err != nil {
				t.Fatalf("ambiguous failure should not error: %v", err)
			}
			if status.Detected {
				t.Error("ambiguous failure must not report a wildcard")
			}
			if status.Caveat == "" {
				t.Error("expected a caveat")
			}
		})
	}
}

func TestWildcardUnexpectedErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	status, err := NewWildcardDetector(&stubResolver{err: boom}).Detect(context.Background(), "example.com")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if status.Detected || status.Caveat == "" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestProbeLabelsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		l := probeLabel()
		if seen[l] {
			t.Fatalf("duplicate label %s", l)
		}
		if len(l) > 63 {
			t.Fatalf("label %s exceeds 63 characters", l)
		}
		seen[l] = true
	}
}
