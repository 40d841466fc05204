package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/time/rate"
)

// ErrRateLimited marks a provider response that asked us to back off
var ErrRateLimited = errors.New("rate limited")

// maxBodySize caps how much of a provider response is buffered
const maxBodySize = 16 << 20

// StatusError is a non-2xx provider response that is not a rate limit
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.Code)
}

// Transient reports whether the provider failed on its side (5xx)
func (e *StatusError) Transient() bool {
	return e.Code >= 500
}

// RateLimitPattern describes one way a provider signals quota exhaustion
type RateLimitPattern struct {
	Name         string
	StatusCodes  []int
	Headers      map[string]*regexp.Regexp
	BodyPatterns []*regexp.Regexp
}

// defaultPatterns returns the rate-limit signals seen from passive sources
func defaultPatterns() []RateLimitPattern {
	return []RateLimitPattern{
		{
			Name:        "VirusTotal quota",
			StatusCodes: []int{429},
			BodyPatterns: []*regexp.Regexp{
				regexp.MustCompile(`QuotaExceededError`),
				regexp.MustCompile(`TooManyRequestsError`),
			},
		},
		{
			Name:        "Shodan",
			StatusCodes: []int{402, 403, 429},
			BodyPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)rate limit reached`),
				regexp.MustCompile(`(?i)insufficient query credits`),
			},
		},
		{
			Name:        "Generic Rate Limit",
			StatusCodes: []int{403, 429, 503},
			Headers: map[string]*regexp.Regexp{
				"x-ratelimit-remaining": regexp.MustCompile(`^0$`),
			},
			BodyPatterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)rate limit exceeded`),
				regexp.MustCompile(`(?i)too many requests`),
			},
		},
	}
}

var patterns = defaultPatterns()

// IsRateLimited reports whether a response is a rate-limit signal.
// 429 always is; other statuses need a matching header or body pattern.
func IsRateLimited(statusCode int, headers http.Header, body []byte) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if statusCode < 400 {
		return false
	}

	for _, p := range patterns {
		if !containsInt(p.StatusCodes, statusCode) {
			continue
		}
		for name, re := range p.Headers {
			if v := headers.Get(name); v != "" && re.MatchString(strings.TrimSpace(v)) {
				return true
			}
		}
		for _, re := range p.BodyPatterns {
			if re.Match(body) {
				return true
			}
		}
	}
	return false
}

// ReadResponse drains a provider response and classifies it.
// It returns the body for 2xx, ErrRateLimited for rate limits and *StatusError otherwise.
func ReadResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if IsRateLimited(resp.StatusCode, resp.Header, body) {
		return body, fmt.Errorf("%w (status %d)", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, &StatusError{Code: resp.StatusCode}
	}
	return body, nil
}

// Pacer spaces out requests to one provider
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer allows rps requests per second with a burst of one. rps <= 0 disables pacing.
func NewPacer(rps float64) *Pacer {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request may be sent or ctx is done
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
