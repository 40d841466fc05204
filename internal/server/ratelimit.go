package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ScanRateLimiter bounds how often one client IP may start scans; every
// scan spends the operator's provider quota.
type ScanRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*scanClient
	limit   rate.Limit
	burst   int
	stop    chan struct{}
	once    sync.Once
}

type scanClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewScanRateLimiter allows perMinute scans per IP with the given burst
func NewScanRateLimiter(perMinute float64, burst int) *ScanRateLimiter {
	if perMinute <= 0 {
		perMinute = 2
	}
	if burst < 1 {
		burst = 1
	}
	l := &ScanRateLimiter{
		clients: make(map[string]*scanClient),
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// cleanup forgets clients idle for an hour
func (l *ScanRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for ip, c := range l.clients {
				if time.Since(c.lastSeen) > time.Hour {
					delete(l.clients, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop ends the cleanup goroutine
func (l *ScanRateLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Allow reports whether ip may start a scan now, and if not, how long to wait
func (l *ScanRateLimiter) Allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[ip]
	if !ok {
		c = &scanClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = time.Now()

	r := c.limiter.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return false, delay
	}
	return true, 0
}

// Middleware rejects scan requests over the client's budget with 429
func (l *ScanRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, wait := l.Allow(c.ClientIP())
		if !allowed {
			secs := int(wait.Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":           "Too many scan requests",
				"retry_after_sec": secs,
			})
			return
		}
		c.Next()
	}
}
