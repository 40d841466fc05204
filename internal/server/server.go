package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/scan"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/storage"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/version"
)

// Scanner runs one scan
type Scanner interface {
	Run(ctx context.Context, domain string) (*scan.Report, error)
}

// History stores finished scans
type History interface {
	SaveReport(ctx context.Context, r *scan.Report) error
	ListScans(ctx context.Context, domain string, limit int) ([]storage.ScanRecord, error)
	LoadReport(ctx context.Context, id string) (*scan.Report, error)
}

// Server exposes scans over HTTP
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      *Config
	scanner     Scanner
	history     History
	scanLimiter *ScanRateLimiter
}

// Config holds server configuration
type Config struct {
	Port             int
	Host             string
	APIKey           string
	AllowedOrigins   []string
	Debug            bool
	SuppressWildcard bool // Default wildcard policy when a request does not set one

	// Per-client scan budget
	ScansPerMinute float64
	ScanBurst      int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:           8888,
		Host:           "127.0.0.1", // Localhost only by default
		AllowedOrigins: []string{"http://localhost:8888", "http://127.0.0.1:8888"},
		ScansPerMinute: 2,
		ScanBurst:      3,
	}
}

// New creates a server. history may be nil, which disables the history
// endpoints.
func New(cfg *Config, scanner Scanner, history History) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:      gin.New(),
		config:      cfg,
		scanner:     scanner,
		history:     history,
		scanLimiter: NewScanRateLimiter(cfg.ScansPerMinute, cfg.ScanBurst),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())
	s.router.Use(s.securityHeaders())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}

// securityHeaders adds security headers to all responses
func (s *Server) securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Next()
	}
}

// requestLogger prints one colored line per API request
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if !strings.HasPrefix(path, "/api/") {
			return
		}

		status := c.Writer.Status()
		statusColor := color.New(color.FgGreen)
		if status >= 400 {
			statusColor = color.New(color.FgRed)
		} else if status >= 300 {
			statusColor = color.New(color.FgYellow)
		}
		debug.Infof("%s %-6s %-40s %15s %10s",
			statusColor.Sprintf("[%d]", status), c.Request.Method, path, c.ClientIP(), time.Since(start).Round(time.Microsecond))
	}
}

// apiKeyAuth requires the configured key in X-API-Key or a Bearer token.
// An empty configured key leaves the API open.
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.APIKey == "" {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.config.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or missing API key. Provide it in the X-API-Key header or as a Bearer token.",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api")
	{
		api.GET("/version", s.getVersion)

		scans := api.Group("/scans")
		scans.Use(s.apiKeyAuth())
		{
			scans.POST("", s.scanLimiter.Middleware(), s.startScan)
			scans.GET("", s.listScans)
			scans.GET("/:id", s.getScan)
		}
	}
}

// StartWithGracefulShutdown serves until ctx is cancelled, then drains
// in-flight requests for up to 10 seconds.
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	cyan := color.New(color.FgCyan)
	cyan.Printf("\n[*] subscan API\n")
	fmt.Printf("    Version: %s\n", version.Version)
	fmt.Printf("    Address: http://%s\n", addr)
	if s.config.APIKey != "" {
		fmt.Printf("    API Key: %s (required for /api/scans)\n", maskAPIKey(s.config.APIKey))
	}
	fmt.Println()

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		fmt.Println("\n[*] Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.scanLimiter.Stop()

	fmt.Println("[*] Server stopped")
	return nil
}

// GenerateAPIKey generates a random API key
func GenerateAPIKey() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
