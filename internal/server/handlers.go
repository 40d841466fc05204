package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pass-with-high-score/devtool-web-sub002/internal/debug"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/output"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/scan"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/storage"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/subdomain"
	"github.com/pass-with-high-score/devtool-web-sub002/internal/version"
)

// healthCheck returns server health status
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// getVersion returns version information
func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":   version.Version,
		"commit":    version.Commit,
		"buildDate": version.BuildDate,
		"sources":   subdomain.SourceNames,
	})
}

// StartScanRequest is the body of POST /api/scans
type StartScanRequest struct {
	Domain           string `json:"domain" binding:"required"`
	SuppressWildcard *bool  `json:"suppressWildcard,omitempty"`
}

// startScan runs a scan synchronously and returns the report
func (s *Server) startScan(c *gin.Context) {
	var req StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	report, err := s.scanner.Run(c.Request.Context(), req.Domain)
	switch {
	case errors.Is(err, subdomain.ErrInvalidDomain):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, scan.ErrNoSourcesCompleted):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	policy := output.Policy{SuppressWildcard: s.config.SuppressWildcard}
	if req.SuppressWildcard != nil {
		policy.SuppressWildcard = *req.SuppressWildcard
	}
	report = policy.Apply(report)

	if s.history != nil {
		if err := s.history.SaveReport(c.Request.Context(), report); err != nil {
			debug.Warnf("Failed to record scan %s: %v", report.ScanID, err)
		}
	}
	c.JSON(http.StatusOK, report)
}

// listScans returns recent scans, optionally for one domain
func (s *Server) listScans(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusOK, gin.H{"scans": []storage.ScanRecord{}, "total": 0})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	domain := c.Query("domain")
	if domain != "" {
		normalized, err := subdomain.NormalizeDomain(domain)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		domain = normalized
	}

	scans, err := s.history.ListScans(c.Request.Context(), domain, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scans: " + err.Error()})
		return
	}
	if scans == nil {
		scans = []storage.ScanRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans, "total": len(scans)})
}

// getScan returns one stored report
func (s *Server) getScan(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scan history is disabled"})
		return
	}

	report, err := s.history.LoadReport(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrScanNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scan not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
