// Package adminapi is the Trigger API (SPEC_FULL.md §6.4): a thin gin
// surface around Scanner.ScanAll, guarded by a static bearer token since
// this ingestion-only service carries no user/auth model. Grounded on the
// teacher's cmd/korus/main.go router wiring and internal/middleware/auth.go's
// bearer-token check, adapted from JWT validation to a constant-time
// token comparison.
package adminapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"auralis/internal/scanner"
)

// Scanner is the subset of *scanner.Scanner the router depends on.
type Scanner interface {
	ScanAll(ctx context.Context, incremental bool) error
	IsScanning() bool
	ScanCount() int64
	TotalCount() int64
	LastScanTime() int64
}

var _ Scanner = (*scanner.Scanner)(nil)

// NewRouter builds the admin HTTP surface. adminToken is compared against
// the Authorization header's bearer token in constant time.
func NewRouter(s Scanner, adminToken string) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())

	api := r.Group("/")
	api.Use(bearerAuth(adminToken))
	{
		api.POST("/scan", triggerScan(s))
		api.GET("/scan/status", scanStatus(s))
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Info("admin api request")
	}
}

func bearerAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || len(token) != len(adminToken) ||
			subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// triggerScan starts a scan in the background and returns 202 immediately.
// While a scan is already running it answers 409 without calling ScanAll;
// if two triggers race past that check, ScanAll's CAS guard turns the
// second into a no-op (spec §8 property S6).
func triggerScan(s Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		incremental := c.Query("incremental") != "false"
		if s.IsScanning() {
			c.JSON(http.StatusConflict, gin.H{"error": "scan already in progress"})
			return
		}
		go func() {
			if err := s.ScanAll(context.Background(), incremental); err != nil {
				logrus.WithField("err", err).Error("triggered scan failed")
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "incremental": incremental})
	}
}

func scanStatus(s Scanner) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"scanning":       s.IsScanning(),
			"scanned_count":  s.ScanCount(),
			"total_count":    s.TotalCount(),
			"last_scan_unix": s.LastScanTime(),
		})
	}
}
