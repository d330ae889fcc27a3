// Package ledgerd assembles the reference evidence ledger HTTP service.
package ledgerd

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/EvidenceLedger/internal/blobstore"
	"github.com/jmerrifield20/EvidenceLedger/internal/custody"
	"github.com/jmerrifield20/EvidenceLedger/internal/health"
	"github.com/jmerrifield20/EvidenceLedger/internal/ledgerd/handler"
	"github.com/jmerrifield20/EvidenceLedger/pkg/client"
)

// Options configures the router.
type Options struct {
	CORSOrigins    []string
	RateLimitRPS   float64 // zero disables per-IP limiting
	RateLimitBurst int
	MaxUploadBytes int64
	InlineResult   bool

	// Events receives evidence.saved notifications when set.
	Events handler.Dispatcher
	// Audit backs /readyz with the last chain audit when set.
	Audit *health.Checker
}

// NewRouter builds the gin engine serving the evidence, ledger, health and
// metrics endpoints. ctx bounds background work such as the rate limiter
// sweeper.
func NewRouter(ctx context.Context, store custody.Store, blobs blobstore.FileStore, logger *zap.Logger, opts Options) *gin.Engine {
	router := gin.New()
	// Identifiers may contain escaped slashes; route on the raw path and
	// unescape parameters afterwards.
	router.UseRawPath = true
	router.UnescapePathValues = true

	router.Use(gin.Recovery())
	router.Use(handler.RequestID())
	router.Use(handler.RequestLogger(logger))
	router.Use(handler.PrometheusMiddleware())
	router.Use(handler.SecurityHeaders())

	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", client.RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", client.RequestIDHeader},
			AllowCredentials: !containsWildcard(opts.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if opts.Audit == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		last := opts.Audit.Last()
		if last != nil && !last.Intact {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "integrity_failed", "audit": last})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "audit": last})
	})
	router.GET("/metrics", handler.MetricsHandler())

	api := router.Group("")
	if opts.RateLimitRPS > 0 {
		api.Use(handler.RateLimiter(ctx, opts.RateLimitRPS, opts.rateLimitBurst()))
	}

	evidenceHandler := handler.NewEvidenceHandler(store, blobs, logger, handler.EvidenceOptions{
		InlineResult:   opts.InlineResult,
		MaxUploadBytes: opts.MaxUploadBytes,
	})
	if opts.Events != nil {
		evidenceHandler.SetDispatcher(opts.Events)
	}
	evidenceHandler.Register(api)
	handler.NewLedgerHandler(store, logger).Register(api)

	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// rateLimitBurst defaults to twice the rate. A burst of zero would refuse
// every request, so it never drops below one.
func (o Options) rateLimitBurst() int {
	if o.RateLimitBurst > 0 {
		return o.RateLimitBurst
	}
	return max(int(o.RateLimitRPS*2), 1)
}
