package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerd/ledgerd/pkg/logger"
	"github.com/ledgerd/ledgerd/pkg/version"
)

// CoreHandlers contains health, version and metrics handlers
type CoreHandlers struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewCoreHandlers creates a new core handlers instance
func NewCoreHandlers(db *sqlx.DB, logger *logger.Logger) *CoreHandlers {
	return &CoreHandlers{db: db, logger: logger}
}

var startTime = time.Now()

// HealthCheck represents one dependency check result
type HealthCheck struct {
	Status  string        `json:"status"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Health reports overall service health including dependencies
func (h *CoreHandlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]HealthCheck{
		"database": h.checkDatabase(ctx),
	}

	overallStatus := "healthy"
	statusCode := http.StatusOK
	for _, check := range checks {
		if check.Status != "healthy" {
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, gin.H{
		"status":    overallStatus,
		"timestamp": time.Now().UTC(),
		"version":   version.Get().Version,
		"uptime":    time.Since(startTime).String(),
		"checks":    checks,
	})
}

// Ready reports whether the service can take traffic
func (h *CoreHandlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbCheck := h.checkDatabase(ctx)
	if dbCheck.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": gin.H{"database": dbCheck}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Live reports process liveness only
func (h *CoreHandlers) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"uptime": time.Since(startTime).String(),
	})
}

func (h *CoreHandlers) checkDatabase(ctx context.Context) HealthCheck {
	start := time.Now()
	err := h.db.PingContext(ctx)
	check := HealthCheck{Status: "healthy", Latency: time.Since(start)}
	if err != nil {
		check.Status = "unhealthy"
		check.Error = err.Error()
	}
	return check
}

// Version returns the build information
func (h *CoreHandlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}

// Metrics exposes Prometheus metrics
func Metrics() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
