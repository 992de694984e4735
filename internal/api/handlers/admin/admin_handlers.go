// Package admin serves the operator-only surface: dead letter review,
// outbox requeue and manual reconciliation runs.
package admin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledgerd/ledgerd/internal/domain/repositories"
	"github.com/ledgerd/ledgerd/internal/domain/services/reconciliation"
	"github.com/ledgerd/ledgerd/pkg/logger"
)

// KeyStatsProvider reports idempotency key retention counts.
type KeyStatsProvider interface {
	GetStats(ctx context.Context) (total, expired int64, err error)
}

// Handlers contains the operator endpoints
type Handlers struct {
	outboxRepo        repositories.OutboxRepository
	reconciliationSvc *reconciliation.Service
	keyStats          KeyStatsProvider
	maxAttempts       int
	logger            *logger.Logger
}

// NewHandlers creates a new admin handlers instance
func NewHandlers(
	outboxRepo repositories.OutboxRepository,
	reconciliationSvc *reconciliation.Service,
	keyStats KeyStatsProvider,
	maxAttempts int,
	logger *logger.Logger,
) *Handlers {
	return &Handlers{
		outboxRepo:        outboxRepo,
		reconciliationSvc: reconciliationSvc,
		keyStats:          keyStats,
		maxAttempts:       maxAttempts,
		logger:            logger,
	}
}

// ListDeadLetter returns outbox events that exhausted their attempts
// @Summary List dead letter outbox events
// @Tags admin
// @Produce json
// @Param page query int false "Page number"
// @Param per_page query int false "Items per page"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/outbox/dead-letter [get]
func (h *Handlers) ListDeadLetter(c *gin.Context) {
	page, perPage := pagination(c)

	events, total, err := h.outboxRepo.ListDeadLetter(c.Request.Context(), h.maxAttempts, perPage, (page-1)*perPage)
	if err != nil {
		h.logger.Error("Failed to list dead letter events", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": events,
		"meta": gin.H{"page": page, "per_page": perPage, "total_count": total},
	})
}

// RequeueEvent resets a dead letter event for redelivery
// @Summary Requeue a dead letter outbox event
// @Tags admin
// @Produce json
// @Param id path string true "Outbox event ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/admin/outbox/dead-letter/{id}/requeue [post]
func (h *Handlers) RequeueEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "OUTBOX_EVENT_NOT_FOUND", "outbox event not found")
		return
	}

	requeued, err := h.outboxRepo.Requeue(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("Failed to requeue outbox event", "event_id", eventID, "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	if !requeued {
		respondError(c, http.StatusNotFound, "OUTBOX_EVENT_NOT_FOUND",
			"outbox event not found or already published")
		return
	}

	h.logger.Info("Outbox event requeued",
		"event_id", eventID,
		"operator", c.GetString("operator_subject"))

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"event_id": eventID, "requeued": true}})
}

// RunReconciliation triggers a reconciliation run synchronously
// @Summary Run reconciliation now
// @Tags admin
// @Produce json
// @Success 200 {object} reconciliation.Report
// @Router /api/v1/admin/reconciliation/run [post]
func (h *Handlers) RunReconciliation(c *gin.Context) {
	report, err := h.reconciliationSvc.Run(c.Request.Context(), "manual")
	if err != nil {
		h.logger.Error("Manual reconciliation run failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	h.logger.Info("Manual reconciliation run finished",
		"run_id", report.RunID,
		"operator", c.GetString("operator_subject"),
		"exceptions", len(report.Exceptions))

	c.JSON(http.StatusOK, gin.H{"data": report})
}

// IdempotencyStats reports how many keys are held and how many are past
// their TTL awaiting the purge job
// @Summary Idempotency key retention stats
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/idempotency/stats [get]
func (h *Handlers) IdempotencyStats(c *gin.Context) {
	total, expired, err := h.keyStats.GetStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read idempotency key stats", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"total_keys":   total,
		"expired_keys": expired,
	}})
}

func pagination(c *gin.Context) (page, perPage int) {
	page = queryInt(c, "page", 1)
	perPage = queryInt(c, "per_page", 50)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}
	return page, perPage
}

func queryInt(c *gin.Context, param string, defaultVal int) int {
	if val := c.Query(param); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}
