package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	transfersvc "github.com/ledgerd/ledgerd/internal/domain/services/transfer"
	"github.com/ledgerd/ledgerd/pkg/idempotency"
	"github.com/ledgerd/ledgerd/pkg/logger"
)

// TransferHandlers serves transfer initiation, reversal and reads
type TransferHandlers struct {
	transferSvc *transfersvc.Service
	logger      *logger.Logger
}

// NewTransferHandlers creates a new transfer handlers instance
func NewTransferHandlers(transferSvc *transfersvc.Service, logger *logger.Logger) *TransferHandlers {
	return &TransferHandlers{transferSvc: transferSvc, logger: logger}
}

// CreateTransferRequest is the payload for initiating a transfer
type CreateTransferRequest struct {
	SourceAccountID      string `json:"source_account_id" binding:"required,uuid"`
	DestinationAccountID string `json:"destination_account_id" binding:"required,uuid"`
	// Amount is a pointer so that an explicit zero survives binding and
	// is rejected by the domain with its own error code, not as
	// malformed JSON.
	Amount      *int64  `json:"amount" binding:"required"`
	Currency    string  `json:"currency" binding:"required,currency_code"`
	Description *string `json:"description"`
}

// Create initiates a transfer between two accounts
// @Summary Initiate a transfer
// @Tags transfers
// @Accept json
// @Produce json
// @Param X-Idempotency-Key header string true "Idempotency key"
// @Param request body CreateTransferRequest true "Transfer data"
// @Success 201 {object} entities.Transfer
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/transfers [post]
func (h *TransferHandlers) Create(c *gin.Context) {
	var req CreateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domainerrors.CodeInvalidJSON,
			"request body must be valid JSON with source_account_id, destination_account_id, amount and currency", nil)
		return
	}

	cmd := transfersvc.InitiateCommand{
		Amount:      *req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	}
	// uuid binding already validated the format.
	cmd.SourceAccountID = uuidMust(req.SourceAccountID)
	cmd.DestinationAccountID = uuidMust(req.DestinationAccountID)

	// The key the idempotency middleware admitted doubles as the
	// transfer's stored key, closing the crash-after-commit window.
	if key := c.GetHeader(idempotency.HeaderKey); key != "" {
		cmd.IdempotencyKey = &key
	}

	transfer, err := h.transferSvc.Initiate(c.Request.Context(), cmd)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondCreated(c, transfer)
}

// Get returns one transfer by id or reference
// @Summary Get a transfer by id or reference
// @Tags transfers
// @Produce json
// @Param id path string true "Transfer ID or TXN reference"
// @Success 200 {object} entities.Transfer
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/transfers/{id} [get]
func (h *TransferHandlers) Get(c *gin.Context) {
	raw := c.Param("id")

	// References have the TXN- prefix; everything else must parse as
	// a UUID.
	if strings.HasPrefix(raw, "TXN-") {
		transfer, err := h.transferSvc.GetByReference(c.Request.Context(), raw)
		if err != nil {
			respondDomainError(c, h.logger, err)
			return
		}
		respondOK(c, transfer)
		return
	}

	transferID, ok := pathUUID(c, "id", domainerrors.CodeTransferNotFound)
	if !ok {
		return
	}

	transfer, err := h.transferSvc.Get(c.Request.Context(), transferID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondOK(c, transfer)
}

// List returns transfers newest first, optionally filtered by status
// @Summary List transfers
// @Tags transfers
// @Produce json
// @Param status query string false "Filter by transfer status"
// @Param page query int false "Page number"
// @Param per_page query int false "Items per page"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/transfers [get]
func (h *TransferHandlers) List(c *gin.Context) {
	status, err := transferStatusFilter(c)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	page, perPage := pagination(c)
	transfers, total, err := h.transferSvc.List(c.Request.Context(), status, perPage, (page-1)*perPage)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondList(c, transfers, Meta{Page: page, PerPage: perPage, TotalCount: total})
}

// Reverse undoes a completed transfer
// @Summary Reverse a completed transfer
// @Tags transfers
// @Produce json
// @Param id path string true "Transfer ID"
// @Success 200 {object} entities.Transfer
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/transfers/{id}/reverse [post]
func (h *TransferHandlers) Reverse(c *gin.Context) {
	transferID, ok := pathUUID(c, "id", domainerrors.CodeTransferNotFound)
	if !ok {
		return
	}

	transfer, err := h.transferSvc.Reverse(c.Request.Context(), transferID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondOK(c, transfer)
}

// transferStatusFilter parses the optional status query parameter
func transferStatusFilter(c *gin.Context) (*entities.TransferStatus, error) {
	raw := c.Query("status")
	if raw == "" {
		return nil, nil
	}
	status := entities.TransferStatus(raw)
	if err := status.Validate(); err != nil || !status.IsPersistable() {
		return nil, domainerrors.ValidationError("invalid status filter",
			map[string]string{"status": "must be one of pending, completed, failed, reversed"})
	}
	return &status, nil
}

func uuidMust(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}
