package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	accountsvc "github.com/ledgerd/ledgerd/internal/domain/services/account"
	"github.com/ledgerd/ledgerd/internal/domain/services/statement"
	transfersvc "github.com/ledgerd/ledgerd/internal/domain/services/transfer"
	"github.com/ledgerd/ledgerd/pkg/logger"
)

// AccountHandlers serves the account lifecycle and read endpoints
type AccountHandlers struct {
	accountSvc   *accountsvc.Service
	transferSvc  *transfersvc.Service
	statementSvc *statement.Service
	logger       *logger.Logger
}

// NewAccountHandlers creates a new account handlers instance
func NewAccountHandlers(
	accountSvc *accountsvc.Service,
	transferSvc *transfersvc.Service,
	statementSvc *statement.Service,
	logger *logger.Logger,
) *AccountHandlers {
	return &AccountHandlers{
		accountSvc:   accountSvc,
		transferSvc:  transferSvc,
		statementSvc: statementSvc,
		logger:       logger,
	}
}

// CreateAccountRequest is the payload for opening an account
type CreateAccountRequest struct {
	OwnerName      string `json:"owner_name" binding:"required"`
	Currency       string `json:"currency" binding:"required,currency_code"`
	InitialBalance int64  `json:"initial_balance"`
}

// Create opens a new account
// @Summary Open a new account
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body CreateAccountRequest true "Account data"
// @Success 201 {object} entities.Account
// @Failure 400 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/v1/accounts [post]
func (h *AccountHandlers) Create(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domainerrors.CodeInvalidJSON,
			"request body must be valid JSON with owner_name and currency", nil)
		return
	}

	account, err := h.accountSvc.Create(c.Request.Context(), req.OwnerName, req.Currency, req.InitialBalance)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondCreated(c, account)
}

// Get returns one account
// @Summary Get an account by id
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} entities.Account
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/accounts/{id} [get]
func (h *AccountHandlers) Get(c *gin.Context) {
	accountID, ok := pathUUID(c, "id", domainerrors.CodeAccountNotFound)
	if !ok {
		return
	}

	account, err := h.accountSvc.Get(c.Request.Context(), accountID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondOK(c, account)
}

// Freeze suspends an account
// @Summary Freeze an account
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} entities.Account
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/accounts/{id}/freeze [post]
func (h *AccountHandlers) Freeze(c *gin.Context) {
	h.transition(c, h.accountSvc.Freeze)
}

// Unfreeze reactivates a frozen account
// @Summary Unfreeze an account
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} entities.Account
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/accounts/{id}/unfreeze [post]
func (h *AccountHandlers) Unfreeze(c *gin.Context) {
	h.transition(c, h.accountSvc.Unfreeze)
}

// Close closes an account permanently
// @Summary Close an account
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} entities.Account
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/accounts/{id}/close [post]
func (h *AccountHandlers) Close(c *gin.Context) {
	h.transition(c, h.accountSvc.Close)
}

// ListTransfers returns transfers touching the account, newest first
// @Summary List transfers for an account
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Param status query string false "Filter by transfer status"
// @Param page query int false "Page number"
// @Param per_page query int false "Items per page"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/accounts/{id}/transfers [get]
func (h *AccountHandlers) ListTransfers(c *gin.Context) {
	accountID, ok := pathUUID(c, "id", domainerrors.CodeAccountNotFound)
	if !ok {
		return
	}

	status, err := transferStatusFilter(c)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	page, perPage := pagination(c)
	transfers, total, err := h.transferSvc.ListByAccount(c.Request.Context(), accountID, status, perPage, (page-1)*perPage)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondList(c, transfers, Meta{Page: page, PerPage: perPage, TotalCount: total})
}

// Statement returns a paged account statement for a date range
// @Summary Get an account statement
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Param from query string true "Range start (RFC 3339)"
// @Param to query string true "Range end (RFC 3339)"
// @Param page query int false "Page number"
// @Param per_page query int false "Items per page"
// @Success 200 {object} statement.Statement
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/v1/accounts/{id}/statement [get]
func (h *AccountHandlers) Statement(c *gin.Context) {
	accountID, ok := pathUUID(c, "id", domainerrors.CodeAccountNotFound)
	if !ok {
		return
	}

	from, haveFrom, err := queryTime(c, "from")
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	to, haveTo, err := queryTime(c, "to")
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}
	if !haveFrom || !haveTo {
		respondError(c, http.StatusBadRequest, domainerrors.CodeValidation,
			"from and to are required", map[string]string{"from": "required", "to": "required"})
		return
	}

	// No clamping here: the statement service owns pagination limits
	// and rejects out-of-range values with a validation error.
	page, perPage := rawPagination(c)
	stmt, err := h.statementSvc.GetStatement(c.Request.Context(), statement.Query{
		AccountID: accountID,
		From:      from,
		To:        to,
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondOK(c, stmt)
}

func (h *AccountHandlers) transition(c *gin.Context, apply func(ctx context.Context, accountID uuid.UUID) (*entities.Account, error)) {
	accountID, ok := pathUUID(c, "id", domainerrors.CodeAccountNotFound)
	if !ok {
		return
	}

	account, err := apply(c.Request.Context(), accountID)
	if err != nil {
		respondDomainError(c, h.logger, err)
		return
	}

	respondOK(c, account)
}
