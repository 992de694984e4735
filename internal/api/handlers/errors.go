package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	"github.com/ledgerd/ledgerd/pkg/logger"
)

// statusByCode is the API contract: every domain error code maps to
// exactly one HTTP status. Codes missing from the table fall back to
// the error's category.
var statusByCode = map[string]int{
	domainerrors.CodeValidation:             http.StatusBadRequest,
	domainerrors.CodeInvalidJSON:            http.StatusBadRequest,
	domainerrors.CodeIdempotencyKeyMissing:  http.StatusBadRequest,
	domainerrors.CodeIdempotencyKeyInvalid:  http.StatusBadRequest,
	domainerrors.CodeInvalidDateRange:       http.StatusBadRequest,
	domainerrors.CodeAccountNotFound:        http.StatusNotFound,
	domainerrors.CodeTransferNotFound:       http.StatusNotFound,
	domainerrors.CodeInvalidTransferState:   http.StatusConflict,
	domainerrors.CodeInvalidAccountState:    http.StatusConflict,
	domainerrors.CodeAccountFrozen:          http.StatusConflict,
	domainerrors.CodeAccountClosed:          http.StatusConflict,
	domainerrors.CodeNonZeroBalanceOnClose:  http.StatusConflict,
	domainerrors.CodeUnsupportedMediaType:   http.StatusUnsupportedMediaType,
	domainerrors.CodeInvalidTransferAmount:  http.StatusUnprocessableEntity,
	domainerrors.CodeSameAccountTransfer:    http.StatusUnprocessableEntity,
	domainerrors.CodeInsufficientFunds:      http.StatusUnprocessableEntity,
	domainerrors.CodeCurrencyMismatch:       http.StatusUnprocessableEntity,
	domainerrors.CodeBalanceOverflow:        http.StatusUnprocessableEntity,
	domainerrors.CodeIdempotencyKeyReuse:    http.StatusUnprocessableEntity,
	domainerrors.CodeRateLimitExceeded:      http.StatusTooManyRequests,
	domainerrors.CodeIdempotencyLockTimeout: http.StatusServiceUnavailable,
}

// respondDomainError translates a service error into the envelope.
// Unclassified errors are logged and surface as an opaque 500; their
// internals never reach the client.
func respondDomainError(c *gin.Context, log *logger.Logger, err error) {
	de, ok := domainerrors.As(err)
	if !ok {
		log.Error("Unhandled error", "error", err, "path", c.Request.URL.Path)
		respondError(c, http.StatusInternalServerError, domainerrors.CodeInternal,
			"internal server error", nil)
		return
	}

	status, ok := statusByCode[de.Code]
	if !ok {
		status = statusByCategory(de)
	}
	if status == http.StatusInternalServerError {
		log.Error("Unhandled domain error", "error", err, "code", de.Code, "path", c.Request.URL.Path)
		respondError(c, status, domainerrors.CodeInternal, "internal server error", nil)
		return
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "5")
	}

	respondError(c, status, de.Code, de.Message, de.Violations)
}

func statusByCategory(de *domainerrors.DomainError) int {
	switch {
	case errors.Is(de.Err, domainerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(de.Err, domainerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(de.Err, domainerrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(de.Err, domainerrors.ErrUnprocessable):
		return http.StatusUnprocessableEntity
	case errors.Is(de.Err, domainerrors.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(de.Err, domainerrors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
