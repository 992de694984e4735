// Package errors provides the typed domain errors raised by the
// aggregates and services. Each error carries a machine-readable code;
// the HTTP layer maps codes to status via a fixed table and never
// invents new semantics.
package errors

import (
	"errors"
	"fmt"
)

// Error categories. Handlers branch on these through errors.Is; the
// code on the DomainError picks the exact API error.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates the request was malformed or failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates the operation conflicts with current state.
	ErrConflict = errors.New("state conflict")

	// ErrUnprocessable indicates a well-formed request rejected by a domain rule.
	ErrUnprocessable = errors.New("unprocessable")

	// ErrRateLimit indicates the caller exceeded its request budget.
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrServiceUnavailable indicates a transient inability to serve.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInternal indicates an unclassified internal failure.
	ErrInternal = errors.New("internal error")
)

// Machine-readable error codes. These are the API contract; renaming
// one is a breaking change.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidJSON            = "INVALID_JSON"
	CodeUnsupportedMediaType   = "UNSUPPORTED_MEDIA_TYPE"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeIdempotencyKeyMissing  = "IDEMPOTENCY_KEY_REQUIRED"
	CodeIdempotencyKeyInvalid  = "INVALID_IDEMPOTENCY_KEY"
	CodeIdempotencyKeyReuse    = "IDEMPOTENCY_KEY_REUSE"
	CodeIdempotencyLockTimeout = "IDEMPOTENCY_LOCK_TIMEOUT"
	CodeTransferNotFound       = "TRANSFER_NOT_FOUND"
	CodeInvalidTransferState   = "INVALID_TRANSFER_STATE"
	CodeInvalidTransferAmount  = "INVALID_TRANSFER_AMOUNT"
	CodeSameAccountTransfer    = "SAME_ACCOUNT_TRANSFER"
	CodeAccountNotFound        = "ACCOUNT_NOT_FOUND"
	CodeAccountFrozen          = "ACCOUNT_FROZEN"
	CodeAccountClosed          = "ACCOUNT_CLOSED"
	CodeInvalidAccountState    = "INVALID_ACCOUNT_STATE"
	CodeNonZeroBalanceOnClose  = "NON_ZERO_BALANCE_ON_CLOSE"
	CodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
	CodeCurrencyMismatch       = "CURRENCY_MISMATCH"
	CodeBalanceOverflow        = "BALANCE_OVERFLOW"
	CodeInvalidDateRange       = "INVALID_DATE_RANGE"
	CodeInternal               = "INTERNAL_ERROR"
)

// DomainError is a categorized error with an API code. Violations
// carries field-level detail for validation failures.
type DomainError struct {
	Err        error
	Code       string
	Message    string
	Violations map[string]string
	Retryable  bool
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NotFoundError builds a not-found domain error with the given code.
func NotFoundError(code, message string) *DomainError {
	return &DomainError{Err: ErrNotFound, Code: code, Message: message}
}

// ConflictError builds a state-conflict domain error.
func ConflictError(code, message string) *DomainError {
	return &DomainError{Err: ErrConflict, Code: code, Message: message}
}

// UnprocessableError builds a rule-rejection domain error.
func UnprocessableError(code, message string) *DomainError {
	return &DomainError{Err: ErrUnprocessable, Code: code, Message: message}
}

// ValidationError builds an invalid-input error with optional
// field-level violations.
func ValidationError(message string, violations map[string]string) *DomainError {
	return &DomainError{Err: ErrInvalidInput, Code: CodeValidation, Message: message, Violations: violations}
}

// InvalidInputError builds an invalid-input error with a specific code.
func InvalidInputError(code, message string) *DomainError {
	return &DomainError{Err: ErrInvalidInput, Code: code, Message: message}
}

// UnavailableError builds a transient-failure error. These are safe to
// retry after the indicated delay.
func UnavailableError(code, message string) *DomainError {
	return &DomainError{Err: ErrServiceUnavailable, Code: code, Message: message, Retryable: true}
}

// InternalError wraps an unclassified failure.
func InternalError(err error) *DomainError {
	return &DomainError{Err: fmt.Errorf("%w: %v", ErrInternal, err), Code: CodeInternal, Message: "internal error"}
}

// Code extracts the machine-readable code from any error, or empty.
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// As extracts the DomainError from an error chain.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	ok := errors.As(err, &de)
	return de, ok
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool      { return errors.Is(err, ErrConflict) }
func IsInvalidInput(err error) bool  { return errors.Is(err, ErrInvalidInput) }
func IsUnprocessable(err error) bool { return errors.Is(err, ErrUnprocessable) }
