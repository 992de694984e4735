package entities

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
)

// TransferStatus represents the lifecycle state of a transfer.
// processing is ephemeral: it exists between initiation and the
// terminal transition inside one request and is never persisted.
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "pending"
	TransferStatusProcessing TransferStatus = "processing"
	TransferStatusCompleted  TransferStatus = "completed"
	TransferStatusFailed     TransferStatus = "failed"
	TransferStatusReversed   TransferStatus = "reversed"
)

// Validate checks if the transfer status is valid.
func (s TransferStatus) Validate() error {
	switch s {
	case TransferStatusPending, TransferStatusProcessing, TransferStatusCompleted,
		TransferStatusFailed, TransferStatusReversed:
		return nil
	default:
		return fmt.Errorf("invalid transfer status: %s", s)
	}
}

// IsPersistable reports whether the status may be written to storage.
func (s TransferStatus) IsPersistable() bool {
	return s != TransferStatusProcessing
}

// TransferType distinguishes the movement kinds recorded on transfers
// and ledger entries. bootstrap appears only on opening-balance ledger
// entries, never on a transfer row.
type TransferType string

const (
	TransferTypeTransfer  TransferType = "transfer"
	TransferTypeReversal  TransferType = "reversal"
	TransferTypeBootstrap TransferType = "bootstrap"
)

// Validate checks if the transfer type is valid for a transfer row.
func (t TransferType) Validate() error {
	switch t {
	case TransferTypeTransfer, TransferTypeReversal:
		return nil
	default:
		return fmt.Errorf("invalid transfer type: %s", t)
	}
}

const (
	maxDescriptionLength    = 500
	maxIdempotencyKeyLength = 255
	maxFailureCodeLength    = 100
	maxFailureReasonLength  = 500
)

// Transfer is the aggregate describing one money movement between two
// accounts.
type Transfer struct {
	ID                   uuid.UUID      `json:"id" db:"id"`
	Reference            string         `json:"reference" db:"reference"`
	SourceAccountID      uuid.UUID      `json:"source_account_id" db:"source_account_id"`
	DestinationAccountID uuid.UUID      `json:"destination_account_id" db:"destination_account_id"`
	Amount               int64          `json:"amount" db:"amount"`
	Currency             string         `json:"currency" db:"currency"`
	Description          *string        `json:"description,omitempty" db:"description"`
	IdempotencyKey       *string        `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Status               TransferStatus `json:"status" db:"status"`
	TransferType         TransferType   `json:"transfer_type" db:"transfer_type"`
	FailureCode          *string        `json:"failure_code,omitempty" db:"failure_code"`
	FailureReason        *string        `json:"failure_reason,omitempty" db:"failure_reason"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt             *time.Time     `json:"failed_at,omitempty" db:"failed_at"`
	ReversedAt           *time.Time     `json:"reversed_at,omitempty" db:"reversed_at"`
	CreatedAt            time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at" db:"updated_at"`
	Version              int64          `json:"version" db:"version"`

	events []DomainEvent
}

// NewID returns a time-ordered UUID so primary key insertion
// stays append-mostly.
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to v4
		// rather than refusing the operation.
		return uuid.New()
	}
	return id
}

// InitiateTransfer creates a new pending transfer and raises
// TransferInitiated.
func InitiateTransfer(id, sourceAccountID, destinationAccountID uuid.UUID, amount int64, currency string, description, idempotencyKey *string) (*Transfer, error) {
	if id == uuid.Nil {
		return nil, domainerrors.ValidationError("transfer id is required", map[string]string{"id": "must not be empty"})
	}
	if sourceAccountID == uuid.Nil || destinationAccountID == uuid.Nil {
		return nil, domainerrors.ValidationError("both account ids are required", map[string]string{"source_account_id": "must not be empty", "destination_account_id": "must not be empty"})
	}
	if sourceAccountID == destinationAccountID {
		return nil, domainerrors.UnprocessableError(domainerrors.CodeSameAccountTransfer,
			"source and destination accounts must differ")
	}
	if amount <= 0 {
		return nil, domainerrors.UnprocessableError(domainerrors.CodeInvalidTransferAmount,
			"transfer amount must be positive")
	}
	if err := ValidateCurrency(currency); err != nil {
		return nil, err
	}
	if description != nil && len(*description) > maxDescriptionLength {
		return nil, domainerrors.ValidationError("description too long", map[string]string{"description": "must be at most 500 characters"})
	}
	if idempotencyKey != nil {
		trimmed := strings.TrimSpace(*idempotencyKey)
		if trimmed == "" || len(trimmed) > maxIdempotencyKeyLength {
			return nil, domainerrors.InvalidInputError(domainerrors.CodeIdempotencyKeyInvalid,
				"idempotency key must be 1-255 characters")
		}
		idempotencyKey = &trimmed
	}

	now := nowUTC()
	transfer := &Transfer{
		ID:                   id,
		Reference:            BuildTransferReference(id, now),
		SourceAccountID:      sourceAccountID,
		DestinationAccountID: destinationAccountID,
		Amount:               amount,
		Currency:             currency,
		Description:          description,
		IdempotencyKey:       idempotencyKey,
		Status:               TransferStatusPending,
		TransferType:         TransferTypeTransfer,
		CreatedAt:            now,
		UpdatedAt:            now,
		Version:              1,
	}
	transfer.record(TransferInitiated{
		TransferID:           id,
		Reference:            transfer.Reference,
		SourceAccountID:      sourceAccountID,
		DestinationAccountID: destinationAccountID,
		Amount:               amount,
		Currency:             currency,
		OccurredAt:           now,
	})
	return transfer, nil
}

// HydrateTransfer reconstitutes a transfer from storage without
// raising events.
func HydrateTransfer(id uuid.UUID, reference string, sourceAccountID, destinationAccountID uuid.UUID, amount int64, currency string, description, idempotencyKey *string, status TransferStatus, transferType TransferType, failureCode, failureReason *string, completedAt, failedAt, reversedAt *time.Time, createdAt, updatedAt time.Time, version int64) *Transfer {
	return &Transfer{
		ID:                   id,
		Reference:            reference,
		SourceAccountID:      sourceAccountID,
		DestinationAccountID: destinationAccountID,
		Amount:               amount,
		Currency:             currency,
		Description:          description,
		IdempotencyKey:       idempotencyKey,
		Status:               status,
		TransferType:         transferType,
		FailureCode:          failureCode,
		FailureReason:        failureReason,
		CompletedAt:          completedAt,
		FailedAt:             failedAt,
		ReversedAt:           reversedAt,
		CreatedAt:            createdAt,
		UpdatedAt:            updatedAt,
		Version:              version,
	}
}

// BuildTransferReference derives the human reference from the id and
// creation time: TXN-YYYYMMDD- plus the last 12 upper-hex characters
// of the id with dashes stripped. Deterministic, so a replayed
// initiation regenerates the same reference.
func BuildTransferReference(id uuid.UUID, createdAt time.Time) string {
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return fmt.Sprintf("TXN-%s-%s", createdAt.UTC().Format("20060102"), hex[len(hex)-12:])
}

// AmountMoney returns the amount as a Money value.
func (t *Transfer) AmountMoney() Money {
	return Money{Amount: t.Amount, Currency: t.Currency}
}

// MarkProcessing moves pending to processing. The processing state
// lives only in memory.
func (t *Transfer) MarkProcessing() error {
	if t.Status != TransferStatusPending {
		return t.invalidTransition(TransferStatusProcessing)
	}
	t.touch()
	t.Status = TransferStatusProcessing
	return nil
}

// Complete moves processing to completed and stamps CompletedAt.
func (t *Transfer) Complete() error {
	if t.Status != TransferStatusProcessing {
		return t.invalidTransition(TransferStatusCompleted)
	}
	now := t.touch()
	t.Status = TransferStatusCompleted
	t.CompletedAt = &now
	t.record(TransferCompleted{
		TransferID:           t.ID,
		Reference:            t.Reference,
		SourceAccountID:      t.SourceAccountID,
		DestinationAccountID: t.DestinationAccountID,
		Amount:               t.Amount,
		Currency:             t.Currency,
		OccurredAt:           now,
	})
	return nil
}

// Fail moves processing to failed, recording the violation for audit.
// Code and reason are clipped to their column widths; a truncated
// audit line beats a lost one.
func (t *Transfer) Fail(code, reason string) error {
	if t.Status != TransferStatusProcessing {
		return t.invalidTransition(TransferStatusFailed)
	}
	code = clip(code, maxFailureCodeLength)
	reason = clip(reason, maxFailureReasonLength)

	now := t.touch()
	t.Status = TransferStatusFailed
	t.FailureCode = &code
	t.FailureReason = &reason
	t.FailedAt = &now
	t.record(TransferFailed{
		TransferID:           t.ID,
		Reference:            t.Reference,
		SourceAccountID:      t.SourceAccountID,
		DestinationAccountID: t.DestinationAccountID,
		Amount:               t.Amount,
		Currency:             t.Currency,
		FailureCode:          code,
		FailureReason:        reason,
		OccurredAt:           now,
	})
	return nil
}

// Reverse moves completed to reversed and stamps ReversedAt.
func (t *Transfer) Reverse() error {
	if t.Status != TransferStatusCompleted {
		return t.invalidTransition(TransferStatusReversed)
	}
	now := t.touch()
	t.Status = TransferStatusReversed
	t.ReversedAt = &now
	t.record(TransferReversed{
		TransferID:           t.ID,
		Reference:            t.Reference,
		SourceAccountID:      t.SourceAccountID,
		DestinationAccountID: t.DestinationAccountID,
		Amount:               t.Amount,
		Currency:             t.Currency,
		OccurredAt:           now,
	})
	return nil
}

// PeekEvents returns buffered events without clearing them.
func (t *Transfer) PeekEvents() []DomainEvent {
	out := make([]DomainEvent, len(t.events))
	copy(out, t.events)
	return out
}

// ReleaseEvents returns buffered events and clears the buffer.
func (t *Transfer) ReleaseEvents() []DomainEvent {
	out := t.events
	t.events = nil
	return out
}

func (t *Transfer) invalidTransition(to TransferStatus) error {
	return domainerrors.ConflictError(domainerrors.CodeInvalidTransferState,
		fmt.Sprintf("cannot transition transfer from %s to %s", t.Status, to))
}

func (t *Transfer) touch() time.Time {
	now := nowUTC()
	t.UpdatedAt = now
	t.Version++
	return now
}

func (t *Transfer) record(event DomainEvent) {
	t.events = append(t.events, event)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
