package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntryType represents the side of a double-entry pair.
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// Validate checks if the entry type is valid.
func (e EntryType) Validate() error {
	switch e {
	case EntryTypeDebit, EntryTypeCredit:
		return nil
	default:
		return fmt.Errorf("invalid entry type: %s", e)
	}
}

// Reserved identities for opening-balance entries. They deliberately
// do not exist as account or transfer rows, which is why
// ledger_entries.transfer_id carries no foreign key.
const (
	BootstrapCounterpartyID = "00000000-0000-7000-8000-000000000000"
	BootstrapTransferID     = "00000000-0000-7000-8000-000000000001"
)

// BootstrapCounterpartyUUID returns the reserved counterparty id.
func BootstrapCounterpartyUUID() uuid.UUID {
	return uuid.MustParse(BootstrapCounterpartyID)
}

// LedgerEntry is one immutable leg of a double-entry pair (or the
// single credit of a bootstrap). BalanceAfter snapshots the owning
// account's balance immediately after the entry so statements and
// reconciliation never need to SUM history.
type LedgerEntry struct {
	ID                    uuid.UUID    `json:"id" db:"id"`
	AccountID             uuid.UUID    `json:"account_id" db:"account_id"`
	CounterpartyAccountID uuid.UUID    `json:"counterparty_account_id" db:"counterparty_account_id"`
	TransferID            string       `json:"transfer_id" db:"transfer_id"`
	EntryType             EntryType    `json:"entry_type" db:"entry_type"`
	TransferType          TransferType `json:"transfer_type" db:"transfer_type"`
	Amount                int64        `json:"amount" db:"amount"`
	Currency              string       `json:"currency" db:"currency"`
	BalanceAfter          int64        `json:"balance_after" db:"balance_after"`
	OccurredAt            time.Time    `json:"occurred_at" db:"occurred_at"`
	CreatedAt             time.Time    `json:"created_at" db:"created_at"`
}

// NewLedgerEntry builds a validated entry with a time-ordered id.
func NewLedgerEntry(accountID, counterpartyAccountID uuid.UUID, transferID string, entryType EntryType, transferType TransferType, amount Money, balanceAfter int64, occurredAt time.Time) (*LedgerEntry, error) {
	if accountID == uuid.Nil {
		return nil, fmt.Errorf("ledger entry requires an account id")
	}
	if accountID == BootstrapCounterpartyUUID() {
		return nil, fmt.Errorf("ledger entry account must not be the reserved bootstrap identity")
	}
	if accountID == counterpartyAccountID {
		return nil, fmt.Errorf("ledger entry account and counterparty must differ")
	}
	if transferID == "" {
		return nil, fmt.Errorf("ledger entry requires a transfer id")
	}
	if err := entryType.Validate(); err != nil {
		return nil, err
	}
	switch transferType {
	case TransferTypeTransfer, TransferTypeReversal, TransferTypeBootstrap:
	default:
		return nil, fmt.Errorf("invalid ledger transfer type: %s", transferType)
	}
	if amount.Amount <= 0 {
		return nil, fmt.Errorf("ledger entry amount must be positive, got %d", amount.Amount)
	}
	if balanceAfter < 0 {
		return nil, fmt.Errorf("ledger entry balance_after must not be negative, got %d", balanceAfter)
	}

	return &LedgerEntry{
		ID:                    NewID(),
		AccountID:             accountID,
		CounterpartyAccountID: counterpartyAccountID,
		TransferID:            transferID,
		EntryType:             entryType,
		TransferType:          transferType,
		Amount:                amount.Amount,
		Currency:              amount.Currency,
		BalanceAfter:          balanceAfter,
		OccurredAt:            occurredAt,
		CreatedAt:             nowUTC(),
	}, nil
}

// NewBootstrapEntry builds the single opening-balance credit written
// when an account is opened with a non-zero balance.
func NewBootstrapEntry(accountID uuid.UUID, amount Money, occurredAt time.Time) (*LedgerEntry, error) {
	return NewLedgerEntry(
		accountID,
		BootstrapCounterpartyUUID(),
		BootstrapTransferID,
		EntryTypeCredit,
		TransferTypeBootstrap,
		amount,
		amount.Amount,
		occurredAt,
	)
}
