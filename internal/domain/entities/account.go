package entities

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
)

// AccountStatus represents the lifecycle state of an account.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

// Validate checks if the account status is valid.
func (s AccountStatus) Validate() error {
	switch s {
	case AccountStatusActive, AccountStatusFrozen, AccountStatusClosed:
		return nil
	default:
		return fmt.Errorf("invalid account status: %s", s)
	}
}

const maxOwnerNameLength = 255

// Account is the aggregate holding a balance. All mutations go through
// the methods below; each bumps Version, refreshes UpdatedAt with a
// single clock read, and buffers one domain event.
type Account struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	OwnerName string        `json:"owner_name" db:"owner_name"`
	Balance   int64         `json:"balance" db:"balance"`
	Currency  string        `json:"currency" db:"currency"`
	Status    AccountStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
	ClosedAt  *time.Time    `json:"closed_at,omitempty" db:"closed_at"`
	Version   int64         `json:"version" db:"version"`

	events []DomainEvent
}

// OpenAccount creates a new account and raises AccountCreated. This is
// the factory path; persistence hydration goes through HydrateAccount
// and raises nothing.
func OpenAccount(id uuid.UUID, ownerName, currency string, initialBalance int64) (*Account, error) {
	if id == uuid.Nil {
		return nil, domainerrors.ValidationError("account id is required", map[string]string{"id": "must not be empty"})
	}
	ownerName = strings.TrimSpace(ownerName)
	if ownerName == "" {
		return nil, domainerrors.ValidationError("owner name must not be blank", map[string]string{"owner_name": "must not be blank"})
	}
	if len(ownerName) > maxOwnerNameLength {
		return nil, domainerrors.ValidationError("owner name too long", map[string]string{"owner_name": "must be at most 255 characters"})
	}
	balance, err := NewMoney(initialBalance, currency)
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	account := &Account{
		ID:        id,
		OwnerName: ownerName,
		Balance:   balance.Amount,
		Currency:  balance.Currency,
		Status:    AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	account.record(AccountCreated{
		AccountID:      id,
		OwnerName:      ownerName,
		Currency:       balance.Currency,
		InitialBalance: balance.Amount,
		OccurredAt:     now,
	})
	return account, nil
}

// HydrateAccount reconstitutes an account from storage without raising
// events.
func HydrateAccount(id uuid.UUID, ownerName string, balance int64, currency string, status AccountStatus, createdAt, updatedAt time.Time, closedAt *time.Time, version int64) *Account {
	return &Account{
		ID:        id,
		OwnerName: ownerName,
		Balance:   balance,
		Currency:  currency,
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		ClosedAt:  closedAt,
		Version:   version,
	}
}

// BalanceMoney returns the balance as a Money value.
func (a *Account) BalanceMoney() Money {
	return Money{Amount: a.Balance, Currency: a.Currency}
}

// Debit removes amount from the balance. Only active accounts may be
// debited; the guards surface as typed domain errors so the transfer
// flow can fail deterministically.
func (a *Account) Debit(amount Money, transferID string, transferType TransferType, counterpartyID uuid.UUID) error {
	if err := a.assertActive(); err != nil {
		return err
	}
	newBalance, err := a.BalanceMoney().Subtract(amount)
	if err != nil {
		return err
	}

	now := a.touch()
	a.Balance = newBalance.Amount
	a.record(AccountDebited{
		AccountID:      a.ID,
		TransferID:     transferID,
		TransferType:   string(transferType),
		CounterpartyID: counterpartyID,
		Amount:         amount.Amount,
		Currency:       amount.Currency,
		BalanceAfter:   newBalance.Amount,
		OccurredAt:     now,
	})
	return nil
}

// Credit adds amount to the balance. Symmetric to Debit; an int64
// overflow surfaces as BALANCE_OVERFLOW.
func (a *Account) Credit(amount Money, transferID string, transferType TransferType, counterpartyID uuid.UUID) error {
	if err := a.assertActive(); err != nil {
		return err
	}
	newBalance, err := a.BalanceMoney().Add(amount)
	if err != nil {
		return err
	}

	now := a.touch()
	a.Balance = newBalance.Amount
	a.record(AccountCredited{
		AccountID:      a.ID,
		TransferID:     transferID,
		TransferType:   string(transferType),
		CounterpartyID: counterpartyID,
		Amount:         amount.Amount,
		Currency:       amount.Currency,
		BalanceAfter:   newBalance.Amount,
		OccurredAt:     now,
	})
	return nil
}

// Freeze moves an active account to frozen.
func (a *Account) Freeze() error {
	if a.Status != AccountStatusActive {
		return domainerrors.ConflictError(domainerrors.CodeInvalidAccountState,
			fmt.Sprintf("cannot freeze account in status %s", a.Status))
	}
	now := a.touch()
	a.Status = AccountStatusFrozen
	a.record(AccountFrozen{AccountID: a.ID, OccurredAt: now})
	return nil
}

// Unfreeze moves a frozen account back to active.
func (a *Account) Unfreeze() error {
	if a.Status != AccountStatusFrozen {
		return domainerrors.ConflictError(domainerrors.CodeInvalidAccountState,
			fmt.Sprintf("cannot unfreeze account in status %s", a.Status))
	}
	now := a.touch()
	a.Status = AccountStatusActive
	a.record(AccountUnfrozen{AccountID: a.ID, OccurredAt: now})
	return nil
}

// Close terminally closes the account. The balance must be zero.
func (a *Account) Close() error {
	if a.Status == AccountStatusClosed {
		return domainerrors.ConflictError(domainerrors.CodeAccountClosed, "account is already closed")
	}
	if a.Balance != 0 {
		return domainerrors.ConflictError(domainerrors.CodeNonZeroBalanceOnClose,
			fmt.Sprintf("cannot close account with balance %d", a.Balance))
	}
	now := a.touch()
	a.Status = AccountStatusClosed
	a.ClosedAt = &now
	a.record(AccountClosed{AccountID: a.ID, OccurredAt: now})
	return nil
}

// PeekEvents returns buffered events without clearing them; used
// inside the transaction to write the outbox.
func (a *Account) PeekEvents() []DomainEvent {
	out := make([]DomainEvent, len(a.events))
	copy(out, a.events)
	return out
}

// ReleaseEvents returns buffered events and clears the buffer; used
// after commit.
func (a *Account) ReleaseEvents() []DomainEvent {
	out := a.events
	a.events = nil
	return out
}

func (a *Account) assertActive() error {
	switch a.Status {
	case AccountStatusActive:
		return nil
	case AccountStatusFrozen:
		return domainerrors.ConflictError(domainerrors.CodeAccountFrozen, "account is frozen")
	default:
		return domainerrors.ConflictError(domainerrors.CodeAccountClosed, "account is closed")
	}
}

// touch bumps the version and refreshes UpdatedAt, returning the
// timestamp so the caller reads the clock exactly once per transition.
func (a *Account) touch() time.Time {
	now := nowUTC()
	a.UpdatedAt = now
	a.Version++
	return now
}

func (a *Account) record(event DomainEvent) {
	a.events = append(a.events, event)
}
