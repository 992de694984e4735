// Package repositories defines the persistence ports consumed by the
// domain services. The concrete SQL implementations live in
// internal/infrastructure/repositories; services depend on these
// interfaces only, so their transaction and locking contracts can be
// exercised in tests without a database.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
)

// TransactionManager runs a unit of work inside a database transaction.
// The closure must be safe to re-run: deadlock victims are retried on a
// fresh transaction.
type TransactionManager interface {
	Transactional(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error
}

// AccountRepository persists the account aggregate.
type AccountRepository interface {
	// WithTx returns a view of the repository bound to tx.
	WithTx(tx *sqlx.Tx) AccountRepository
	Upsert(ctx context.Context, account *entities.Account) error
	// FindByID returns nil, nil when the row does not exist.
	FindByID(ctx context.Context, accountID uuid.UUID) (*entities.Account, error)
	// GetByID raises the ACCOUNT_NOT_FOUND domain error on a missing row.
	GetByID(ctx context.Context, accountID uuid.UUID) (*entities.Account, error)
	// GetByIDForUpdate takes a row lock; callers must be inside a transaction.
	GetByIDForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error)
	FindByIDForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error)
	Exists(ctx context.Context, accountID uuid.UUID) (bool, error)
}

// TransferRepository persists the transfer aggregate.
type TransferRepository interface {
	WithTx(tx *sqlx.Tx) TransferRepository
	Upsert(ctx context.Context, transfer *entities.Transfer) error
	FindByID(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error)
	GetByID(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error)
	GetByIDForUpdate(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*entities.Transfer, error)
	FindByReference(ctx context.Context, reference string) (*entities.Transfer, error)
	List(ctx context.Context, status *entities.TransferStatus, limit, offset int) ([]*entities.Transfer, int64, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, status *entities.TransferStatus, limit, offset int) ([]*entities.Transfer, int64, error)
}

// AccountLedgerState is one account's reconciliation inputs: the stored
// balance next to what the ledger says about it. LedgerSum is credits
// minus debits and arrives as NUMERIC since bigint sums can exceed
// bigint range.
type AccountLedgerState struct {
	AccountID          uuid.UUID       `db:"account_id"`
	Balance            int64           `db:"balance"`
	Currency           string          `db:"currency"`
	EntryCount         int64           `db:"entry_count"`
	LedgerSum          decimal.Decimal `db:"ledger_sum"`
	LatestBalanceAfter *int64          `db:"latest_balance_after"`
}

// LedgerRepository persists the append-only double-entry ledger. The
// two Record methods are the only insert paths in the system.
type LedgerRepository interface {
	WithTx(tx *sqlx.Tx) LedgerRepository
	RecordDoubleEntry(ctx context.Context, debit, credit *entities.LedgerEntry) error
	RecordBootstrapCredit(ctx context.Context, entry *entities.LedgerEntry) error
	ListByTransfer(ctx context.Context, transferID string) ([]*entities.LedgerEntry, error)
	// BalanceBefore seeks the balance snapshot in force strictly before at.
	BalanceBefore(ctx context.Context, accountID uuid.UUID, at time.Time) (balance int64, found bool, err error)
	// BalanceAt seeks the balance snapshot in force at the instant, inclusive.
	BalanceAt(ctx context.Context, accountID uuid.UUID, at time.Time) (balance int64, found bool, err error)
	Movements(ctx context.Context, accountID uuid.UUID, from, to time.Time, limit, offset int) ([]*entities.LedgerEntry, error)
	CountMovements(ctx context.Context, accountID uuid.UUID, from, to time.Time) (int64, error)
	ScanAccountLedgerStates(ctx context.Context, afterID uuid.UUID, limit int) ([]AccountLedgerState, error)
}

// OutboxRepository persists and settles the transactional outbox.
type OutboxRepository interface {
	WithTx(tx *sqlx.Tx) OutboxRepository
	Append(ctx context.Context, events ...*entities.OutboxEvent) error
	AppendEvents(ctx context.Context, aggregateID uuid.UUID, events []entities.DomainEvent) error
	AppendTagged(ctx context.Context, events []entities.TaggedEvent) error
	// ClaimBatch locks up to limit undelivered rows with SKIP LOCKED;
	// callers must settle every claimed row before committing.
	ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]*entities.OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error
	MarkFailed(ctx context.Context, eventID uuid.UUID, lastError string) error
	ListDeadLetter(ctx context.Context, maxAttempts, limit, offset int) ([]*entities.OutboxEvent, int64, error)
	Requeue(ctx context.Context, eventID uuid.UUID) (bool, error)
	CountPending(ctx context.Context) (int64, error)
}

// IdempotencyStore caches completed HTTP responses under client keys.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*entities.IdempotencyRecord, error)
	Put(ctx context.Context, record *entities.IdempotencyRecord) error
	DeleteExpired(ctx context.Context) (int64, error)
}
