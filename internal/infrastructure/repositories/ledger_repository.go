package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainrepos "github.com/ledgerd/ledgerd/internal/domain/repositories"
)

const ledgerEntryColumns = `
	id, account_id, counterparty_account_id, transfer_id, entry_type, transfer_type,
	amount, currency, balance_after, occurred_at, created_at
`

// LedgerRepository handles ledger entry persistence. Entries are
// append-only; there are exactly two write paths and both tolerate
// replays of the same transfer through the unique index on
// (account_id, transfer_id, entry_type).
type LedgerRepository struct {
	ext sqlx.ExtContext
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{ext: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *LedgerRepository) WithTx(tx *sqlx.Tx) domainrepos.LedgerRepository {
	return &LedgerRepository{ext: tx}
}

// RecordDoubleEntry inserts the debit and credit legs of a transfer in
// one statement. A duplicate of an already recorded transfer leg is
// treated as a replay and skipped.
func (r *LedgerRepository) RecordDoubleEntry(ctx context.Context, debit, credit *entities.LedgerEntry) error {
	if debit.EntryType != entities.EntryTypeDebit {
		return fmt.Errorf("double entry: first leg must be a debit, got %s", debit.EntryType)
	}
	if credit.EntryType != entities.EntryTypeCredit {
		return fmt.Errorf("double entry: second leg must be a credit, got %s", credit.EntryType)
	}
	if debit.TransferID != credit.TransferID {
		return fmt.Errorf("double entry: legs belong to different transfers")
	}

	query := `
		INSERT INTO ledger_entries (` + ledgerEntryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11),
		       ($12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`

	_, err := r.ext.ExecContext(
		ctx,
		query,
		debit.ID, debit.AccountID, debit.CounterpartyAccountID, debit.TransferID,
		debit.EntryType, debit.TransferType, debit.Amount, debit.Currency,
		debit.BalanceAfter, debit.OccurredAt, debit.CreatedAt,
		credit.ID, credit.AccountID, credit.CounterpartyAccountID, credit.TransferID,
		credit.EntryType, credit.TransferType, credit.Amount, credit.Currency,
		credit.BalanceAfter, credit.OccurredAt, credit.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("record double entry: %w", err)
	}

	return nil
}

// RecordBootstrapCredit inserts the single credit leg that seeds a new
// account with its initial balance.
func (r *LedgerRepository) RecordBootstrapCredit(ctx context.Context, entry *entities.LedgerEntry) error {
	if entry.TransferType != entities.TransferTypeBootstrap {
		return fmt.Errorf("bootstrap credit: unexpected transfer type %s", entry.TransferType)
	}

	query := `
		INSERT INTO ledger_entries (` + ledgerEntryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.ext.ExecContext(
		ctx,
		query,
		entry.ID, entry.AccountID, entry.CounterpartyAccountID, entry.TransferID,
		entry.EntryType, entry.TransferType, entry.Amount, entry.Currency,
		entry.BalanceAfter, entry.OccurredAt, entry.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("record bootstrap credit: %w", err)
	}

	return nil
}

// ListByTransfer retrieves all entries recorded for a transfer
func (r *LedgerRepository) ListByTransfer(ctx context.Context, transferID string) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerEntryColumns + `
		FROM ledger_entries
		WHERE transfer_id = $1
		ORDER BY entry_type, id
	`

	var entries []*entities.LedgerEntry
	if err := sqlx.SelectContext(ctx, r.ext, &entries, query, transferID); err != nil {
		return nil, fmt.Errorf("list entries by transfer: %w", err)
	}

	return entries, nil
}

// BalanceBefore returns the balance snapshot in force strictly before
// the given instant, seeking backwards on (account_id, occurred_at).
// found is false when the account has no entries before the instant.
func (r *LedgerRepository) BalanceBefore(ctx context.Context, accountID uuid.UUID, at time.Time) (balance int64, found bool, err error) {
	query := `
		SELECT balance_after
		FROM ledger_entries
		WHERE account_id = $1 AND occurred_at < $2
		ORDER BY occurred_at DESC, id DESC
		LIMIT 1
	`

	err = sqlx.GetContext(ctx, r.ext, &balance, query, accountID, at)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("balance before: %w", err)
	}

	return balance, true, nil
}

// BalanceAt returns the balance snapshot in force at the given instant,
// inclusive. found is false when the account has no entries at or
// before the instant.
func (r *LedgerRepository) BalanceAt(ctx context.Context, accountID uuid.UUID, at time.Time) (balance int64, found bool, err error) {
	query := `
		SELECT balance_after
		FROM ledger_entries
		WHERE account_id = $1 AND occurred_at <= $2
		ORDER BY occurred_at DESC, id DESC
		LIMIT 1
	`

	err = sqlx.GetContext(ctx, r.ext, &balance, query, accountID, at)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("balance at: %w", err)
	}

	return balance, true, nil
}

// Movements retrieves one page of an account's entries inside the
// window, newest first.
func (r *LedgerRepository) Movements(ctx context.Context, accountID uuid.UUID, from, to time.Time, limit, offset int) ([]*entities.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerEntryColumns + `
		FROM ledger_entries
		WHERE account_id = $1 AND occurred_at >= $2 AND occurred_at <= $3
		ORDER BY occurred_at DESC, id DESC
		LIMIT $4 OFFSET $5
	`

	var entries []*entities.LedgerEntry
	if err := sqlx.SelectContext(ctx, r.ext, &entries, query, accountID, from, to, limit, offset); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	return entries, nil
}

// CountMovements counts an account's entries inside the window
func (r *LedgerRepository) CountMovements(ctx context.Context, accountID uuid.UUID, from, to time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM ledger_entries
		WHERE account_id = $1 AND occurred_at >= $2 AND occurred_at <= $3
	`

	var count int64
	if err := sqlx.GetContext(ctx, r.ext, &count, query, accountID, from, to); err != nil {
		return 0, fmt.Errorf("count movements: %w", err)
	}

	return count, nil
}

// ScanAccountLedgerStates pages through every account with its ledger
// aggregates. Keyset pagination on account id; pass uuid.Nil to start
// from the beginning. The per-account sum is credits minus debits and
// arrives as NUMERIC since bigint sums can exceed bigint range.
func (r *LedgerRepository) ScanAccountLedgerStates(ctx context.Context, afterID uuid.UUID, limit int) ([]domainrepos.AccountLedgerState, error) {
	query := `
		SELECT a.id AS account_id,
		       a.balance,
		       a.currency,
		       le.entry_count,
		       le.ledger_sum,
		       le.latest_balance_after
		FROM accounts a
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS entry_count,
			       COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount ELSE -amount END), 0) AS ledger_sum,
			       (SELECT balance_after
			        FROM ledger_entries
			        WHERE account_id = a.id
			        ORDER BY occurred_at DESC, id DESC
			        LIMIT 1) AS latest_balance_after
			FROM ledger_entries
			WHERE account_id = a.id
		) le ON TRUE
		WHERE a.id > $1
		ORDER BY a.id
		LIMIT $2
	`

	var states []domainrepos.AccountLedgerState
	if err := sqlx.SelectContext(ctx, r.ext, &states, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("scan account ledger states: %w", err)
	}

	return states, nil
}
