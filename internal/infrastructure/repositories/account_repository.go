package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	domainrepos "github.com/ledgerd/ledgerd/internal/domain/repositories"
)

const accountColumns = `
	id, owner_name, balance, currency, status, created_at, updated_at, closed_at, version
`

// accountRow is the scan target for account queries. Reads go through
// HydrateAccount so aggregates coming out of storage never carry
// unraised events.
type accountRow struct {
	ID        uuid.UUID              `db:"id"`
	OwnerName string                 `db:"owner_name"`
	Balance   int64                  `db:"balance"`
	Currency  string                 `db:"currency"`
	Status    entities.AccountStatus `db:"status"`
	CreatedAt time.Time              `db:"created_at"`
	UpdatedAt time.Time              `db:"updated_at"`
	ClosedAt  *time.Time             `db:"closed_at"`
	Version   int64                  `db:"version"`
}

func (row accountRow) hydrate() *entities.Account {
	return entities.HydrateAccount(
		row.ID,
		row.OwnerName,
		row.Balance,
		row.Currency,
		row.Status,
		row.CreatedAt,
		row.UpdatedAt,
		row.ClosedAt,
		row.Version,
	)
}

// AccountRepository handles account persistence
type AccountRepository struct {
	ext sqlx.ExtContext
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{ext: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *AccountRepository) WithTx(tx *sqlx.Tx) domainrepos.AccountRepository {
	return &AccountRepository{ext: tx}
}

// Upsert persists an account, inserting on first save and updating the
// mutable fields on every save after that.
func (r *AccountRepository) Upsert(ctx context.Context, account *entities.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET balance = EXCLUDED.balance,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at,
		    closed_at = EXCLUDED.closed_at,
		    version = EXCLUDED.version
	`

	_, err := r.ext.ExecContext(
		ctx,
		query,
		account.ID,
		account.OwnerName,
		account.Balance,
		account.Currency,
		account.Status,
		account.CreatedAt,
		account.UpdatedAt,
		account.ClosedAt,
		account.Version,
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}

	return nil
}

// FindByID retrieves an account by ID. Not found is not an error.
func (r *AccountRepository) FindByID(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	var row accountRow
	err := sqlx.GetContext(ctx, r.ext, &row, query, accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return row.hydrate(), nil
}

// GetByID retrieves an account by ID, raising the domain not-found
// error when the row does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	account, err := r.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domainerrors.NotFoundError(domainerrors.CodeAccountNotFound, fmt.Sprintf("account %s not found", accountID))
	}
	return account, nil
}

// GetByIDForUpdate retrieves an account under a row lock. Callers must
// be inside a transaction.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	account, err := r.FindByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domainerrors.NotFoundError(domainerrors.CodeAccountNotFound, fmt.Sprintf("account %s not found", accountID))
	}
	return account, nil
}

// FindByIDForUpdate retrieves an account under a row lock. Callers must
// be inside a transaction. Not found is not an error.
func (r *AccountRepository) FindByIDForUpdate(ctx context.Context, accountID uuid.UUID) (*entities.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	var row accountRow
	err := sqlx.GetContext(ctx, r.ext, &row, query, accountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get account for update: %w", err)
	}

	return row.hydrate(), nil
}

// Exists reports whether an account row exists
func (r *AccountRepository) Exists(ctx context.Context, accountID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`

	var exists bool
	err := sqlx.GetContext(ctx, r.ext, &exists, query, accountID)
	if err != nil {
		return false, fmt.Errorf("account exists: %w", err)
	}

	return exists, nil
}
