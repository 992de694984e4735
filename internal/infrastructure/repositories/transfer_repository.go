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

const transferColumns = `
	id, reference, source_account_id, destination_account_id, amount, currency,
	description, idempotency_key, status, transfer_type, failure_code, failure_reason,
	completed_at, failed_at, reversed_at, created_at, updated_at, version
`

// transferRow is the scan target for transfer queries. Reads go through
// HydrateTransfer so aggregates coming out of storage never carry
// unraised events.
type transferRow struct {
	ID                   uuid.UUID               `db:"id"`
	Reference            string                  `db:"reference"`
	SourceAccountID      uuid.UUID               `db:"source_account_id"`
	DestinationAccountID uuid.UUID               `db:"destination_account_id"`
	Amount               int64                   `db:"amount"`
	Currency             string                  `db:"currency"`
	Description          *string                 `db:"description"`
	IdempotencyKey       *string                 `db:"idempotency_key"`
	Status               entities.TransferStatus `db:"status"`
	TransferType         entities.TransferType   `db:"transfer_type"`
	FailureCode          *string                 `db:"failure_code"`
	FailureReason        *string                 `db:"failure_reason"`
	CompletedAt          *time.Time              `db:"completed_at"`
	FailedAt             *time.Time              `db:"failed_at"`
	ReversedAt           *time.Time              `db:"reversed_at"`
	CreatedAt            time.Time               `db:"created_at"`
	UpdatedAt            time.Time               `db:"updated_at"`
	Version              int64                   `db:"version"`
}

func (row transferRow) hydrate() *entities.Transfer {
	return entities.HydrateTransfer(
		row.ID,
		row.Reference,
		row.SourceAccountID,
		row.DestinationAccountID,
		row.Amount,
		row.Currency,
		row.Description,
		row.IdempotencyKey,
		row.Status,
		row.TransferType,
		row.FailureCode,
		row.FailureReason,
		row.CompletedAt,
		row.FailedAt,
		row.ReversedAt,
		row.CreatedAt,
		row.UpdatedAt,
		row.Version,
	)
}

func hydrateTransferRows(rows []transferRow) []*entities.Transfer {
	transfers := make([]*entities.Transfer, 0, len(rows))
	for _, row := range rows {
		transfers = append(transfers, row.hydrate())
	}
	return transfers
}

// TransferRepository handles transfer persistence
type TransferRepository struct {
	ext sqlx.ExtContext
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *sqlx.DB) *TransferRepository {
	return &TransferRepository{ext: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *TransferRepository) WithTx(tx *sqlx.Tx) domainrepos.TransferRepository {
	return &TransferRepository{ext: tx}
}

// Upsert persists a transfer, inserting on first save and updating the
// mutable fields on every save after that. Immutable fields (route,
// amount, reference, key) never change once written.
func (r *TransferRepository) Upsert(ctx context.Context, transfer *entities.Transfer) error {
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    failure_code = EXCLUDED.failure_code,
		    failure_reason = EXCLUDED.failure_reason,
		    completed_at = EXCLUDED.completed_at,
		    failed_at = EXCLUDED.failed_at,
		    reversed_at = EXCLUDED.reversed_at,
		    updated_at = EXCLUDED.updated_at,
		    version = EXCLUDED.version
	`

	_, err := r.ext.ExecContext(
		ctx,
		query,
		transfer.ID,
		transfer.Reference,
		transfer.SourceAccountID,
		transfer.DestinationAccountID,
		transfer.Amount,
		transfer.Currency,
		transfer.Description,
		transfer.IdempotencyKey,
		transfer.Status,
		transfer.TransferType,
		transfer.FailureCode,
		transfer.FailureReason,
		transfer.CompletedAt,
		transfer.FailedAt,
		transfer.ReversedAt,
		transfer.CreatedAt,
		transfer.UpdatedAt,
		transfer.Version,
	)
	if err != nil {
		return fmt.Errorf("upsert transfer: %w", err)
	}

	return nil
}

// FindByID retrieves a transfer by ID. Not found is not an error.
func (r *TransferRepository) FindByID(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`

	var row transferRow
	err := sqlx.GetContext(ctx, r.ext, &row, query, transferID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}

	return row.hydrate(), nil
}

// GetByID retrieves a transfer by ID, raising the domain not-found
// error when the row does not exist.
func (r *TransferRepository) GetByID(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error) {
	transfer, err := r.FindByID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, domainerrors.NotFoundError(domainerrors.CodeTransferNotFound, fmt.Sprintf("transfer %s not found", transferID))
	}
	return transfer, nil
}

// GetByIDForUpdate retrieves a transfer under a row lock. Callers must
// be inside a transaction.
func (r *TransferRepository) GetByIDForUpdate(ctx context.Context, transferID uuid.UUID) (*entities.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1 FOR UPDATE`

	var row transferRow
	err := sqlx.GetContext(ctx, r.ext, &row, query, transferID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError(domainerrors.CodeTransferNotFound, fmt.Sprintf("transfer %s not found", transferID))
		}
		return nil, fmt.Errorf("get transfer for update: %w", err)
	}

	return row.hydrate(), nil
}

// FindByIdempotencyKey retrieves a transfer by its idempotency key.
// Not found is not an error.
func (r *TransferRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entities.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE idempotency_key = $1`

	var row transferRow
	err := sqlx.GetContext(ctx, r.ext, &row, query, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get transfer by idempotency key: %w", err)
	}

	return row.hydrate(), nil
}

// FindByReference retrieves a transfer by its human readable reference.
// Not found is not an error.
func (r *TransferRepository) FindByReference(ctx context.Context, reference string) (*entities.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE reference = $1`

	var row transferRow
	err := sqlx.GetContext(ctx, r.ext, &row, query, reference)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get transfer by reference: %w", err)
	}

	return row.hydrate(), nil
}

// List retrieves transfers ordered by creation time, newest first,
// optionally filtered by status.
func (r *TransferRepository) List(ctx context.Context, status *entities.TransferStatus, limit, offset int) ([]*entities.Transfer, int64, error) {
	listQuery := `SELECT ` + transferColumns + ` FROM transfers`
	countQuery := `SELECT COUNT(*) FROM transfers`

	var args []interface{}
	if status != nil {
		listQuery += ` WHERE status = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
		countQuery += ` WHERE status = $1`
		args = []interface{}{*status}
	} else {
		listQuery += ` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	}

	var total int64
	if err := sqlx.GetContext(ctx, r.ext, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count transfers: %w", err)
	}

	var rows []transferRow
	listArgs := append(args, limit, offset)
	if err := sqlx.SelectContext(ctx, r.ext, &rows, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list transfers: %w", err)
	}

	return hydrateTransferRows(rows), total, nil
}

// ListByAccount retrieves transfers where the account participates on
// either side, newest first, optionally filtered by status.
func (r *TransferRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, status *entities.TransferStatus, limit, offset int) ([]*entities.Transfer, int64, error) {
	where := ` WHERE (source_account_id = $1 OR destination_account_id = $1)`
	args := []interface{}{accountID}
	if status != nil {
		where += ` AND status = $2`
		args = append(args, *status)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM transfers` + where
	if err := sqlx.GetContext(ctx, r.ext, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count account transfers: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+transferColumns+`
		FROM transfers
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	var rows []transferRow
	listArgs := append(args, limit, offset)
	if err := sqlx.SelectContext(ctx, r.ext, &rows, query, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list account transfers: %w", err)
	}

	return hydrateTransferRows(rows), total, nil
}
