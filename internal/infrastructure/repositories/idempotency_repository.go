package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	"github.com/ledgerd/ledgerd/pkg/tracing"
)

// IdempotencyRepository handles idempotency key operations
type IdempotencyRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewIdempotencyRepository creates a new idempotency repository
func NewIdempotencyRepository(db *sqlx.DB, logger *zap.Logger) *IdempotencyRepository {
	return &IdempotencyRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a live idempotency record. Not found is not an error.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*entities.IdempotencyRecord, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "SELECT",
		Table:     "idempotency_keys",
	})
	defer span.End()

	query := `
		SELECT idempotency_key, request_hash, response_status, response_body, created_at, expires_at
		FROM idempotency_keys
		WHERE idempotency_key = $1 AND expires_at > NOW()
	`

	var record entities.IdempotencyRecord
	err := r.db.QueryRowxContext(ctx, query, key).Scan(
		&record.Key,
		&record.RequestHash,
		&record.ResponseStatus,
		&record.ResponseBody,
		&record.CreatedAt,
		&record.ExpiresAt,
	)

	if err == sql.ErrNoRows {
		tracing.EndDBSpan(span, nil, 0)
		return nil, nil // Not found is not an error
	}

	tracing.EndDBSpan(span, err, 1)

	if err != nil {
		r.logger.Error("Failed to get idempotency key",
			zap.String("key", key),
			zap.Error(err))
		return nil, err
	}

	return &record, nil
}

// Put stores a completed response for a key. A concurrent writer that
// got there first wins; the insert is a no-op in that case.
func (r *IdempotencyRepository) Put(ctx context.Context, record *entities.IdempotencyRecord) error {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "INSERT",
		Table:     "idempotency_keys",
	})
	defer span.End()

	query := `
		INSERT INTO idempotency_keys (
			idempotency_key, request_hash, response_status, response_body, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		record.Key,
		record.RequestHash,
		record.ResponseStatus,
		record.ResponseBody,
		record.CreatedAt,
		record.ExpiresAt,
	)

	tracing.EndDBSpan(span, err, 1)

	if err != nil {
		r.logger.Error("Failed to store idempotency key",
			zap.String("key", record.Key),
			zap.Error(err))
		return err
	}

	return nil
}

// DeleteExpired removes expired idempotency keys
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "DELETE",
		Table:     "idempotency_keys",
	})
	defer span.End()

	query := `DELETE FROM idempotency_keys WHERE expires_at <= NOW()`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		tracing.EndDBSpan(span, err, -1)
		r.logger.Error("Failed to delete expired idempotency keys", zap.Error(err))
		return 0, err
	}

	rowsAffected, _ := result.RowsAffected()
	tracing.EndDBSpan(span, nil, rowsAffected)

	r.logger.Info("Deleted expired idempotency keys", zap.Int64("count", rowsAffected))
	return rowsAffected, nil
}

// GetStats returns statistics about idempotency keys
func (r *IdempotencyRepository) GetStats(ctx context.Context) (total, expired int64, err error) {
	ctx, span := tracing.StartDBSpan(ctx, tracing.DBSpanConfig{
		Operation: "SELECT",
		Table:     "idempotency_keys",
	})
	defer span.End()

	query := `
		SELECT 
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE expires_at <= NOW()) as expired
		FROM idempotency_keys
	`

	err = r.db.QueryRowxContext(ctx, query).Scan(&total, &expired)
	tracing.EndDBSpan(span, err, 1)

	if err != nil {
		r.logger.Error("Failed to get idempotency key stats", zap.Error(err))
		return 0, 0, err
	}

	return total, expired, nil
}
