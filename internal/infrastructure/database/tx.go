package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ledgerd/ledgerd/pkg/logger"
	"github.com/ledgerd/ledgerd/pkg/metrics"
	"github.com/ledgerd/ledgerd/pkg/retry"
	"github.com/ledgerd/ledgerd/pkg/tracing"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
)

// ErrLockTimeout is returned when an advisory lock could not be
// acquired within its wait budget.
var ErrLockTimeout = errors.New("advisory lock wait timed out")

// IsDeadlock reports whether err is a deadlock or serialization failure
// that is safe to retry on a fresh transaction.
func IsDeadlock(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	code := string(pqErr.Code)
	return code == pgDeadlockDetected || code == pgSerializationFailure
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

func isLockNotAvailable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgLockNotAvailable
}

// TxManager runs units of work inside database transactions, retrying
// the whole unit when the database picks it as a deadlock victim.
type TxManager struct {
	db     *sqlx.DB
	log    *logger.Logger
	policy retry.Policy
}

func NewTxManager(db *sqlx.DB, log *logger.Logger) *TxManager {
	return &TxManager{
		db:  db,
		log: log,
		policy: retry.Policy{
			MaxRetries: 3,
			Retryable: func(err error) bool {
				if IsDeadlock(err) {
					metrics.DeadlockRetriesTotal.Inc()
					return true
				}
				return false
			},
			Backoff: retry.JitterBackoff(10*time.Millisecond, 50*time.Millisecond),
		},
	}
}

// DB exposes the underlying pool for read paths that do not need a
// transaction.
func (m *TxManager) DB() *sqlx.DB {
	return m.db
}

// Transactional executes fn inside a transaction. fn must be safe to
// re-run: on deadlock the transaction is rolled back and the whole
// unit retried on a fresh one.
func (m *TxManager) Transactional(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	ctx, span := tracing.StartSpan(ctx, "db.transaction")
	defer span.End()

	err := retry.Do(ctx, m.policy, m.log.Zap(), func() error {
		return m.runInTx(ctx, fn)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (m *TxManager) runInTx(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.log.Error("Transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AcquireKeyLock serializes callers sharing an idempotency key. The
// advisory lock is transaction scoped, so it is held until the returned
// release func ends the holding transaction. Waiting is bounded by
// timeout; ErrLockTimeout is returned when the bound is hit.
func (m *TxManager) AcquireKeyLock(ctx context.Context, key string, timeout time.Duration) (release func(), err error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin lock transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to set lock timeout: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockID("idp:"+key)); err != nil {
		tx.Rollback()
		if isLockNotAvailable(err) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("failed to acquire idempotency lock: %w", err)
	}

	return func() { _ = tx.Rollback() }, nil
}

// advisoryLockID maps a key into the bigint space pg_advisory_xact_lock
// expects. The first eight bytes of the SHA-256 digest give a mapping
// that is stable across replicas and PostgreSQL versions, unlike
// hashtext whose output is an implementation detail.
func advisoryLockID(key string) int64 {
	sum := sha256.Sum256([]byte(key))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
