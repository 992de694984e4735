package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	domainrepos "github.com/ledgerd/ledgerd/internal/domain/repositories"
)

const outboxColumns = `
	id, aggregate_type, aggregate_id, event_type, payload, occurred_at,
	created_at, published_at, attempt_count, last_error
`

// OutboxRepository handles the transactional outbox rows
type OutboxRepository struct {
	ext sqlx.ExtContext
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{ext: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *OutboxRepository) WithTx(tx *sqlx.Tx) domainrepos.OutboxRepository {
	return &OutboxRepository{ext: tx}
}

// Append inserts outbox rows. It must run inside the same transaction
// as the domain writes producing the events.
func (r *OutboxRepository) Append(ctx context.Context, events ...*entities.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, event := range events {
		_, err := r.ext.ExecContext(
			ctx,
			query,
			event.ID,
			event.AggregateType,
			event.AggregateID,
			event.EventType,
			event.Payload,
			event.OccurredAt,
			event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("append outbox event: %w", err)
		}
	}

	return nil
}

// AppendEvents serializes domain events under one aggregate id and
// appends them as outbox rows.
func (r *OutboxRepository) AppendEvents(ctx context.Context, aggregateID uuid.UUID, events []entities.DomainEvent) error {
	for _, event := range events {
		row, err := entities.NewOutboxEvent(aggregateID, event)
		if err != nil {
			return fmt.Errorf("serialize outbox event: %w", err)
		}
		if err := r.Append(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// AppendTagged appends events that already carry their aggregate id.
func (r *OutboxRepository) AppendTagged(ctx context.Context, events []entities.TaggedEvent) error {
	for _, tagged := range events {
		row, err := entities.NewOutboxEvent(tagged.AggregateID, tagged.Event)
		if err != nil {
			return fmt.Errorf("serialize outbox event: %w", err)
		}
		if err := r.Append(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// ClaimBatch locks up to limit unpublished rows for this worker,
// oldest first, skipping rows already claimed by a competing worker.
// Callers must be inside a transaction and settle each claimed row
// before committing.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]*entities.OutboxEvent, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE published_at IS NULL AND attempt_count < $2
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	var events []*entities.OutboxEvent
	if err := sqlx.SelectContext(ctx, r.ext, &events, query, limit, maxAttempts); err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}

	return events, nil
}

// MarkPublished settles a claimed row as delivered
func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID uuid.UUID, publishedAt time.Time) error {
	query := `UPDATE outbox_events SET published_at = $2 WHERE id = $1`

	if _, err := r.ext.ExecContext(ctx, query, eventID, publishedAt); err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}

	return nil
}

// MarkFailed settles a claimed row as failed, keeping the row in place
// for the next attempt or, once attempts run out, for the dead letter
// review queue.
func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID uuid.UUID, lastError string) error {
	query := `
		UPDATE outbox_events
		SET attempt_count = attempt_count + 1, last_error = $2
		WHERE id = $1
	`

	if _, err := r.ext.ExecContext(ctx, query, eventID, lastError); err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}

	return nil
}

// ListDeadLetter retrieves unpublished rows that have exhausted their
// attempts, oldest first.
func (r *OutboxRepository) ListDeadLetter(ctx context.Context, maxAttempts, limit, offset int) ([]*entities.OutboxEvent, int64, error) {
	countQuery := `
		SELECT COUNT(*)
		FROM outbox_events
		WHERE published_at IS NULL AND attempt_count >= $1
	`

	var total int64
	if err := sqlx.GetContext(ctx, r.ext, &total, countQuery, maxAttempts); err != nil {
		return nil, 0, fmt.Errorf("count dead letter events: %w", err)
	}

	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_events
		WHERE published_at IS NULL AND attempt_count >= $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`

	var events []*entities.OutboxEvent
	if err := sqlx.SelectContext(ctx, r.ext, &events, query, maxAttempts, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list dead letter events: %w", err)
	}

	return events, total, nil
}

// Requeue resets a dead letter row so the relay picks it up again.
// Returns false when the row does not exist or was already published.
func (r *OutboxRepository) Requeue(ctx context.Context, eventID uuid.UUID) (bool, error) {
	query := `
		UPDATE outbox_events
		SET attempt_count = 0, last_error = NULL
		WHERE id = $1 AND published_at IS NULL
	`

	result, err := r.ext.ExecContext(ctx, query, eventID)
	if err != nil {
		return false, fmt.Errorf("requeue outbox event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CountPending counts rows still waiting for delivery, dead letters
// included.
func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL`

	var count int64
	if err := sqlx.GetContext(ctx, r.ext, &count, query); err != nil {
		return 0, fmt.Errorf("count pending outbox events: %w", err)
	}

	return count, nil
}
