package entities

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is a durable message written in the same transaction as
// the business change it describes, delivered asynchronously by the
// outbox processor.
type OutboxEvent struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id" db:"aggregate_id"`
	EventType     string          `json:"event_type" db:"event_type"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	OccurredAt    time.Time       `json:"occurred_at" db:"occurred_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	PublishedAt   *time.Time      `json:"published_at,omitempty" db:"published_at"`
	AttemptCount  int             `json:"attempt_count" db:"attempt_count"`
	LastError     *string         `json:"last_error,omitempty" db:"last_error"`
}

// NewOutboxEvent serializes a domain event into its outbox row.
func NewOutboxEvent(aggregateID uuid.UUID, event DomainEvent) (*OutboxEvent, error) {
	payload, err := SerializeEvent(event)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:            NewID(),
		AggregateType: event.AggregateType(),
		AggregateID:   aggregateID,
		EventType:     event.EventType(),
		Payload:       payload,
		OccurredAt:    event.OccurredOn(),
		CreatedAt:     nowUTC(),
	}, nil
}

// IsPublished reports whether the event has been delivered.
func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// IsDeadLetter reports whether the event has exhausted its attempts.
func (e *OutboxEvent) IsDeadLetter(maxAttempts int) bool {
	return !e.IsPublished() && e.AttemptCount >= maxAttempts
}
