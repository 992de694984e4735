package outbox

import (
	"context"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	"github.com/ledgerd/ledgerd/pkg/logger"
)

// Publisher delivers one outbox event to the downstream transport. An
// error return leaves the row unpublished for the next attempt.
type Publisher interface {
	Publish(ctx context.Context, event *entities.OutboxEvent) error
}

// LogPublisher writes each event to the structured log. It stands in
// for a broker transport; swapping in a real one is a Publisher away.
type LogPublisher struct {
	logger *logger.Logger
}

// NewLogPublisher creates a publisher that emits events to the log
func NewLogPublisher(logger *logger.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event payload
func (p *LogPublisher) Publish(_ context.Context, event *entities.OutboxEvent) error {
	p.logger.Info("Publishing domain event",
		"event_id", event.ID,
		"event_type", event.EventType,
		"aggregate_type", event.AggregateType,
		"aggregate_id", event.AggregateID,
		"occurred_at", event.OccurredAt,
		"payload", string(event.Payload))
	return nil
}
