// Package outbox relays committed domain events from the outbox table
// to the downstream transport. Competing workers claim batches with
// SKIP LOCKED, so delivery is at-least-once and consumers must
// deduplicate on event id.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ledgerd/ledgerd/internal/domain/entities"
	"github.com/ledgerd/ledgerd/internal/domain/repositories"
	"github.com/ledgerd/ledgerd/pkg/logger"
	"github.com/ledgerd/ledgerd/pkg/metrics"
	"github.com/ledgerd/ledgerd/pkg/tracing"
)

// Config holds configuration for the outbox processor
type Config struct {
	Workers      int
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		PollInterval: 5 * time.Second,
		BatchSize:    50,
		MaxAttempts:  5,
	}
}

// Processor polls the outbox and pushes events through the publisher
type Processor struct {
	config     Config
	db         *sqlx.DB
	outboxRepo repositories.OutboxRepository
	publisher  Publisher
	logger     *logger.Logger

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// NewProcessor creates a new outbox processor
func NewProcessor(
	config Config,
	db *sqlx.DB,
	outboxRepo repositories.OutboxRepository,
	publisher Publisher,
	logger *logger.Logger,
) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		config:         config,
		db:             db,
		outboxRepo:     outboxRepo,
		publisher:      publisher,
		logger:         logger,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Start begins relaying outbox events
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("Starting outbox processor",
		"workers", p.config.Workers,
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	return nil
}

// Shutdown gracefully stops the processor
func (p *Processor) Shutdown(timeout time.Duration) error {
	p.logger.Info("Shutting down outbox processor", "timeout", timeout)

	p.shutdownCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Outbox processor shutdown complete")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

// worker polls for batches until shutdown
func (p *Processor) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	p.logger.Info("Outbox worker started", "worker_id", workerID)
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox worker stopping", "worker_id", workerID)
			return
		case <-p.shutdownCtx.Done():
			p.logger.Info("Outbox worker stopping due to shutdown", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain until the table is quiet so a burst does not wait a
			// poll interval per batch.
			for {
				n, err := p.processBatch(ctx, workerID)
				if err != nil {
					p.logger.Error("Outbox batch failed", "error", err, "worker_id", workerID)
					break
				}
				if n < p.config.BatchSize {
					break
				}
			}
		}
	}
}

// processBatch claims one batch and settles every claimed row inside
// the claiming transaction. The row locks double as the delivery lease:
// a crash before commit returns the whole batch to the pool untouched.
func (p *Processor) processBatch(ctx context.Context, workerID int) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "outbox.batch")
	defer span.End()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	repo := p.outboxRepo.WithTx(tx)

	events, err := repo.ClaimBatch(ctx, p.config.BatchSize, p.config.MaxAttempts)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	p.logger.Debug("Claimed outbox batch", "worker_id", workerID, "event_count", len(events))

	for _, event := range events {
		if err := p.settle(ctx, repo, event); err != nil {
			// A settle failure means the batch state is unknowable;
			// roll everything back and let the next poll retry.
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox batch: %w", err)
	}

	return len(events), nil
}

func (p *Processor) settle(ctx context.Context, repo repositories.OutboxRepository, event *entities.OutboxEvent) error {
	if err := p.publisher.Publish(ctx, event); err != nil {
		metrics.OutboxFailedTotal.Inc()

		if markErr := repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			return fmt.Errorf("mark outbox event failed: %w", markErr)
		}

		// AttemptCount is the pre-claim value; this failure is attempt
		// AttemptCount+1.
		if event.AttemptCount+1 >= p.config.MaxAttempts {
			metrics.OutboxDeadLetterTotal.Inc()
			p.logger.Critical("Outbox event dead lettered",
				"event_id", event.ID,
				"event_type", event.EventType,
				"aggregate_id", event.AggregateID,
				"attempts", event.AttemptCount+1,
				"error", err)
		} else {
			p.logger.Warn("Outbox event publish failed",
				"event_id", event.ID,
				"event_type", event.EventType,
				"attempt", event.AttemptCount+1,
				"error", err)
		}
		return nil
	}

	if err := repo.MarkPublished(ctx, event.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}

	metrics.OutboxPublishedTotal.Inc()
	return nil
}
