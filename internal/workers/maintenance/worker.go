// Package maintenance runs the scheduled housekeeping jobs: purging
// expired idempotency records and the periodic reconciliation sweep.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ledgerd/ledgerd/internal/domain/repositories"
	"github.com/ledgerd/ledgerd/internal/domain/services/reconciliation"
	"github.com/ledgerd/ledgerd/pkg/logger"
)

// Config holds the cron schedules and the per-job timeout
type Config struct {
	PurgeSchedule     string
	ReconcileSchedule string
	JobTimeout        time.Duration
	ReconcileEnabled  bool
}

// Worker owns the cron scheduler for background maintenance
type Worker struct {
	config            Config
	idempotencyStore  repositories.IdempotencyStore
	reconciliationSvc *reconciliation.Service
	cron              *cron.Cron
	logger            *logger.Logger
}

// NewWorker creates a new maintenance worker
func NewWorker(
	config Config,
	idempotencyStore repositories.IdempotencyStore,
	reconciliationSvc *reconciliation.Service,
	logger *logger.Logger,
) *Worker {
	return &Worker{
		config:            config,
		idempotencyStore:  idempotencyStore,
		reconciliationSvc: reconciliationSvc,
		cron:              cron.New(),
		logger:            logger,
	}
}

// Start registers the jobs and starts the scheduler
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.config.PurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.JobTimeout)
		defer cancel()

		deleted, err := w.idempotencyStore.DeleteExpired(ctx)
		if err != nil {
			w.logger.Error("Failed to purge expired idempotency records", "error", err)
			return
		}
		if deleted > 0 {
			w.logger.Info("Purged expired idempotency records", "deleted", deleted)
		}
	})
	if err != nil {
		return err
	}

	if w.config.ReconcileEnabled {
		_, err = w.cron.AddFunc(w.config.ReconcileSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), w.config.JobTimeout)
			defer cancel()

			if _, err := w.reconciliationSvc.Run(ctx, "scheduled"); err != nil {
				w.logger.Error("Scheduled reconciliation run failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
	}

	w.cron.Start()
	w.logger.Info("Maintenance worker started",
		"purge_schedule", w.config.PurgeSchedule,
		"reconcile_schedule", w.config.ReconcileSchedule,
		"reconcile_enabled", w.config.ReconcileEnabled)
	return nil
}

// Stop halts the scheduler and waits for running jobs up to timeout
func (w *Worker) Stop(timeout time.Duration) {
	ctx := w.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
		w.logger.Warn("Maintenance jobs still running at shutdown deadline")
	}
	w.logger.Info("Maintenance worker stopped")
}
