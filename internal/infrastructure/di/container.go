// Package di wires the dependency graph. Everything is constructed
// eagerly at startup so misconfiguration fails the boot, not the first
// request.
package di

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	accountsvc "github.com/ledgerd/ledgerd/internal/domain/services/account"
	"github.com/ledgerd/ledgerd/internal/domain/services/reconciliation"
	"github.com/ledgerd/ledgerd/internal/domain/services/statement"
	transfersvc "github.com/ledgerd/ledgerd/internal/domain/services/transfer"
	"github.com/ledgerd/ledgerd/internal/infrastructure/cache"
	"github.com/ledgerd/ledgerd/internal/infrastructure/config"
	"github.com/ledgerd/ledgerd/internal/infrastructure/database"
	"github.com/ledgerd/ledgerd/internal/infrastructure/repositories"
	"github.com/ledgerd/ledgerd/internal/workers/maintenance"
	"github.com/ledgerd/ledgerd/internal/workers/outbox"
	"github.com/ledgerd/ledgerd/pkg/logger"
	"github.com/ledgerd/ledgerd/pkg/ratelimit"
)

// Container holds all wired application components
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	TxManager *database.TxManager

	AccountRepo     *repositories.AccountRepository
	TransferRepo    *repositories.TransferRepository
	LedgerRepo      *repositories.LedgerRepository
	OutboxRepo      *repositories.OutboxRepository
	IdempotencyRepo *repositories.IdempotencyRepository

	AccountService        *accountsvc.Service
	TransferService       *transfersvc.Service
	StatementService      *statement.Service
	ReconciliationService *reconciliation.Service

	RateLimiter ratelimit.Limiter

	OutboxProcessor   *outbox.Processor
	MaintenanceWorker *maintenance.Worker
}

// New builds the full dependency graph
func New(cfg *config.Config, log *logger.Logger, db *sqlx.DB) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: log,
		DB:     db,
	}

	c.TxManager = database.NewTxManager(db, log)

	c.AccountRepo = repositories.NewAccountRepository(db)
	c.TransferRepo = repositories.NewTransferRepository(db)
	c.LedgerRepo = repositories.NewLedgerRepository(db)
	c.OutboxRepo = repositories.NewOutboxRepository(db)
	c.IdempotencyRepo = repositories.NewIdempotencyRepository(db, log.Zap())

	coordinator := accountsvc.NewCoordinator(c.AccountRepo)

	c.AccountService = accountsvc.NewService(c.TxManager, c.AccountRepo, c.LedgerRepo, c.OutboxRepo, log)
	c.TransferService = transfersvc.NewService(c.TxManager, c.TransferRepo, c.AccountRepo, c.LedgerRepo, c.OutboxRepo, coordinator, log)
	c.StatementService = statement.NewService(c.AccountRepo, c.LedgerRepo)
	c.ReconciliationService = reconciliation.NewService(c.LedgerRepo, log, reconciliation.Config{
		PageSize: cfg.Reconciliation.PageSize,
	})

	// Redis is optional. Without it the per-replica in-process limiter
	// takes over.
	if rdb, err := cache.NewRedisClient(&cfg.Redis, log); err != nil {
		log.Warn("Redis unavailable, using in-process rate limiter", "error", err)
		c.RateLimiter = ratelimit.NewLocalLimiter(cfg.Server.RateLimitPerMin)
	} else {
		c.Redis = rdb
		c.RateLimiter = ratelimit.NewSlidingWindowLimiter(rdb, int64(cfg.Server.RateLimitPerMin), time.Minute, log)
	}

	c.OutboxProcessor = outbox.NewProcessor(
		outbox.Config{
			Workers:      cfg.Outbox.Workers,
			PollInterval: time.Duration(cfg.Outbox.PollInterval) * time.Second,
			BatchSize:    cfg.Outbox.BatchSize,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
		},
		db,
		c.OutboxRepo,
		outbox.NewLogPublisher(log),
		log,
	)

	c.MaintenanceWorker = maintenance.NewWorker(
		maintenance.Config{
			PurgeSchedule:     cfg.Maintenance.PurgeSchedule,
			ReconcileSchedule: cfg.Maintenance.ReconcileSchedule,
			JobTimeout:        time.Duration(cfg.Maintenance.JobTimeout) * time.Second,
			ReconcileEnabled:  cfg.Reconciliation.Enabled,
		},
		c.IdempotencyRepo,
		c.ReconciliationService,
		log,
	)

	return c, nil
}

// Close releases held connections
func (c *Container) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
