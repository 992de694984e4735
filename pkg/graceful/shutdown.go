package graceful

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ledgerd/ledgerd/pkg/logger"
)

// Shutdowner is implemented by background components (outbox workers,
// schedulers) that need an orderly stop.
type Shutdowner interface {
	Shutdown(timeout time.Duration) error
}

// ShutdownManager stops the process in dependency order: HTTP intake
// first, then background workers, then the database pool.
type ShutdownManager struct {
	server      *http.Server
	db          *sqlx.DB
	shutdowners []Shutdowner
	cleanups    []func(context.Context) error
	logger      *logger.Logger
}

func NewShutdownManager(server *http.Server, db *sqlx.DB, logger *logger.Logger) *ShutdownManager {
	return &ShutdownManager{
		server:      server,
		db:          db,
		shutdowners: make([]Shutdowner, 0),
		logger:      logger,
	}
}

// Register adds a background component to stop after the HTTP server
// has drained.
func (sm *ShutdownManager) Register(s Shutdowner) {
	sm.shutdowners = append(sm.shutdowners, s)
}

// RegisterCleanup adds a final cleanup hook (tracer flush, client close).
func (sm *ShutdownManager) RegisterCleanup(fn func(context.Context) error) {
	sm.cleanups = append(sm.cleanups, fn)
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then runs the shutdown
// sequence with a 30 second budget.
func (sm *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	sm.logger.Info("Shutting down", "signal", sig.String())

	timeout := 30 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting requests and drain in-flight ones. Transactions in
	// progress either commit or roll back whole; nothing is cut mid-commit.
	if err := sm.server.Shutdown(ctx); err != nil {
		sm.logger.Error("Server forced shutdown", "error", err)
	}

	workerBudget := timeout / 2
	for _, s := range sm.shutdowners {
		if err := s.Shutdown(workerBudget); err != nil {
			sm.logger.Warn("Component shutdown error", "error", err)
		}
	}

	for _, fn := range sm.cleanups {
		if err := fn(ctx); err != nil {
			sm.logger.Warn("Cleanup error", "error", err)
		}
	}

	if err := sm.db.Close(); err != nil {
		sm.logger.Warn("Database close error", "error", err)
	}

	sm.logger.Info("Shutdown complete")
}
