// Package routes assembles the gin engine: the global middleware
// chain, the public API surface and the operator surface.
package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ledgerd/ledgerd/internal/api/handlers"
	"github.com/ledgerd/ledgerd/internal/api/handlers/admin"
	"github.com/ledgerd/ledgerd/internal/api/middleware"
	"github.com/ledgerd/ledgerd/internal/infrastructure/di"
	"github.com/ledgerd/ledgerd/pkg/idempotency"
	"github.com/ledgerd/ledgerd/pkg/metrics"
	"github.com/ledgerd/ledgerd/pkg/tracing"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	router := gin.New()

	// Global middleware, order matters: tracing and correlation first
	// so every later stage logs under the same identity.
	router.Use(tracing.HTTPMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(metrics.Middleware())
	router.Use(middleware.RequestSizeLimit(container.Config.Server.MaxBodyBytes))
	router.Use(middleware.ContentType())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.CORS(container.Config.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(container.RateLimiter))
	router.Use(middleware.SecurityHeaders())

	coreHandlers := handlers.NewCoreHandlers(container.DB, container.Logger)
	accountHandlers := handlers.NewAccountHandlers(
		container.AccountService,
		container.TransferService,
		container.StatementService,
		container.Logger,
	)
	transferHandlers := handlers.NewTransferHandlers(container.TransferService, container.Logger)
	adminHandlers := admin.NewHandlers(
		container.OutboxRepo,
		container.ReconciliationService,
		container.IdempotencyRepo,
		container.Config.Outbox.MaxAttempts,
		container.Logger,
	)

	idempotencyConfig := idempotency.Config{
		TTL:         time.Duration(container.Config.Idempotency.TTLHours) * time.Hour,
		LockTimeout: time.Duration(container.Config.Idempotency.LockTimeoutSeconds) * time.Second,
	}
	requireKey := idempotency.Middleware(container.IdempotencyRepo, container.TxManager, idempotencyConfig, container.Logger, true)
	optionalKey := idempotency.Middleware(container.IdempotencyRepo, container.TxManager, idempotencyConfig, container.Logger, false)

	// Health checks, no auth required
	router.GET("/health", coreHandlers.Health)
	router.GET("/ready", coreHandlers.Ready)
	router.GET("/live", coreHandlers.Live)
	router.GET("/version", coreHandlers.Version)
	router.GET("/metrics", handlers.Metrics())

	// Swagger documentation, development only
	if container.Config.Environment != "production" {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := router.Group("/api/v1")
	{
		accounts := v1.Group("/accounts")
		{
			accounts.POST("", requireKey, accountHandlers.Create)
			accounts.GET("/:id", accountHandlers.Get)
			accounts.POST("/:id/freeze", accountHandlers.Freeze)
			accounts.POST("/:id/unfreeze", accountHandlers.Unfreeze)
			accounts.POST("/:id/close", accountHandlers.Close)
			accounts.GET("/:id/transfers", accountHandlers.ListTransfers)
			accounts.GET("/:id/statement", accountHandlers.Statement)
		}

		transfers := v1.Group("/transfers")
		{
			transfers.POST("", requireKey, transferHandlers.Create)
			transfers.GET("", transferHandlers.List)
			transfers.GET("/:id", transferHandlers.Get)
			transfers.POST("/:id/reverse", optionalKey, transferHandlers.Reverse)
		}

		adminGroup := v1.Group("/admin", middleware.OperatorAuth(container.Config.Auth.OperatorSecret))
		{
			adminGroup.GET("/outbox/dead-letter", adminHandlers.ListDeadLetter)
			adminGroup.POST("/outbox/dead-letter/:id/requeue", adminHandlers.RequeueEvent)
			adminGroup.POST("/reconciliation/run", adminHandlers.RunReconciliation)
			adminGroup.GET("/idempotency/stats", adminHandlers.IdempotencyStats)
		}
	}

	return router
}
