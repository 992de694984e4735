package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ledgerd/ledgerd/internal/api/routes"
	"github.com/ledgerd/ledgerd/internal/infrastructure/config"
	"github.com/ledgerd/ledgerd/internal/infrastructure/database"
	"github.com/ledgerd/ledgerd/internal/infrastructure/di"
	"github.com/ledgerd/ledgerd/pkg/graceful"
	"github.com/ledgerd/ledgerd/pkg/logger"
	"github.com/ledgerd/ledgerd/pkg/tracing"
	"github.com/ledgerd/ledgerd/pkg/version"
)

// @title Ledgerd Transfer API
// @version 1.0
// @description Double entry fund transfer service with idempotent writes and a transactional outbox.

// @contact.name Ledgerd Team

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Operator bearer token for the admin surface.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ledgerd",
		"version", version.Get().Version,
		"environment", cfg.Environment)

	ctx := context.Background()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		Enabled:      cfg.Telemetry.TracingEnabled,
		CollectorURL: cfg.Telemetry.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Telemetry.SampleRate,
		Insecure:     cfg.Telemetry.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := di.New(cfg, log, db)
	if err != nil {
		log.Fatal("Failed to build dependency container", "error", err)
	}

	router := routes.SetupRoutes(container)

	if err := container.OutboxProcessor.Start(ctx); err != nil {
		log.Fatal("Failed to start outbox processor", "error", err)
	}

	if cfg.Maintenance.Enabled {
		if err := container.MaintenanceWorker.Start(); err != nil {
			log.Fatal("Failed to start maintenance worker", "error", err)
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	shutdown := graceful.NewShutdownManager(server, db, log)
	shutdown.Register(container.OutboxProcessor)
	if cfg.Maintenance.Enabled {
		shutdown.RegisterCleanup(func(context.Context) error {
			container.MaintenanceWorker.Stop(10 * time.Second)
			return nil
		})
	}
	if container.Redis != nil {
		shutdown.RegisterCleanup(func(context.Context) error {
			return container.Redis.Close()
		})
	}
	shutdown.RegisterCleanup(tracerShutdown)

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", "error", err)
		}
	}()

	shutdown.WaitForShutdown()
}
