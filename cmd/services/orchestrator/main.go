package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schemafleet/schemafleet/internal/credential"
	"github.com/schemafleet/schemafleet/internal/orchestrator/adapters/http/handlers"
	"github.com/schemafleet/schemafleet/internal/orchestrator/adapters/repository/postgres"
	"github.com/schemafleet/schemafleet/internal/orchestrator/app/service"
	"github.com/schemafleet/schemafleet/internal/orchestrator/flyway"
	"github.com/schemafleet/schemafleet/internal/orchestrator/probe"
	"github.com/schemafleet/schemafleet/internal/orchestrator/server"
	"github.com/schemafleet/schemafleet/internal/platform/config"
	"github.com/schemafleet/schemafleet/internal/platform/database"
	"github.com/schemafleet/schemafleet/internal/platform/health"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
	"github.com/schemafleet/schemafleet/internal/platform/messaging/kafka"
	"github.com/schemafleet/schemafleet/internal/platform/metrics"
	"github.com/schemafleet/schemafleet/internal/platform/telemetry"
)

func main() {
	cfg, err := config.Load("orchestrator")
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg.Logger)
	log.Info("Starting Migration Orchestrator", "version", cfg.Version, "port", cfg.HTTP.Port)

	// Initialize admin database
	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to admin database", "error", err)
	}
	defer db.Close()

	// Initialize telemetry
	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		MetricsEnabled: cfg.Telemetry.MetricsEnabled,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		log.Fatal("failed to initialize telemetry", "error", err)
	}
	defer tel.Close()

	m := metrics.NewMetrics("schemafleet_orchestrator")

	// Initialize repositories
	batchRepo := postgres.NewBatchRepository(db)
	rollbackRepo := postgres.NewRollbackRepository(db)
	connectionRepo := postgres.NewConnectionRepository(db)

	ctx := context.Background()
	if err := batchRepo.(*postgres.BatchRepository).EnsureTables(ctx); err != nil {
		log.Error("failed to ensure batch tables", "error", err)
	}
	if err := rollbackRepo.(*postgres.RollbackRepository).EnsureTable(ctx); err != nil {
		log.Error("failed to ensure rollback table", "error", err)
	}

	// Credential encryption; plan building degrades gracefully without it
	var decryptor service.PasswordDecryptor
	if cfg.Encryption.Key != "" {
		encryptor, err := credential.NewEncryptor(&credential.EncryptionConfig{
			Key:        cfg.Encryption.Key,
			KeyType:    cfg.Encryption.KeyType,
			Salt:       cfg.Encryption.Salt,
			Iterations: cfg.Encryption.Iterations,
		})
		if err != nil {
			log.Fatal("failed to initialize credential encryptor", "error", err)
		}
		decryptor = encryptor
	} else {
		log.Warn("no encryption key configured, encrypted passwords will fall back")
	}

	// Wire the orchestration services
	credentials := service.NewCredentialResolver(decryptor, cfg.Orchestrator.DefaultTargetPassword, log)
	planner := service.NewPlanner(connectionRepo, credentials, cfg.Orchestrator.RollbackOnFailure, log)
	resolver := service.NewDependencyResolver(cfg.Flyway.MigrationsDir)
	prober := probe.New(cfg.Orchestrator.PrecheckTimeout, log)
	runner := flyway.NewRunner(cfg.Flyway.Binary, cfg.Flyway.CommandTimeout, log)
	tracker := service.NewBatchTracker(batchRepo, log)
	rollback := service.NewRollbackCoordinator(prober, rollbackRepo, m, log)

	execOpts := []service.ExecutorOption{
		service.WithMetrics(m),
		service.WithTracer(tel.Tracer()),
	}

	// Batch lifecycle events are optional; run without Kafka if unavailable
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := kafka.NewEventPublisher(&kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, log)
		if err != nil {
			log.Warn("failed to connect to kafka, batch events disabled", "error", err)
		} else {
			defer publisher.Close()
			execOpts = append(execOpts, service.WithEventPublisher(publisher))
		}
	}

	executor := service.NewExecutor(
		resolver, prober, runner, tracker, rollback,
		cfg.Orchestrator.ExecutedBy, log, execOpts...,
	)

	handler := handlers.NewOrchestratorHandler(planner, executor, batchRepo, rollbackRepo, log)

	healthHandler := health.NewHandler("orchestrator", cfg.Version)
	healthHandler.AddCheck("admin_database", health.DatabaseChecker(db.HealthCheck))
	healthHandler.AddCheck("flyway_binary", health.BinaryChecker(cfg.Flyway.Binary))

	srv, err := server.New(
		server.WithConfig(cfg),
		server.WithLogger(log),
		server.WithHealth(healthHandler),
		server.WithMetrics(m),
		server.WithHandler(handler),
	)
	if err != nil {
		log.Fatal("failed to create server", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("server error", "error", err)
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	log.Info("Migration Orchestrator stopped gracefully")
}
