package service

import (
	"context"
	"fmt"
	"time"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/flyway"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
	"github.com/schemafleet/schemafleet/internal/platform/metrics"
	"github.com/schemafleet/schemafleet/internal/shared/events"
	"go.opentelemetry.io/otel/trace"
)

// TargetProber gates migration attempts on target reachability and
// inspects per-schema migration versions.
type TargetProber interface {
	TestConnection(ctx context.Context, cfg *model.MigrationConfig) bool
	CurrentVersion(ctx context.Context, cfg *model.MigrationConfig, schema string) string
}

// ToolRunner invokes the external migration tool
type ToolRunner interface {
	MigrationsExist(location string) bool
	Run(ctx context.Context, cfg flyway.Config, verb flyway.Verb) (*flyway.RunResult, error)
}

// EventPublisher publishes batch lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, event *events.Event) error
}

// Executor walks a migration plan phase by phase: regional databases
// first, then tenants, each database sequentially and each schema in
// dependency order. There is no parallel migration inside one run.
type Executor struct {
	resolver   *DependencyResolver
	prober     TargetProber
	runner     ToolRunner
	tracker    *BatchTracker
	rollback   *RollbackCoordinator
	events     EventPublisher
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	executedBy string
	log        logger.Logger
}

// ExecutorOption configures optional executor collaborators
type ExecutorOption func(*Executor)

// WithEventPublisher attaches a batch lifecycle event publisher
func WithEventPublisher(p EventPublisher) ExecutorOption {
	return func(e *Executor) { e.events = p }
}

// WithMetrics attaches Prometheus metrics
func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithTracer attaches an OpenTelemetry tracer
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// NewExecutor creates a migration executor
func NewExecutor(
	resolver *DependencyResolver,
	prober TargetProber,
	runner ToolRunner,
	tracker *BatchTracker,
	rollback *RollbackCoordinator,
	executedBy string,
	log logger.Logger,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		resolver:   resolver,
		prober:     prober,
		runner:     runner,
		tracker:    tracker,
		rollback:   rollback,
		executedBy: executedBy,
		log:        log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the plan. It returns the batch id for real runs; dry
// runs persist nothing and return an empty id. On failure with rollback
// enabled the run aborts immediately, the rollback coordinator records
// intent for every completed (database, schema) pair, and the batch is
// finalized as failed.
func (e *Executor) Execute(ctx context.Context, plan *model.MigrationPlan, dryRun bool) (string, error) {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "migration.execute")
		defer span.End()
	}

	if plan.AdminConfig != nil {
		// Phase 1: the admin database is classified but handled by the
		// bootstrap path, never by this dynamic flow.
		e.log.Info("skipping admin database, handled separately",
			"database", plan.AdminConfig.DatabaseName)
	}

	var batch *model.MigrationBatch
	if !dryRun {
		b, err := e.tracker.CreateBatch(ctx, plan, e.executedBy)
		if err != nil {
			return "", fmt.Errorf("failed to create migration batch: %w", err)
		}
		batch = b

		if e.metrics != nil {
			e.metrics.BatchesStarted.Inc()
		}
		e.publish(ctx, batch.ID, events.EventTypeBatchStarted, events.BatchStarted{
			BatchID:         batch.ID,
			TotalOperations: batch.TotalOperations,
			DatabaseCount:   batch.DatabaseCount,
			ExecutedBy:      batch.ExecutedBy,
			StartedAt:       batch.StartedAt,
		})
	}

	runErr := e.runPhases(ctx, plan, dryRun, batch)

	if dryRun {
		return "", runErr
	}

	if runErr != nil {
		if plan.RollbackOnFailure {
			e.rollback.Rollback(ctx, batch.ID, plan.CompletedMigrations)
		}
		e.tracker.Finalize(ctx, batch.ID, model.BatchStatusFailed, runErr.Error())

		if e.metrics != nil {
			e.metrics.BatchesFailed.Inc()
			e.metrics.BatchDuration.Observe(time.Since(batch.StartedAt).Seconds())
		}
		e.publish(ctx, batch.ID, events.EventTypeBatchFailed, events.BatchFailed{
			BatchID:          batch.ID,
			Error:            runErr.Error(),
			RollbacksPlanned: len(plan.CompletedMigrations),
			FailedAt:         time.Now().UTC(),
		})

		return batch.ID, runErr
	}

	e.tracker.Finalize(ctx, batch.ID, model.BatchStatusCompleted, "")

	if e.metrics != nil {
		e.metrics.BatchesCompleted.Inc()
		e.metrics.BatchDuration.Observe(time.Since(batch.StartedAt).Seconds())
	}
	e.publish(ctx, batch.ID, events.EventTypeBatchCompleted, events.BatchCompleted{
		BatchID:         batch.ID,
		TotalOperations: batch.TotalOperations,
		CompletedAt:     time.Now().UTC(),
	})

	return batch.ID, nil
}

func (e *Executor) runPhases(ctx context.Context, plan *model.MigrationPlan, dryRun bool, batch *model.MigrationBatch) error {
	// Phase 2: regional (shared and analytics) databases, sequential
	e.log.Info("starting regional phase", "databases", len(plan.RegionalConfigs), "dry_run", dryRun)
	for _, cfg := range plan.RegionalConfigs {
		if ok := e.migrateDatabase(ctx, cfg, dryRun, batch, plan); !ok && plan.RollbackOnFailure {
			return fmt.Errorf("migration failed for regional database %s", cfg.DatabaseName)
		}
	}

	// Phase 3: tenant databases, sequential with progress reporting
	e.log.Info("starting tenant phase", "databases", len(plan.TenantConfigs), "dry_run", dryRun)
	for i, cfg := range plan.TenantConfigs {
		e.log.Info("migrating tenant database",
			"database", cfg.DatabaseName,
			"progress", fmt.Sprintf("%d/%d", i+1, len(plan.TenantConfigs)))
		if ok := e.migrateDatabase(ctx, cfg, dryRun, batch, plan); !ok && plan.RollbackOnFailure {
			return fmt.Errorf("migration failed for tenant database %s", cfg.DatabaseName)
		}
	}

	return nil
}

// migrateDatabase runs the ordered schema list for one database. It
// returns true only if every schema succeeded; a failed schema halts
// the remaining schemas so a dependent never runs after its
// prerequisite failed.
func (e *Executor) migrateDatabase(ctx context.Context, cfg *model.MigrationConfig, dryRun bool, batch *model.MigrationBatch, plan *model.MigrationPlan) bool {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "migration.database")
		defer span.End()
	}

	if !e.prober.TestConnection(ctx, cfg) {
		e.log.Error("connectivity pre-check failed",
			"database", cfg.DatabaseName, "host", cfg.Host)
		if !dryRun {
			e.tracker.RecordFailure(ctx, batch, cfg, "pre-flight", "connectivity pre-check failed")
		}
		if e.metrics != nil {
			e.metrics.PrecheckFailures.WithLabelValues(string(cfg.Type)).Inc()
		}
		return false
	}

	steps := e.resolver.Order(cfg)

	for _, step := range steps {
		if !dryRun && !e.runner.MigrationsExist(step.Tool.Location) {
			e.log.Error("no migration files found",
				"database", cfg.DatabaseName, "schema", step.Schema, "location", step.Tool.Location)
			e.tracker.RecordFailure(ctx, batch, cfg, step.Schema,
				fmt.Sprintf("no migration files at %s", step.Tool.Location))
			e.recordSchemaMetric(cfg, "failed")
			return false
		}

		verb := flyway.VerbMigrate
		if dryRun {
			verb = flyway.VerbInfo
		}

		result, err := e.runner.Run(ctx, step.Tool, verb)
		if err != nil {
			e.log.Error("schema migration failed",
				"database", cfg.DatabaseName, "schema", step.Schema, "error", err)
			if !dryRun {
				e.tracker.RecordFailure(ctx, batch, cfg, step.Schema, err.Error())
				e.recordSchemaMetric(cfg, "failed")
			}
			return false
		}

		e.log.Info("schema migrated",
			"database", cfg.DatabaseName, "schema", step.Schema,
			"applied", result.Applied, "dry_run", dryRun)

		if !dryRun {
			e.tracker.RecordSuccess(ctx, batch, cfg, step.Schema, result.Applied)
			plan.Complete(cfg, step.Schema)

			if e.metrics != nil {
				e.metrics.MigrationsApplied.Add(float64(result.Applied))
				e.metrics.SchemaMigrationDuration.WithLabelValues(string(cfg.Type)).
					Observe(result.Duration.Seconds())
			}
			e.recordSchemaMetric(cfg, "success")
		}
	}

	return true
}

func (e *Executor) recordSchemaMetric(cfg *model.MigrationConfig, status string) {
	if e.metrics != nil {
		e.metrics.SchemaMigrationsTotal.WithLabelValues(status, string(cfg.Type)).Inc()
	}
}

// publish sends a batch lifecycle event; publishing is best-effort and
// never affects the batch outcome.
func (e *Executor) publish(ctx context.Context, batchID, eventType string, payload interface{}) {
	if e.events == nil {
		return
	}

	event, err := events.NewEvent(batchID, "migration_batch", eventType, payload)
	if err != nil {
		e.log.Warn("failed to build batch event", "type", eventType, "error", err)
		return
	}

	if err := e.events.Publish(ctx, event); err != nil {
		e.log.Warn("failed to publish batch event", "type", eventType, "error", err)
		return
	}

	if e.metrics != nil {
		e.metrics.EventsPublished.WithLabelValues(eventType).Inc()
	}
}
