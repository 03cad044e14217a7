package service

import (
	"context"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/repository"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
	"github.com/schemafleet/schemafleet/internal/platform/metrics"
)

const rollbackReason = "migration failure in batch"

// RollbackCoordinator walks the rollback candidate set after a failed
// run. The deployed tool edition cannot undo applied SQL migrations, so
// the coordinator records rollback intent instead of executing one;
// operators remediate schemas marked success in a failed batch manually.
type RollbackCoordinator struct {
	prober    TargetProber
	rollbacks repository.RollbackRepository
	metrics   *metrics.Metrics
	log       logger.Logger
}

// NewRollbackCoordinator creates a rollback coordinator; metrics may be nil
func NewRollbackCoordinator(prober TargetProber, rollbacks repository.RollbackRepository, m *metrics.Metrics, log logger.Logger) *RollbackCoordinator {
	return &RollbackCoordinator{
		prober:    prober,
		rollbacks: rollbacks,
		metrics:   m,
		log:       log,
	}
}

// Rollback iterates the completed migrations most-recently-succeeded
// first and records one rollback-intent row per entry. A failed insert
// is logged per entry and never prevents the remaining entries.
func (c *RollbackCoordinator) Rollback(ctx context.Context, batchID string, completed []model.CompletedMigration) {
	c.log.Info("recording rollback intent", "batch_id", batchID, "entries", len(completed))

	for i := len(completed) - 1; i >= 0; i-- {
		entry := completed[i]

		version := c.prober.CurrentVersion(ctx, entry.Config, entry.Schema)
		if version == "" {
			c.log.Info("nothing to roll back",
				"database", entry.Config.DatabaseName, "schema", entry.Schema)
			continue
		}

		record := model.NewRollback(batchID, entry, version, rollbackReason)
		if err := c.rollbacks.CreateRollback(ctx, record); err != nil {
			c.log.Error("failed to record rollback intent",
				"database", entry.Config.DatabaseName, "schema", entry.Schema, "error", err)
			continue
		}

		if c.metrics != nil {
			c.metrics.RollbacksRecorded.Inc()
		}
		c.log.Warn("rollback recorded as logged_only, manual remediation required",
			"database", entry.Config.DatabaseName, "schema", entry.Schema, "version", version)
	}
}
