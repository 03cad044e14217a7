package service

import (
	"context"
	"time"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/repository"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
)

// maxErrorLength bounds error text before persistence
const maxErrorLength = 2000

// BatchTracker records batch and per-(database, schema) outcomes. A
// bookkeeping failure is logged but never allowed to mask or replace
// the underlying migration outcome.
type BatchTracker struct {
	batches repository.BatchRepository
	log     logger.Logger
}

// NewBatchTracker creates a batch tracker
func NewBatchTracker(batches repository.BatchRepository, log logger.Logger) *BatchTracker {
	return &BatchTracker{batches: batches, log: log}
}

// CreateBatch inserts the running batch row for a plan execution
func (t *BatchTracker) CreateBatch(ctx context.Context, plan *model.MigrationPlan, executedBy string) (*model.MigrationBatch, error) {
	batch := model.NewBatch(plan, executedBy)
	if err := t.batches.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// RecordSuccess appends a success detail row
func (t *BatchTracker) RecordSuccess(ctx context.Context, batch *model.MigrationBatch, cfg *model.MigrationConfig, schema string, applied int) {
	detail := model.NewDetail(batch.ID, cfg, schema, model.DetailStatusSuccess)
	detail.MigrationsApplied = applied
	// Approximation: elapsed time since the batch started, not a
	// per-schema timer. Grows monotonically for later schemas.
	detail.ExecutionTime = time.Since(batch.StartedAt)

	if err := t.batches.CreateDetail(ctx, detail); err != nil {
		t.log.Error("failed to record migration success",
			"batch_id", batch.ID, "database", cfg.DatabaseName, "schema", schema, "error", err)
	}
}

// RecordFailure appends a failure detail row with truncated error text
func (t *BatchTracker) RecordFailure(ctx context.Context, batch *model.MigrationBatch, cfg *model.MigrationConfig, schema, errMsg string) {
	detail := model.NewDetail(batch.ID, cfg, schema, model.DetailStatusFailed)
	detail.Error = truncateError(errMsg)
	detail.ExecutionTime = time.Since(batch.StartedAt)

	if err := t.batches.CreateDetail(ctx, detail); err != nil {
		t.log.Error("failed to record migration failure",
			"batch_id", batch.ID, "database", cfg.DatabaseName, "schema", schema, "error", err)
	}
}

// Finalize performs the single terminal write for a batch
func (t *BatchTracker) Finalize(ctx context.Context, batchID string, status model.BatchStatus, errMsg string) {
	if err := t.batches.FinalizeBatch(ctx, batchID, status, truncateError(errMsg)); err != nil {
		t.log.Error("failed to finalize migration batch",
			"batch_id", batchID, "status", status, "error", err)
	}
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength]
	}
	return msg
}
