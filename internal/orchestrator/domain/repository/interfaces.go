package repository

import (
	"context"
	"errors"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
)

var (
	ErrBatchNotFound  = errors.New("migration batch not found")
	ErrRegionNotFound = errors.New("region not found")
)

// ConnectionRegistry reads the fleet connection registry. The registry
// is owned by the connection management service; this side is read-only.
type ConnectionRegistry interface {
	ListActiveHealthy(ctx context.Context) ([]model.ConnectionRecord, error)
	GetRegion(ctx context.Context, regionID string) (*model.Region, error)
}

// BatchRepository persists migration batches and their detail rows
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch *model.MigrationBatch) error
	CreateDetail(ctx context.Context, detail *model.MigrationBatchDetail) error
	// FinalizeBatch performs the single terminal write for a batch. With an
	// empty errMsg it derives successful/failed counts from the detail rows;
	// with an errMsg it stores the error and leaves the counts untouched.
	FinalizeBatch(ctx context.Context, batchID string, status model.BatchStatus, errMsg string) error
	GetBatch(ctx context.Context, batchID string) (*model.MigrationBatch, error)
	ListBatches(ctx context.Context, limit int) ([]model.MigrationBatch, error)
	ListDetails(ctx context.Context, batchID string) ([]model.MigrationBatchDetail, error)
}

// RollbackRepository persists rollback-intent records
type RollbackRepository interface {
	CreateRollback(ctx context.Context, rollback *model.MigrationRollback) error
	ListRollbacks(ctx context.Context, batchID string) ([]model.MigrationRollback, error)
}
