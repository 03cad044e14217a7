// Package postgres provides PostgreSQL persistence for migration
// orchestration records.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/repository"
	"github.com/schemafleet/schemafleet/internal/platform/database"
)

// BatchRepository implements batch persistence using PostgreSQL
type BatchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new PostgreSQL batch repository
func NewBatchRepository(db *database.DB) repository.BatchRepository {
	return &BatchRepository{db: db}
}

// EnsureTables creates the batch bookkeeping tables if they don't exist
func (r *BatchRepository) EnsureTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migration_batches (
			id VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			type VARCHAR(50) NOT NULL,
			scope VARCHAR(50) NOT NULL,
			total_operations INT NOT NULL DEFAULT 0,
			database_count INT NOT NULL DEFAULT 0,
			schema_count INT NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			executed_by VARCHAR(255) NOT NULL,
			execution_mode VARCHAR(50) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			started_at TIMESTAMP WITH TIME ZONE NOT NULL,
			completed_at TIMESTAMP WITH TIME ZONE,
			successful_count INT NOT NULL DEFAULT 0,
			failed_count INT NOT NULL DEFAULT 0,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_migration_batches_status ON migration_batches(status);
		CREATE INDEX IF NOT EXISTS idx_migration_batches_started_at ON migration_batches(started_at);

		CREATE TABLE IF NOT EXISTS migration_batch_details (
			id VARCHAR(255) PRIMARY KEY,
			batch_id VARCHAR(255) NOT NULL REFERENCES migration_batches(id),
			database_name VARCHAR(255) NOT NULL,
			schema_name VARCHAR(255) NOT NULL,
			database_type VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL,
			error TEXT,
			migrations_applied INT NOT NULL DEFAULT 0,
			execution_time_ms BIGINT NOT NULL DEFAULT 0,
			region VARCHAR(255),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_migration_batch_details_batch_id ON migration_batch_details(batch_id);
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// CreateBatch inserts the running batch row
func (r *BatchRepository) CreateBatch(ctx context.Context, batch *model.MigrationBatch) error {
	metadata, err := json.Marshal(batch.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal batch metadata: %w", err)
	}

	query := `
		INSERT INTO migration_batches (
			id, name, type, scope, total_operations, database_count, schema_count,
			status, executed_by, execution_mode, metadata, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		batch.ID,
		batch.Name,
		batch.Type,
		batch.Scope,
		batch.TotalOperations,
		batch.DatabaseCount,
		batch.SchemaCount,
		string(batch.Status),
		batch.ExecutedBy,
		batch.ExecutionMode,
		metadata,
		batch.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration batch: %w", err)
	}

	return nil
}

// CreateDetail appends a (database, schema) outcome row
func (r *BatchRepository) CreateDetail(ctx context.Context, detail *model.MigrationBatchDetail) error {
	query := `
		INSERT INTO migration_batch_details (
			id, batch_id, database_name, schema_name, database_type,
			status, error, migrations_applied, execution_time_ms, region, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		detail.ID,
		detail.BatchID,
		detail.DatabaseName,
		detail.SchemaName,
		string(detail.DatabaseType),
		string(detail.Status),
		database.NullString(detail.Error),
		detail.MigrationsApplied,
		detail.ExecutionTime.Milliseconds(),
		detail.Region,
		detail.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch detail: %w", err)
	}

	return nil
}

// FinalizeBatch performs the single terminal write for a batch. With an
// empty errMsg it derives the success/failure counts from the detail
// rows; with an errMsg it stores the error and leaves counts untouched.
func (r *BatchRepository) FinalizeBatch(ctx context.Context, batchID string, status model.BatchStatus, errMsg string) error {
	var query string
	var args []interface{}

	if errMsg == "" {
		query = `
			UPDATE migration_batches SET
				status = $2,
				completed_at = $3,
				successful_count = (
					SELECT COUNT(*) FROM migration_batch_details
					WHERE batch_id = $1 AND status = 'success'
				),
				failed_count = (
					SELECT COUNT(*) FROM migration_batch_details
					WHERE batch_id = $1 AND status = 'failed'
				)
			WHERE id = $1
		`
		args = []interface{}{batchID, string(status), time.Now().UTC()}
	} else {
		query = `
			UPDATE migration_batches SET
				status = $2,
				completed_at = $3,
				error = $4
			WHERE id = $1
		`
		args = []interface{}{batchID, string(status), time.Now().UTC(), errMsg}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to finalize batch: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return repository.ErrBatchNotFound
	}

	return nil
}

// GetBatch returns one batch by id
func (r *BatchRepository) GetBatch(ctx context.Context, batchID string) (*model.MigrationBatch, error) {
	query := `
		SELECT id, name, type, scope, total_operations, database_count, schema_count,
			status, executed_by, execution_mode, metadata, started_at, completed_at,
			successful_count, failed_count, COALESCE(error, '')
		FROM migration_batches
		WHERE id = $1
	`

	batch, err := r.scanBatch(r.db.QueryRowContext(ctx, query, batchID))
	if err == sql.ErrNoRows {
		return nil, repository.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return batch, nil
}

// ListBatches returns the most recent batches
func (r *BatchRepository) ListBatches(ctx context.Context, limit int) ([]model.MigrationBatch, error) {
	query := `
		SELECT id, name, type, scope, total_operations, database_count, schema_count,
			status, executed_by, execution_mode, metadata, started_at, completed_at,
			successful_count, failed_count, COALESCE(error, '')
		FROM migration_batches
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []model.MigrationBatch
	for rows.Next() {
		batch, err := r.scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, *batch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch rows: %w", err)
	}

	return batches, nil
}

// ListDetails returns the detail rows for a batch in insertion order
func (r *BatchRepository) ListDetails(ctx context.Context, batchID string) ([]model.MigrationBatchDetail, error) {
	query := `
		SELECT id, batch_id, database_name, schema_name, database_type,
			status, COALESCE(error, ''), migrations_applied, execution_time_ms, region, created_at
		FROM migration_batch_details
		WHERE batch_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch details: %w", err)
	}
	defer rows.Close()

	var details []model.MigrationBatchDetail
	for rows.Next() {
		var d model.MigrationBatchDetail
		var dbType, status string
		var execMs int64

		err := rows.Scan(
			&d.ID,
			&d.BatchID,
			&d.DatabaseName,
			&d.SchemaName,
			&dbType,
			&status,
			&d.Error,
			&d.MigrationsApplied,
			&execMs,
			&d.Region,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch detail: %w", err)
		}

		d.DatabaseType = model.DatabaseType(dbType)
		d.Status = model.DetailStatus(status)
		d.ExecutionTime = time.Duration(execMs) * time.Millisecond
		details = append(details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating detail rows: %w", err)
	}

	return details, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *BatchRepository) scanBatch(row rowScanner) (*model.MigrationBatch, error) {
	var b model.MigrationBatch
	var status string
	var metadata []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Type,
		&b.Scope,
		&b.TotalOperations,
		&b.DatabaseCount,
		&b.SchemaCount,
		&status,
		&b.ExecutedBy,
		&b.ExecutionMode,
		&metadata,
		&b.StartedAt,
		&completedAt,
		&b.SuccessfulCount,
		&b.FailedCount,
		&b.Error,
	)
	if err != nil {
		return nil, err
	}

	b.Status = model.BatchStatus(status)
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &b.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal batch metadata: %w", err)
		}
	}

	return &b, nil
}
