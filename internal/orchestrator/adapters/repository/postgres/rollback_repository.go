package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/repository"
	"github.com/schemafleet/schemafleet/internal/platform/database"
)

// RollbackRepository implements rollback persistence using PostgreSQL
type RollbackRepository struct {
	db *database.DB
}

// NewRollbackRepository creates a new PostgreSQL rollback repository
func NewRollbackRepository(db *database.DB) repository.RollbackRepository {
	return &RollbackRepository{db: db}
}

// EnsureTable creates the rollback table if it doesn't exist
func (r *RollbackRepository) EnsureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migration_rollbacks (
			id VARCHAR(255) PRIMARY KEY,
			batch_id VARCHAR(255) NOT NULL,
			database_name VARCHAR(255) NOT NULL,
			schema_name VARCHAR(255) NOT NULL,
			rolled_back_from VARCHAR(255) NOT NULL,
			reason TEXT NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_migration_rollbacks_batch_id ON migration_rollbacks(batch_id);
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// CreateRollback appends a rollback-intent record
func (r *RollbackRepository) CreateRollback(ctx context.Context, rollback *model.MigrationRollback) error {
	query := `
		INSERT INTO migration_rollbacks (
			id, batch_id, database_name, schema_name, rolled_back_from, reason, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		rollback.ID,
		rollback.BatchID,
		rollback.DatabaseName,
		rollback.SchemaName,
		rollback.RolledBackFrom,
		rollback.Reason,
		string(rollback.Status),
		rollback.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rollback record: %w", err)
	}

	return nil
}

// ListRollbacks returns the rollback records for a batch, newest first
func (r *RollbackRepository) ListRollbacks(ctx context.Context, batchID string) ([]model.MigrationRollback, error) {
	query := `
		SELECT id, batch_id, database_name, schema_name, rolled_back_from, reason, status, created_at
		FROM migration_rollbacks
		WHERE batch_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rollbacks: %w", err)
	}
	defer rows.Close()

	var rollbacks []model.MigrationRollback
	for rows.Next() {
		var rb model.MigrationRollback
		var status string
		var createdAt time.Time

		err := rows.Scan(
			&rb.ID,
			&rb.BatchID,
			&rb.DatabaseName,
			&rb.SchemaName,
			&rb.RolledBackFrom,
			&rb.Reason,
			&status,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rollback: %w", err)
		}

		rb.Status = model.RollbackStatus(status)
		rb.CreatedAt = createdAt
		rollbacks = append(rollbacks, rb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rollback rows: %w", err)
	}

	return rollbacks, nil
}
