package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BatchStatus represents the lifecycle of a migration batch
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// DetailStatus represents the outcome of one (database, schema) attempt
type DetailStatus string

const (
	DetailStatusSuccess DetailStatus = "success"
	DetailStatusFailed  DetailStatus = "failed"
)

// RollbackStatus represents the state of a rollback record. The deployed
// tool edition has no automated undo, so records are informational.
type RollbackStatus string

const (
	RollbackStatusLoggedOnly RollbackStatus = "logged_only"
)

// MigrationBatch is one row per orchestration run
type MigrationBatch struct {
	ID              string
	Name            string
	Type            string
	Scope           string
	TotalOperations int
	DatabaseCount   int
	SchemaCount     int
	Status          BatchStatus
	ExecutedBy      string
	ExecutionMode   string
	Metadata        map[string]interface{}
	StartedAt       time.Time
	CompletedAt     *time.Time
	SuccessfulCount int
	FailedCount     int
	Error           string
}

// NewBatch creates the batch record for a plan execution
func NewBatch(plan *MigrationPlan, executedBy string) *MigrationBatch {
	now := time.Now().UTC()
	return &MigrationBatch{
		ID:              uuid.New().String(),
		Name:            fmt.Sprintf("fleet-migration-%s", now.Format("20060102-150405")),
		Type:            "schema",
		Scope:           "fleet",
		TotalOperations: plan.TotalOperations,
		DatabaseCount:   plan.DatabaseCount(),
		SchemaCount:     plan.SchemaCount(),
		Status:          BatchStatusRunning,
		ExecutedBy:      executedBy,
		ExecutionMode:   "sequential",
		Metadata: map[string]interface{}{
			"databases": plan.DatabaseNames(),
		},
		StartedAt: now,
	}
}

// IsTerminal reports whether the batch has reached a final status
func (b *MigrationBatch) IsTerminal() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusFailed
}

// MigrationBatchDetail is one row per (database, schema) outcome.
// Append-only; never updated after insert.
type MigrationBatchDetail struct {
	ID                string
	BatchID           string
	DatabaseName      string
	SchemaName        string
	DatabaseType      DatabaseType
	Status            DetailStatus
	Error             string
	MigrationsApplied int
	ExecutionTime     time.Duration
	Region            string
	CreatedAt         time.Time
}

// NewDetail creates a detail row for a (database, schema) outcome
func NewDetail(batchID string, cfg *MigrationConfig, schema string, status DetailStatus) *MigrationBatchDetail {
	return &MigrationBatchDetail{
		ID:           uuid.New().String(),
		BatchID:      batchID,
		DatabaseName: cfg.DatabaseName,
		SchemaName:   schema,
		DatabaseType: cfg.Type,
		Status:       status,
		Region:       cfg.Region,
		CreatedAt:    time.Now().UTC(),
	}
}

// MigrationRollback is one row per rollback attempt. Append-only,
// informational.
type MigrationRollback struct {
	ID             string
	BatchID        string
	DatabaseName   string
	SchemaName     string
	RolledBackFrom string
	Reason         string
	Status         RollbackStatus
	CreatedAt      time.Time
}

// NewRollback creates a rollback-intent record
func NewRollback(batchID string, entry CompletedMigration, fromVersion, reason string) *MigrationRollback {
	return &MigrationRollback{
		ID:             uuid.New().String(),
		BatchID:        batchID,
		DatabaseName:   entry.Config.DatabaseName,
		SchemaName:     entry.Schema,
		RolledBackFrom: fromVersion,
		Reason:         reason,
		Status:         RollbackStatusLoggedOnly,
		CreatedAt:      time.Now().UTC(),
	}
}
