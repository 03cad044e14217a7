package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/repository"
	"github.com/schemafleet/schemafleet/internal/platform/database"
)

// ConnectionRepository reads the fleet connection registry. The registry
// tables are owned by the connection management service; this repository
// never writes them.
type ConnectionRepository struct {
	db *database.DB
}

// NewConnectionRepository creates a read-only registry repository
func NewConnectionRepository(db *database.DB) repository.ConnectionRegistry {
	return &ConnectionRepository{db: db}
}

// ListActiveHealthy returns every registry connection that is both
// active and passed its last health check, ordered by name so plan
// assembly is deterministic.
func (r *ConnectionRepository) ListActiveHealthy(ctx context.Context) ([]model.ConnectionRecord, error) {
	query := `
		SELECT id, name, host, port, database_name, username,
			COALESCE(encrypted_password, ''), COALESCE(password, ''),
			region_id, connection_type, is_active, is_healthy
		FROM database_connections
		WHERE is_active = true AND is_healthy = true
		ORDER BY name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query connection registry: %w", err)
	}
	defer rows.Close()

	var records []model.ConnectionRecord
	for rows.Next() {
		var rec model.ConnectionRecord

		err := rows.Scan(
			&rec.ID,
			&rec.Name,
			&rec.Host,
			&rec.Port,
			&rec.DatabaseName,
			&rec.Username,
			&rec.EncryptedPassword,
			&rec.Password,
			&rec.RegionID,
			&rec.ConnectionType,
			&rec.IsActive,
			&rec.IsHealthy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection record: %w", err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connection rows: %w", err)
	}

	return records, nil
}

// GetRegion resolves a region by id
func (r *ConnectionRepository) GetRegion(ctx context.Context, regionID string) (*model.Region, error) {
	query := `SELECT id, name FROM regions WHERE id = $1`

	var region model.Region
	err := r.db.QueryRowContext(ctx, query, regionID).Scan(&region.ID, &region.Name)
	if err == sql.ErrNoRows {
		return nil, repository.ErrRegionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get region: %w", err)
	}

	return &region, nil
}
