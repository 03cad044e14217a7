// Package probe opens short-lived connections to fleet databases for
// connectivity pre-checks and migration-version inspection.
package probe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
)

// Postgres error codes that mean "this schema hasn't been migrated yet"
const (
	codeInvalidCatalogName = "3D000"
	codeInvalidSchemaName  = "3F000"
	codeUndefinedTable     = "42P01"
)

// Prober checks target databases over single-connection, short-lived pools
type Prober struct {
	timeout time.Duration
	log     logger.Logger
}

// New creates a prober with the given pre-check timeout
func New(timeout time.Duration, log logger.Logger) *Prober {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{timeout: timeout, log: log}
}

// DSN builds the lib/pq connection string for a target database
func DSN(cfg *model.MigrationConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable connect_timeout=5",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.DatabaseName)
}

// TestConnection confirms a target database is reachable. It never
// returns an error; any failure is logged and reported as false.
func (p *Prober) TestConnection(ctx context.Context, cfg *model.MigrationConfig) bool {
	db, err := p.open(cfg)
	if err != nil {
		p.log.Warn("pre-check open failed", "database", cfg.DatabaseName, "error", err)
		return false
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		p.log.Warn("pre-check query failed", "database", cfg.DatabaseName, "error", err)
		return false
	}

	return true
}

// CurrentVersion returns the highest successfully applied migration
// version in a schema, or "" when the schema has not been migrated yet.
// Connection errors are logged and treated as unknown, never propagated.
func (p *Prober) CurrentVersion(ctx context.Context, cfg *model.MigrationConfig, schema string) string {
	db, err := p.open(cfg)
	if err != nil {
		p.log.Warn("version inspection open failed",
			"database", cfg.DatabaseName, "schema", schema, "error", err)
		return ""
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	query := fmt.Sprintf(
		`SELECT MAX(version) FROM %s.flyway_schema_history WHERE success = true`,
		pq.QuoteIdentifier(schema))

	var version sql.NullString
	if err := db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		if IsNotMigrated(err) {
			return ""
		}
		p.log.Warn("version inspection failed",
			"database", cfg.DatabaseName, "schema", schema, "error", err)
		return ""
	}

	if !version.Valid {
		return ""
	}
	return version.String
}

// IsNotMigrated reports whether an error means the schema or its
// migration history table does not exist yet, a normal condition for a
// database that has never been migrated.
func IsNotMigrated(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeInvalidCatalogName, codeInvalidSchemaName, codeUndefinedTable:
			return true
		}
	}
	return false
}

func (p *Prober) open(cfg *model.MigrationConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, err
	}
	// One connection is enough; the pool lives for a single check
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}
