package service

import (
	"context"
	"fmt"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/repository"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
)

// Planner assembles the migration plan for the current fleet: it reads
// the connection registry, classifies every active and healthy database,
// and annotates each with the schemas it must migrate.
type Planner struct {
	registry          repository.ConnectionRegistry
	credentials       *CredentialResolver
	rollbackOnFailure bool
	log               logger.Logger
}

// NewPlanner creates a plan builder
func NewPlanner(registry repository.ConnectionRegistry, credentials *CredentialResolver, rollbackOnFailure bool, log logger.Logger) *Planner {
	return &Planner{
		registry:          registry,
		credentials:       credentials,
		rollbackOnFailure: rollbackOnFailure,
		log:               log,
	}
}

// BuildPlan queries the registry and assembles the complete plan. A
// single connection that fails to resolve is logged and excluded; it
// must not abort the whole build.
func (p *Planner) BuildPlan(ctx context.Context) (*model.MigrationPlan, error) {
	records, err := p.registry.ListActiveHealthy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list fleet connections: %w", err)
	}

	plan := &model.MigrationPlan{
		RollbackOnFailure: p.rollbackOnFailure,
	}

	for _, rec := range records {
		cfg, err := p.buildConfig(ctx, rec)
		if err != nil {
			p.log.Warn("excluding connection from plan",
				"connection", rec.Name, "database", rec.DatabaseName, "error", err)
			continue
		}

		switch cfg.Type {
		case model.DatabaseTypeAdmin:
			// Classified but never executed; admin migration belongs to
			// the bootstrap path.
			plan.AdminConfig = cfg
			continue
		case model.DatabaseTypeShared, model.DatabaseTypeAnalytics:
			plan.RegionalConfigs = append(plan.RegionalConfigs, cfg)
		default:
			plan.TenantConfigs = append(plan.TenantConfigs, cfg)
		}

		plan.TotalOperations += len(cfg.Schemas)
	}

	p.log.Info("migration plan assembled",
		"regional", len(plan.RegionalConfigs),
		"tenant", len(plan.TenantConfigs),
		"admin_excluded", plan.AdminConfig != nil,
		"total_operations", plan.TotalOperations)

	return plan, nil
}

func (p *Planner) buildConfig(ctx context.Context, rec model.ConnectionRecord) (*model.MigrationConfig, error) {
	dbType := rec.Classify()

	region, err := p.registry.GetRegion(ctx, rec.RegionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve region %q: %w", rec.RegionID, err)
	}

	placeholders := map[string]string{
		"region": region.Name,
		"gdpr":   fmt.Sprintf("%t", region.IsGDPR()),
	}

	return &model.MigrationConfig{
		ConnectionID: rec.ID,
		Name:         rec.Name,
		Host:         rec.Host,
		Port:         rec.Port,
		DatabaseName: rec.DatabaseName,
		Username:     rec.Username,
		Password:     p.credentials.ResolvePassword(rec),
		Region:       region.Name,
		Type:         dbType,
		Set:          dbType.MigrationSet(),
		Schemas:      dbType.Schemas(),
		Placeholders: placeholders,
	}, nil
}
