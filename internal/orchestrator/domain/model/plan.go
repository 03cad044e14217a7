package model

import "fmt"

// MigrationConfig carries everything needed to migrate one physical
// database for the duration of a single run. Built by the planner,
// consumed by the executor, discarded at end of run.
type MigrationConfig struct {
	ConnectionID string
	Name         string
	Host         string
	Port         int
	DatabaseName string
	Username     string
	Password     string
	Region       string
	Type         DatabaseType
	Set          MigrationSet
	Schemas      []string
	Placeholders map[string]string
}

// URL returns the JDBC-style connection URL handed to the migration tool
func (c *MigrationConfig) URL() string {
	return fmt.Sprintf("jdbc:postgresql://%s:%d/%s", c.Host, c.Port, c.DatabaseName)
}

// CompletedMigration is one (database, schema) pair that migrated
// successfully; the rollback candidate set is made of these.
type CompletedMigration struct {
	Config *MigrationConfig
	Schema string
}

// MigrationPlan is the full work list for one orchestration run
type MigrationPlan struct {
	// AdminConfig is classified but excluded from execution; the admin
	// database is migrated by the bootstrap path.
	AdminConfig     *MigrationConfig
	RegionalConfigs []*MigrationConfig
	TenantConfigs   []*MigrationConfig

	TotalOperations   int
	RollbackOnFailure bool

	// CompletedMigrations grows monotonically during execution and is
	// only read, in reverse, by the rollback coordinator.
	CompletedMigrations []CompletedMigration
}

// Complete records a successful (database, schema) migration
func (p *MigrationPlan) Complete(cfg *MigrationConfig, schema string) {
	p.CompletedMigrations = append(p.CompletedMigrations, CompletedMigration{
		Config: cfg,
		Schema: schema,
	})
}

// DatabaseCount returns the number of databases the plan will execute
// against (the admin database is excluded).
func (p *MigrationPlan) DatabaseCount() int {
	return len(p.RegionalConfigs) + len(p.TenantConfigs)
}

// SchemaCount returns the number of distinct schemas across executed configs
func (p *MigrationPlan) SchemaCount() int {
	seen := make(map[string]struct{})
	for _, cfg := range p.RegionalConfigs {
		for _, s := range cfg.Schemas {
			seen[s] = struct{}{}
		}
	}
	for _, cfg := range p.TenantConfigs {
		for _, s := range cfg.Schemas {
			seen[s] = struct{}{}
		}
	}
	return len(seen)
}

// DatabaseNames returns the database names per tier, used for batch metadata
func (p *MigrationPlan) DatabaseNames() map[string][]string {
	names := map[string][]string{}
	for _, cfg := range p.RegionalConfigs {
		names["regional"] = append(names["regional"], cfg.DatabaseName)
	}
	for _, cfg := range p.TenantConfigs {
		names["tenant"] = append(names["tenant"], cfg.DatabaseName)
	}
	if p.AdminConfig != nil {
		names["admin_excluded"] = []string{p.AdminConfig.DatabaseName}
	}
	return names
}
