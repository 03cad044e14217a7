package service

import (
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/flyway"
)

// ResolvedStep is one ordered schema migration plus the configuration
// block the external tool needs to run it.
type ResolvedStep struct {
	Schema string
	Tool   flyway.Config
}

// DependencyResolver orders a database's schemas so that prerequisites
// run first and builds the per-schema tool configuration.
type DependencyResolver struct {
	migrationsDir string
}

// NewDependencyResolver creates a resolver rooted at the migrations directory
func NewDependencyResolver(migrationsDir string) *DependencyResolver {
	return &DependencyResolver{migrationsDir: migrationsDir}
}

// Order returns the database's schemas in dependency order. The shared
// platform schema always comes strictly before any type-specific
// schema, regardless of the order on the config.
func (r *DependencyResolver) Order(cfg *model.MigrationConfig) []ResolvedStep {
	ordered := orderSchemas(cfg.Schemas)

	steps := make([]ResolvedStep, 0, len(ordered))
	for _, schema := range ordered {
		steps = append(steps, ResolvedStep{
			Schema: schema,
			Tool:   r.toolConfig(cfg, schema),
		})
	}
	return steps
}

func (r *DependencyResolver) toolConfig(cfg *model.MigrationConfig, schema string) flyway.Config {
	placeholders := make(map[string]string, len(cfg.Placeholders))
	for k, v := range cfg.Placeholders {
		placeholders[k] = v
	}

	return flyway.Config{
		URL:          cfg.URL(),
		User:         cfg.Username,
		Password:     cfg.Password,
		Schema:       schema,
		Location:     flyway.LocationFor(r.migrationsDir, schema),
		Placeholders: placeholders,
	}
}

// orderSchemas moves the shared platform schema to the front, keeping
// the relative order of the remaining schemas and dropping duplicates.
func orderSchemas(schemas []string) []string {
	ordered := make([]string, 0, len(schemas))
	seen := make(map[string]struct{}, len(schemas))

	for _, s := range schemas {
		if s == model.SchemaPlatformCommon {
			if _, ok := seen[s]; !ok {
				ordered = append(ordered, s)
				seen[s] = struct{}{}
			}
		}
	}
	for _, s := range schemas {
		if _, ok := seen[s]; ok {
			continue
		}
		ordered = append(ordered, s)
		seen[s] = struct{}{}
	}

	return ordered
}
