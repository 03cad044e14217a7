// Package model defines migration orchestration domain models
package model

import "strings"

// ConnectionRecord is a read-only row from the fleet connection registry.
// The registry is owned by another service; the orchestrator never writes it.
type ConnectionRecord struct {
	ID                string
	Name              string
	Host              string
	Port              int
	DatabaseName      string
	Username          string
	EncryptedPassword string
	Password          string
	RegionID          string
	ConnectionType    string
	IsActive          bool
	IsHealthy         bool
}

// Region identifies the region that owns a connection
type Region struct {
	ID   string
	Name string
}

// IsGDPR reports whether databases in this region fall under GDPR,
// derived from the region display name.
func (r *Region) IsGDPR() bool {
	return strings.Contains(strings.ToLower(r.Name), "eu")
}

// DatabaseType classifies a fleet database. Derived at plan-build time,
// never persisted.
type DatabaseType string

const (
	DatabaseTypeAdmin     DatabaseType = "admin"
	DatabaseTypeShared    DatabaseType = "shared"
	DatabaseTypeAnalytics DatabaseType = "analytics"
	DatabaseTypeTenant    DatabaseType = "tenant"
)

// Classify derives the database type from the connection type tag and
// database name.
func (c *ConnectionRecord) Classify() DatabaseType {
	tag := strings.ToLower(c.ConnectionType)
	name := strings.ToLower(c.DatabaseName)

	switch {
	case strings.Contains(tag, "admin") || strings.Contains(name, "admin"):
		return DatabaseTypeAdmin
	case strings.Contains(name, "shared"):
		return DatabaseTypeShared
	case strings.Contains(name, "analytics"):
		return DatabaseTypeAnalytics
	default:
		return DatabaseTypeTenant
	}
}

// MigrationSet names the schema bundle a database type migrates
type MigrationSet string

const (
	MigrationSetPlatformAdmin     MigrationSet = "platform-admin"
	MigrationSetPlatformRegional  MigrationSet = "platform-regional"
	MigrationSetPlatformAnalytics MigrationSet = "platform-analytics"
	MigrationSetTenant            MigrationSet = "tenant"
)

// Well-known schema names
const (
	SchemaPlatformCommon = "platform_common"
	SchemaAdmin          = "admin"
	SchemaTenantTemplate = "tenant_template"
	SchemaAnalytics      = "analytics"
	SchemaPublic         = "public"
)

// MigrationSet returns the schema bundle for a database type
func (t DatabaseType) MigrationSet() MigrationSet {
	switch t {
	case DatabaseTypeAdmin:
		return MigrationSetPlatformAdmin
	case DatabaseTypeShared:
		return MigrationSetPlatformRegional
	case DatabaseTypeAnalytics:
		return MigrationSetPlatformAnalytics
	default:
		return MigrationSetTenant
	}
}

// Schemas returns the schema list for a database type. The shared
// platform schema always comes before the type-specific schema.
func (t DatabaseType) Schemas() []string {
	switch t {
	case DatabaseTypeAdmin:
		return []string{SchemaPlatformCommon, SchemaAdmin}
	case DatabaseTypeShared:
		return []string{SchemaPlatformCommon, SchemaTenantTemplate}
	case DatabaseTypeAnalytics:
		return []string{SchemaPlatformCommon, SchemaAnalytics}
	default:
		return []string{SchemaPublic}
	}
}
