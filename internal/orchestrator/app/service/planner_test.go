package service

import (
	"context"
	"errors"
	"testing"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *fakeRegistry {
	return &fakeRegistry{
		records: []model.ConnectionRecord{
			{ID: "c1", Name: "admin", Host: "db1", Port: 5432, DatabaseName: "platform_admin", Username: "u", RegionID: "r-us", ConnectionType: "admin", IsActive: true, IsHealthy: true},
			{ID: "c2", Name: "shared-eu", Host: "db2", Port: 5432, DatabaseName: "shared_eu", Username: "u", RegionID: "r-eu", IsActive: true, IsHealthy: true},
			{ID: "c3", Name: "analytics-us", Host: "db3", Port: 5432, DatabaseName: "analytics_us", Username: "u", RegionID: "r-us", IsActive: true, IsHealthy: true},
			{ID: "c4", Name: "acme", Host: "db4", Port: 5432, DatabaseName: "acme_corp", Username: "u", RegionID: "r-eu", IsActive: true, IsHealthy: true},
			{ID: "c5", Name: "globex", Host: "db5", Port: 5432, DatabaseName: "globex_inc", Username: "u", RegionID: "r-us", IsActive: true, IsHealthy: true},
		},
		regions: map[string]*model.Region{
			"r-us": {ID: "r-us", Name: "us-east-1"},
			"r-eu": {ID: "r-eu", Name: "eu-west-1"},
		},
	}
}

func newTestPlanner(registry *fakeRegistry) *Planner {
	credentials := NewCredentialResolver(nil, "default-pw", logger.NewNop())
	return NewPlanner(registry, credentials, true, logger.NewNop())
}

func TestBuildPlanClassifiesFleet(t *testing.T) {
	plan, err := newTestPlanner(testRegistry()).BuildPlan(context.Background())
	require.NoError(t, err)

	require.NotNil(t, plan.AdminConfig)
	assert.Equal(t, "platform_admin", plan.AdminConfig.DatabaseName)
	assert.Equal(t, model.DatabaseTypeAdmin, plan.AdminConfig.Type)

	require.Len(t, plan.RegionalConfigs, 2)
	assert.Equal(t, model.DatabaseTypeShared, plan.RegionalConfigs[0].Type)
	assert.Equal(t, model.DatabaseTypeAnalytics, plan.RegionalConfigs[1].Type)

	require.Len(t, plan.TenantConfigs, 2)
	for _, cfg := range plan.TenantConfigs {
		assert.Equal(t, model.DatabaseTypeTenant, cfg.Type)
		assert.Equal(t, []string{model.SchemaPublic}, cfg.Schemas)
	}
}

func TestBuildPlanTotalOperationsExcludesAdmin(t *testing.T) {
	plan, err := newTestPlanner(testRegistry()).BuildPlan(context.Background())
	require.NoError(t, err)

	// shared (2) + analytics (2) + two tenants (1 each)
	assert.Equal(t, 6, plan.TotalOperations)
	assert.True(t, plan.RollbackOnFailure)
}

func TestBuildPlanPlaceholders(t *testing.T) {
	plan, err := newTestPlanner(testRegistry()).BuildPlan(context.Background())
	require.NoError(t, err)

	shared := plan.RegionalConfigs[0]
	assert.Equal(t, "eu-west-1", shared.Placeholders["region"])
	assert.Equal(t, "true", shared.Placeholders["gdpr"])

	analytics := plan.RegionalConfigs[1]
	assert.Equal(t, "us-east-1", analytics.Placeholders["region"])
	assert.Equal(t, "false", analytics.Placeholders["gdpr"])
}

func TestBuildPlanExcludesUnresolvableConnection(t *testing.T) {
	registry := testRegistry()
	registry.records[3].RegionID = "r-unknown"

	plan, err := newTestPlanner(registry).BuildPlan(context.Background())
	require.NoError(t, err)

	// acme is dropped, the rest of the fleet still plans
	require.Len(t, plan.TenantConfigs, 1)
	assert.Equal(t, "globex_inc", plan.TenantConfigs[0].DatabaseName)
	assert.Equal(t, 5, plan.TotalOperations)
}

func TestBuildPlanRegistryError(t *testing.T) {
	registry := &fakeRegistry{listErr: errors.New("registry down")}

	_, err := newTestPlanner(registry).BuildPlan(context.Background())
	assert.Error(t, err)
}

func TestBuildPlanResolvesCredentials(t *testing.T) {
	registry := testRegistry()
	registry.records[1].EncryptedPassword = "encrypted:abc"

	decryptor := &fakeDecryptor{plaintexts: map[string]string{"encrypted:abc": "shared-pw"}}
	credentials := NewCredentialResolver(decryptor, "default-pw", logger.NewNop())
	planner := NewPlanner(registry, credentials, true, logger.NewNop())

	plan, err := planner.BuildPlan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "shared-pw", plan.RegionalConfigs[0].Password)
	assert.Equal(t, "default-pw", plan.TenantConfigs[0].Password)
}
