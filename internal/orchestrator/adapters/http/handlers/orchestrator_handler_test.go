package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/schemafleet/schemafleet/internal/orchestrator/app/service"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/repository"
	"github.com/schemafleet/schemafleet/internal/orchestrator/flyway"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRegistry struct {
	records []model.ConnectionRecord
	regions map[string]*model.Region
}

func (s *stubRegistry) ListActiveHealthy(ctx context.Context) ([]model.ConnectionRecord, error) {
	return s.records, nil
}

func (s *stubRegistry) GetRegion(ctx context.Context, regionID string) (*model.Region, error) {
	region, ok := s.regions[regionID]
	if !ok {
		return nil, repository.ErrRegionNotFound
	}
	return region, nil
}

type stubBatchRepo struct {
	batch   *model.MigrationBatch
	details []model.MigrationBatchDetail
}

func (s *stubBatchRepo) CreateBatch(ctx context.Context, batch *model.MigrationBatch) error {
	return nil
}
func (s *stubBatchRepo) CreateDetail(ctx context.Context, detail *model.MigrationBatchDetail) error {
	return nil
}
func (s *stubBatchRepo) FinalizeBatch(ctx context.Context, batchID string, status model.BatchStatus, errMsg string) error {
	return nil
}

func (s *stubBatchRepo) GetBatch(ctx context.Context, batchID string) (*model.MigrationBatch, error) {
	if s.batch == nil || s.batch.ID != batchID {
		return nil, repository.ErrBatchNotFound
	}
	return s.batch, nil
}

func (s *stubBatchRepo) ListBatches(ctx context.Context, limit int) ([]model.MigrationBatch, error) {
	if s.batch == nil {
		return nil, nil
	}
	return []model.MigrationBatch{*s.batch}, nil
}

func (s *stubBatchRepo) ListDetails(ctx context.Context, batchID string) ([]model.MigrationBatchDetail, error) {
	return s.details, nil
}

type stubRollbackRepo struct {
	rollbacks []model.MigrationRollback
}

func (s *stubRollbackRepo) CreateRollback(ctx context.Context, rollback *model.MigrationRollback) error {
	return nil
}

func (s *stubRollbackRepo) ListRollbacks(ctx context.Context, batchID string) ([]model.MigrationRollback, error) {
	return s.rollbacks, nil
}

func newPlanHandler(t *testing.T) *OrchestratorHandler {
	t.Helper()

	registry := &stubRegistry{
		records: []model.ConnectionRecord{
			{ID: "c1", Name: "admin", Host: "db1", Port: 5432, DatabaseName: "platform_admin", Username: "u", RegionID: "r1", ConnectionType: "admin", IsActive: true, IsHealthy: true},
			{ID: "c2", Name: "acme", Host: "db2", Port: 5432, DatabaseName: "acme_corp", Username: "u", RegionID: "r1", IsActive: true, IsHealthy: true},
		},
		regions: map[string]*model.Region{"r1": {ID: "r1", Name: "us-east-1"}},
	}

	log := logger.NewNop()
	credentials := service.NewCredentialResolver(nil, "pw", log)
	planner := service.NewPlanner(registry, credentials, true, log)

	return NewOrchestratorHandler(planner, nil, &stubBatchRepo{}, &stubRollbackRepo{}, log)
}

func TestHandlePlan(t *testing.T) {
	h := newPlanHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/migrations/plan", nil)
	rec := httptest.NewRecorder()

	h.HandlePlan(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp PlanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.NotNil(t, resp.AdminExcluded)
	assert.Equal(t, "platform_admin", resp.AdminExcluded.DatabaseName)
	assert.Empty(t, resp.Regional)
	require.Len(t, resp.Tenant, 1)
	assert.Equal(t, "acme_corp", resp.Tenant[0].DatabaseName)
	assert.Equal(t, 1, resp.TotalOperations)

	// Credentials never leak through the plan surface
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "pw")
}

// ctxProber fails its checks as soon as the context is canceled,
// mirroring how the real prober and tool subprocess react.
type ctxProber struct{}

func (ctxProber) TestConnection(ctx context.Context, cfg *model.MigrationConfig) bool {
	return ctx.Err() == nil
}

func (ctxProber) CurrentVersion(ctx context.Context, cfg *model.MigrationConfig, schema string) string {
	return ""
}

type ctxRunner struct {
	calls int
}

func (r *ctxRunner) MigrationsExist(location string) bool { return true }

func (r *ctxRunner) Run(ctx context.Context, cfg flyway.Config, verb flyway.Verb) (*flyway.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.calls++
	return &flyway.RunResult{Applied: 1, Output: "Successfully applied 1 migration"}, nil
}

func TestHandleExecuteOutlivesRequestCancellation(t *testing.T) {
	registry := &stubRegistry{
		records: []model.ConnectionRecord{
			{ID: "c1", Name: "acme", Host: "db1", Port: 5432, DatabaseName: "acme_corp", Username: "u", RegionID: "r1", IsActive: true, IsHealthy: true},
		},
		regions: map[string]*model.Region{"r1": {ID: "r1", Name: "us-east-1"}},
	}

	log := logger.NewNop()
	credentials := service.NewCredentialResolver(nil, "pw", log)
	planner := service.NewPlanner(registry, credentials, true, log)

	prober := ctxProber{}
	runner := &ctxRunner{}
	tracker := service.NewBatchTracker(&stubBatchRepo{}, log)
	rollback := service.NewRollbackCoordinator(prober, &stubRollbackRepo{}, nil, log)
	executor := service.NewExecutor(
		service.NewDependencyResolver("/migrations"),
		prober, runner, tracker, rollback, "orchestrator", log)

	h := NewOrchestratorHandler(planner, executor, &stubBatchRepo{}, &stubRollbackRepo{}, log)

	// The client is gone before the run even starts. The run must not
	// be canceled with the request.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/migrations/execute", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	h.HandleExecute(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ExecuteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "completed", resp.Status)
	assert.NotEmpty(t, resp.BatchID)
	assert.Equal(t, 1, runner.calls)
}

func TestHandleGetBatch(t *testing.T) {
	now := time.Now().UTC()
	completed := now.Add(time.Minute)

	batches := &stubBatchRepo{
		batch: &model.MigrationBatch{
			ID:              "b1",
			Name:            "fleet-migration-x",
			Status:          model.BatchStatusFailed,
			TotalOperations: 2,
			SuccessfulCount: 1,
			FailedCount:     1,
			ExecutedBy:      "orchestrator",
			StartedAt:       now,
			CompletedAt:     &completed,
			Error:           "migration failed for tenant database acme_corp",
		},
		details: []model.MigrationBatchDetail{
			{DatabaseName: "acme_corp", SchemaName: "public", DatabaseType: model.DatabaseTypeTenant, Status: model.DetailStatusFailed, Error: "boom"},
		},
	}
	rollbacks := &stubRollbackRepo{
		rollbacks: []model.MigrationRollback{
			{DatabaseName: "shared_us", SchemaName: "platform_common", RolledBackFrom: "003", Status: model.RollbackStatusLoggedOnly, CreatedAt: now},
		},
	}

	h := NewOrchestratorHandler(nil, nil, batches, rollbacks, logger.NewNop())

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/batches/{id}", h.HandleGetBatch)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/b1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Batch     BatchResponse         `json:"batch"`
		Details   []BatchDetailResponse `json:"details"`
		Rollbacks []RollbackResponse    `json:"rollbacks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "b1", resp.Batch.ID)
	assert.Equal(t, "failed", resp.Batch.Status)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "boom", resp.Details[0].Error)
	require.Len(t, resp.Rollbacks, 1)
	assert.Equal(t, "logged_only", resp.Rollbacks[0].Status)
}

func TestHandleGetBatchNotFound(t *testing.T) {
	h := NewOrchestratorHandler(nil, nil, &stubBatchRepo{}, &stubRollbackRepo{}, logger.NewNop())

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/batches/{id}", h.HandleGetBatch)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListBatchesInvalidLimit(t *testing.T) {
	h := NewOrchestratorHandler(nil, nil, &stubBatchRepo{}, &stubRollbackRepo{}, logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches?limit=nope", nil)
	rec := httptest.NewRecorder()

	h.HandleListBatches(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
