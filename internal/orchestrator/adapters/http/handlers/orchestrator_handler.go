// Package handlers provides HTTP handlers for migration orchestration
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/schemafleet/schemafleet/internal/orchestrator/app/service"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/repository"
	"github.com/schemafleet/schemafleet/internal/platform/logger"
)

const defaultBatchLimit = 50

// OrchestratorHandler handles migration orchestration HTTP requests
type OrchestratorHandler struct {
	planner   *service.Planner
	executor  *service.Executor
	batches   repository.BatchRepository
	rollbacks repository.RollbackRepository
	log       logger.Logger
}

// NewOrchestratorHandler creates a new orchestrator handler
func NewOrchestratorHandler(
	planner *service.Planner,
	executor *service.Executor,
	batches repository.BatchRepository,
	rollbacks repository.RollbackRepository,
	log logger.Logger,
) *OrchestratorHandler {
	return &OrchestratorHandler{
		planner:   planner,
		executor:  executor,
		batches:   batches,
		rollbacks: rollbacks,
		log:       log,
	}
}

// ExecuteRequest represents a migration execution request body
type ExecuteRequest struct {
	DryRun bool `json:"dry_run"`
}

// ExecuteResponse represents a migration execution result
type ExecuteResponse struct {
	BatchID string `json:"batch_id,omitempty"`
	Status  string `json:"status"`
	DryRun  bool   `json:"dry_run"`
	Error   string `json:"error,omitempty"`
}

// PlanResponse represents the assembled migration plan
type PlanResponse struct {
	AdminExcluded   *PlanDatabase  `json:"admin_excluded,omitempty"`
	Regional        []PlanDatabase `json:"regional"`
	Tenant          []PlanDatabase `json:"tenant"`
	TotalOperations int            `json:"total_operations"`
}

// PlanDatabase represents one database in the plan. Credentials never
// appear here.
type PlanDatabase struct {
	Name         string   `json:"name"`
	DatabaseName string   `json:"database_name"`
	Host         string   `json:"host"`
	Region       string   `json:"region"`
	Type         string   `json:"type"`
	MigrationSet string   `json:"migration_set"`
	Schemas      []string `json:"schemas"`
}

// BatchResponse represents a migration batch
type BatchResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	TotalOperations int    `json:"total_operations"`
	DatabaseCount   int    `json:"database_count"`
	SchemaCount     int    `json:"schema_count"`
	SuccessfulCount int    `json:"successful_count"`
	FailedCount     int    `json:"failed_count"`
	ExecutedBy      string `json:"executed_by"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
	Error           string `json:"error,omitempty"`
}

// BatchDetailResponse represents one (database, schema) outcome
type BatchDetailResponse struct {
	DatabaseName      string `json:"database_name"`
	SchemaName        string `json:"schema_name"`
	DatabaseType      string `json:"database_type"`
	Status            string `json:"status"`
	MigrationsApplied int    `json:"migrations_applied"`
	ExecutionTimeMs   int64  `json:"execution_time_ms"`
	Region            string `json:"region,omitempty"`
	Error             string `json:"error,omitempty"`
}

// RollbackResponse represents one rollback-intent record
type RollbackResponse struct {
	DatabaseName   string `json:"database_name"`
	SchemaName     string `json:"schema_name"`
	RolledBackFrom string `json:"rolled_back_from"`
	Reason         string `json:"reason"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

// HandleExecute builds a plan for the current fleet and executes it
func (h *OrchestratorHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	// Detached from the request lifecycle: a client disconnect or the
	// server's write timeout must not cancel an in-flight migration run.
	// A run either completes or fails on its own terms.
	ctx := context.WithoutCancel(r.Context())

	plan, err := h.planner.BuildPlan(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	batchID, execErr := h.executor.Execute(ctx, plan, req.DryRun)

	resp := ExecuteResponse{
		BatchID: batchID,
		Status:  string(model.BatchStatusCompleted),
		DryRun:  req.DryRun,
	}
	if execErr != nil {
		resp.Status = string(model.BatchStatusFailed)
		resp.Error = execErr.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandlePlan assembles and returns the plan without executing it
func (h *OrchestratorHandler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.planner.BuildPlan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := PlanResponse{
		Regional:        make([]PlanDatabase, 0, len(plan.RegionalConfigs)),
		Tenant:          make([]PlanDatabase, 0, len(plan.TenantConfigs)),
		TotalOperations: plan.TotalOperations,
	}

	if plan.AdminConfig != nil {
		admin := toPlanDatabase(plan.AdminConfig)
		resp.AdminExcluded = &admin
	}
	for _, cfg := range plan.RegionalConfigs {
		resp.Regional = append(resp.Regional, toPlanDatabase(cfg))
	}
	for _, cfg := range plan.TenantConfigs {
		resp.Tenant = append(resp.Tenant, toPlanDatabase(cfg))
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleListBatches returns recent migration batches
func (h *OrchestratorHandler) HandleListBatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultBatchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	batches, err := h.batches.ListBatches(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]BatchResponse, 0, len(batches))
	for i := range batches {
		resp = append(resp, toBatchResponse(&batches[i]))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"batches": resp})
}

// HandleGetBatch returns one batch with its detail and rollback rows
func (h *OrchestratorHandler) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["id"]

	batch, err := h.batches.GetBatch(r.Context(), batchID)
	if errors.Is(err, repository.ErrBatchNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	details, err := h.batches.ListDetails(r.Context(), batchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rollbacks, err := h.rollbacks.ListRollbacks(r.Context(), batchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	detailResp := make([]BatchDetailResponse, 0, len(details))
	for _, d := range details {
		detailResp = append(detailResp, BatchDetailResponse{
			DatabaseName:      d.DatabaseName,
			SchemaName:        d.SchemaName,
			DatabaseType:      string(d.DatabaseType),
			Status:            string(d.Status),
			MigrationsApplied: d.MigrationsApplied,
			ExecutionTimeMs:   d.ExecutionTime.Milliseconds(),
			Region:            d.Region,
			Error:             d.Error,
		})
	}

	rollbackResp := make([]RollbackResponse, 0, len(rollbacks))
	for _, rb := range rollbacks {
		rollbackResp = append(rollbackResp, RollbackResponse{
			DatabaseName:   rb.DatabaseName,
			SchemaName:     rb.SchemaName,
			RolledBackFrom: rb.RolledBackFrom,
			Reason:         rb.Reason,
			Status:         string(rb.Status),
			CreatedAt:      rb.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"batch":     toBatchResponse(batch),
		"details":   detailResp,
		"rollbacks": rollbackResp,
	})
}

func toPlanDatabase(cfg *model.MigrationConfig) PlanDatabase {
	return PlanDatabase{
		Name:         cfg.Name,
		DatabaseName: cfg.DatabaseName,
		Host:         cfg.Host,
		Region:       cfg.Region,
		Type:         string(cfg.Type),
		MigrationSet: string(cfg.Set),
		Schemas:      cfg.Schemas,
	}
}

func toBatchResponse(b *model.MigrationBatch) BatchResponse {
	resp := BatchResponse{
		ID:              b.ID,
		Name:            b.Name,
		Status:          string(b.Status),
		TotalOperations: b.TotalOperations,
		DatabaseCount:   b.DatabaseCount,
		SchemaCount:     b.SchemaCount,
		SuccessfulCount: b.SuccessfulCount,
		FailedCount:     b.FailedCount,
		ExecutedBy:      b.ExecutedBy,
		StartedAt:       b.StartedAt.Format(time.RFC3339),
		Error:           b.Error,
	}
	if b.CompletedAt != nil {
		resp.CompletedAt = b.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
