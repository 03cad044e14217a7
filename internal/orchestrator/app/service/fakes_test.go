package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/model"
	"github.com/schemafleet/schemafleet/internal/orchestrator/domain/repository"
	"github.com/schemafleet/schemafleet/internal/orchestrator/flyway"
	"github.com/schemafleet/schemafleet/internal/shared/events"
)

type fakeRegistry struct {
	records []model.ConnectionRecord
	regions map[string]*model.Region
	listErr error
}

func (f *fakeRegistry) ListActiveHealthy(ctx context.Context) ([]model.ConnectionRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeRegistry) GetRegion(ctx context.Context, regionID string) (*model.Region, error) {
	region, ok := f.regions[regionID]
	if !ok {
		return nil, repository.ErrRegionNotFound
	}
	return region, nil
}

type fakeDecryptor struct {
	plaintexts map[string]string
}

func (f *fakeDecryptor) Decrypt(value string) (string, error) {
	if plaintext, ok := f.plaintexts[value]; ok {
		return plaintext, nil
	}
	return "", errors.New("cannot decrypt")
}

type fakeProber struct {
	unreachable map[string]bool
	versions    map[string]string
}

func (f *fakeProber) TestConnection(ctx context.Context, cfg *model.MigrationConfig) bool {
	return !f.unreachable[cfg.DatabaseName]
}

func (f *fakeProber) CurrentVersion(ctx context.Context, cfg *model.MigrationConfig, schema string) string {
	return f.versions[cfg.DatabaseName+"/"+schema]
}

type runCall struct {
	Config flyway.Config
	Verb   flyway.Verb
}

type fakeRunner struct {
	missing map[string]bool
	failOn  map[string]error
	applied int
	calls   []runCall
}

func (f *fakeRunner) MigrationsExist(location string) bool {
	return !f.missing[location]
}

func (f *fakeRunner) Run(ctx context.Context, cfg flyway.Config, verb flyway.Verb) (*flyway.RunResult, error) {
	f.calls = append(f.calls, runCall{Config: cfg, Verb: verb})
	if err := f.failOn[cfg.URL+"/"+cfg.Schema]; err != nil {
		return nil, err
	}
	applied := f.applied
	if applied == 0 {
		applied = 1
	}
	return &flyway.RunResult{
		Applied:  applied,
		Output:   fmt.Sprintf("Successfully applied %d migrations", applied),
		Duration: 10 * time.Millisecond,
	}, nil
}

type memBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*model.MigrationBatch
	details []*model.MigrationBatchDetail

	createBatchErr error
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: make(map[string]*model.MigrationBatch)}
}

func (r *memBatchRepo) CreateBatch(ctx context.Context, batch *model.MigrationBatch) error {
	if r.createBatchErr != nil {
		return r.createBatchErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *batch
	r.batches[batch.ID] = &copied
	return nil
}

func (r *memBatchRepo) CreateDetail(ctx context.Context, detail *model.MigrationBatchDetail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *detail
	r.details = append(r.details, &copied)
	return nil
}

func (r *memBatchRepo) FinalizeBatch(ctx context.Context, batchID string, status model.BatchStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, ok := r.batches[batchID]
	if !ok {
		return repository.ErrBatchNotFound
	}

	now := time.Now().UTC()
	batch.Status = status
	batch.CompletedAt = &now

	if errMsg == "" {
		var success, failed int
		for _, d := range r.details {
			if d.BatchID != batchID {
				continue
			}
			if d.Status == model.DetailStatusSuccess {
				success++
			} else {
				failed++
			}
		}
		batch.SuccessfulCount = success
		batch.FailedCount = failed
	} else {
		batch.Error = errMsg
	}

	return nil
}

func (r *memBatchRepo) GetBatch(ctx context.Context, batchID string) (*model.MigrationBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchID]
	if !ok {
		return nil, repository.ErrBatchNotFound
	}
	copied := *batch
	return &copied, nil
}

func (r *memBatchRepo) ListBatches(ctx context.Context, limit int) ([]model.MigrationBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MigrationBatch
	for _, b := range r.batches {
		out = append(out, *b)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memBatchRepo) ListDetails(ctx context.Context, batchID string) ([]model.MigrationBatchDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MigrationBatchDetail
	for _, d := range r.details {
		if d.BatchID == batchID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *memBatchRepo) detailsFor(batchID string) []*model.MigrationBatchDetail {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.MigrationBatchDetail
	for _, d := range r.details {
		if d.BatchID == batchID {
			out = append(out, d)
		}
	}
	return out
}

type memRollbackRepo struct {
	mu        sync.Mutex
	rollbacks []*model.MigrationRollback
	createErr error
}

func (r *memRollbackRepo) CreateRollback(ctx context.Context, rollback *model.MigrationRollback) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *rollback
	r.rollbacks = append(r.rollbacks, &copied)
	return nil
}

func (r *memRollbackRepo) ListRollbacks(ctx context.Context, batchID string) ([]model.MigrationRollback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MigrationRollback
	for _, rb := range r.rollbacks {
		if rb.BatchID == batchID {
			out = append(out, *rb)
		}
	}
	return out, nil
}

type capturedEvents struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (c *capturedEvents) Publish(ctx context.Context, event *events.Event) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturedEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}
