package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/himastat/siorma-api/internal/dto"
	"github.com/himastat/siorma-api/internal/models"
	"github.com/himastat/siorma-api/internal/repository"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
	"github.com/himastat/siorma-api/pkg/jobs"
)

type recapStoreStub struct {
	mu     sync.Mutex
	jobs   map[string]*models.RecapJob
	nextID int
}

func newRecapStoreStub() *recapStoreStub {
	return &recapStoreStub{jobs: make(map[string]*models.RecapJob)}
}

func (s *recapStoreStub) Create(ctx context.Context, job *models.RecapJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	job.ID = fmt.Sprintf("job-%d", s.nextID)
	job.CreatedAt = time.Now().UTC()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *recapStoreStub) GetByID(ctx context.Context, id string) (*models.RecapJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (s *recapStoreStub) Update(ctx context.Context, id string, params repository.UpdateRecapJobParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (s *recapStoreStub) ListQueued(ctx context.Context, limit int) ([]models.RecapJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := make([]models.RecapJob, 0)
	for _, job := range s.jobs {
		if job.Status == models.RecapStatusQueued {
			queued = append(queued, *job)
		}
	}
	if len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

type dispatcherStub struct {
	enqueued []jobs.Job
	err      error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.enqueued = append(d.enqueued, job)
	return nil
}

type generatorStub struct {
	result *RecapResult
	err    error
	calls  int
}

func (g *generatorStub) Generate(ctx context.Context, job *models.RecapJob) (*RecapResult, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func TestRecapServiceCreateJob(t *testing.T) {
	store := newRecapStoreStub()
	queue := &dispatcherStub{}
	svc := NewRecapService(store, queue, nil, nil, RecapServiceConfig{})

	resp, err := svc.CreateJob(context.Background(), dto.RecapRequest{
		Period: "2026-ganjil", Format: models.RecapFormatCSV,
	}, ketuaClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RecapStatusQueued, resp.Status)
	assert.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp.ID, queue.enqueued[0].ID)
}

func TestRecapServiceCreateJobGuards(t *testing.T) {
	store := newRecapStoreStub()
	svc := NewRecapService(store, &dispatcherStub{}, nil, nil, RecapServiceConfig{})

	_, err := svc.CreateJob(context.Background(), dto.RecapRequest{Period: "2026", Format: models.RecapFormatCSV}, nil)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateJob(context.Background(), dto.RecapRequest{Period: "2026", Format: models.RecapFormatCSV},
		&models.JWTClaims{UserID: "a-1", Role: models.RoleAnggota})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateJob(context.Background(), dto.RecapRequest{Period: "   ", Format: models.RecapFormatCSV}, ketuaClaims())
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateJob(context.Background(), dto.RecapRequest{Period: "2026", Format: "xlsx"}, ketuaClaims())
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecapServiceCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	store := newRecapStoreStub()
	queue := &dispatcherStub{err: errors.New("queue full")}
	svc := NewRecapService(store, queue, nil, nil, RecapServiceConfig{})

	_, err := svc.CreateJob(context.Background(), dto.RecapRequest{Period: "2026", Format: models.RecapFormatPDF}, ketuaClaims())
	require.Error(t, err)

	stored, err := store.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecapStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
}

func TestRecapServiceGetStatusVisibility(t *testing.T) {
	store := newRecapStoreStub()
	svc := NewRecapService(store, &dispatcherStub{}, nil, nil, RecapServiceConfig{})

	job := &models.RecapJob{
		Params:    models.RecapJobParams{Period: "2026", Format: models.RecapFormatCSV},
		Status:    models.RecapStatusQueued,
		CreatedBy: "koordinator-1",
	}
	require.NoError(t, store.Create(context.Background(), job))

	// The ketua sees every job; others only their own.
	_, err := svc.GetStatus(context.Background(), job.ID, ketuaClaims())
	require.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), job.ID, &models.JWTClaims{UserID: "koordinator-1", Role: models.RoleKoordinator})
	require.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), job.ID, &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetStatus(context.Background(), "job-404", ketuaClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRecapServiceRecoverPendingJobs(t *testing.T) {
	store := newRecapStoreStub()
	queue := &dispatcherStub{}
	svc := NewRecapService(store, queue, nil, nil, RecapServiceConfig{})

	require.NoError(t, store.Create(context.Background(), &models.RecapJob{Status: models.RecapStatusQueued, CreatedBy: "ketua-1"}))
	finished := &models.RecapJob{Status: models.RecapStatusFinished, CreatedBy: "ketua-1"}
	require.NoError(t, store.Create(context.Background(), finished))

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "job-1", queue.enqueued[0].ID)
}

func TestRecapWorkerHandleSuccess(t *testing.T) {
	store := newRecapStoreStub()
	job := &models.RecapJob{Status: models.RecapStatusQueued, CreatedBy: "ketua-1",
		Params: models.RecapJobParams{Period: "2026", Format: models.RecapFormatCSV}}
	require.NoError(t, store.Create(context.Background(), job))

	gen := &generatorStub{result: &RecapResult{URL: "/api/v1/recaps/download/tok", Format: models.RecapFormatCSV}}
	worker := NewRecapWorker(store, gen, 3, nil)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: job.ID, Type: "recap"}))

	stored, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecapStatusFinished, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	require.NotNil(t, stored.ResultURL)
	assert.Equal(t, "/api/v1/recaps/download/tok", *stored.ResultURL)
	require.NotNil(t, stored.FinishedAt)
}

func TestRecapWorkerHandleRequeuesThenFails(t *testing.T) {
	store := newRecapStoreStub()
	job := &models.RecapJob{Status: models.RecapStatusQueued, CreatedBy: "ketua-1",
		Params: models.RecapJobParams{Period: "2026", Format: models.RecapFormatPDF}}
	require.NoError(t, store.Create(context.Background(), job))

	gen := &generatorStub{err: errors.New("render failed")}
	worker := NewRecapWorker(store, gen, 2, nil)

	// First attempt goes back to the queue for a retry.
	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 1}))
	stored, _ := store.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.RecapStatusQueued, stored.Status)
	assert.Equal(t, 0, stored.Progress)

	// Final attempt gives up permanently.
	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 2}))
	stored, _ = store.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.RecapStatusFailed, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "render failed", *stored.ErrorMessage)
	assert.Equal(t, 2, gen.calls)
}
