package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/himastat/siorma-api/internal/dto"
	"github.com/himastat/siorma-api/internal/models"
	"github.com/himastat/siorma-api/internal/repository"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
	"github.com/himastat/siorma-api/pkg/jobs"
)

type recapJobStore interface {
	Create(ctx context.Context, job *models.RecapJob) error
	GetByID(ctx context.Context, id string) (*models.RecapJob, error)
	Update(ctx context.Context, id string, params repository.UpdateRecapJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.RecapJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type recapGenerator interface {
	Generate(ctx context.Context, job *models.RecapJob) (*RecapResult, error)
}

// RecapService orchestrates decision recap export jobs.
type RecapService struct {
	repo     recapJobStore
	queue    jobDispatcher
	exporter *RecapExportService
	logger   *zap.Logger
	cfg      RecapServiceConfig
}

// RecapServiceConfig governs queue recovery and cleanup.
type RecapServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// RecapDownload aggregates resolved download data.
type RecapDownload struct {
	File      *os.File
	Filename  string
	Format    models.RecapFormat
	ExpiresAt time.Time
}

// NewRecapService constructs the recap service.
func NewRecapService(repo recapJobStore, queue jobDispatcher, exporter *RecapExportService, logger *zap.Logger, cfg RecapServiceConfig) *RecapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &RecapService{
		repo:     repo,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateJob validates the request, persists the job, and enqueues processing.
func (s *RecapService) CreateJob(ctx context.Context, req dto.RecapRequest, actor *models.JWTClaims) (*dto.RecapJobResponse, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing identity")
	}
	if actor.Role != models.RoleKetua {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the ketua may export recaps")
	}
	if strings.TrimSpace(req.Period) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period is required")
	}
	if req.Format != models.RecapFormatCSV && req.Format != models.RecapFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported recap format")
	}

	job := &models.RecapJob{
		Params:    models.RecapJobParams{Period: req.Period, Division: req.Division, Format: req.Format},
		Status:    models.RecapStatusQueued,
		Progress:  0,
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create recap job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "recap"}); err != nil {
		status := models.RecapStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateRecapJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue recap job")
	}
	return &dto.RecapJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to clients.
func (s *RecapService) GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*dto.RecapStatusResponse, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing identity")
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recap job")
	}
	if actor.Role != models.RoleKetua && job.CreatedBy != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.RecapStatusResponse{
		ID:       job.ID,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.ResultURL != nil {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the token and opens the stored export file.
func (s *RecapService) ResolveDownload(ctx context.Context, token string) (*RecapDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recap job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.RecapStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "recap not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &RecapDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *RecapService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued recap jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "recap"}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *RecapService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
					s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
				} else if len(removed) > 0 {
					s.logger.Sugar().Infow("expired recap exports removed", "count", len(removed))
				}
			}
		}
	}()
}

// RecapWorker bridges queue jobs to the exporter.
type RecapWorker struct {
	repo       recapJobStore
	exporter   recapGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewRecapWorker constructs a worker.
func NewRecapWorker(repo recapJobStore, exporter recapGenerator, maxRetries int, logger *zap.Logger) *RecapWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RecapWorker{
		repo:       repo,
		exporter:   exporter,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job.
func (w *RecapWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.RecapStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateRecapJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}
	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			failed := models.RecapStatusFailed
			progress = 100
			now := time.Now().UTC()
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateRecapJobParams{
				Status:       &failed,
				Progress:     &progress,
				ErrorMessage: &msg,
				FinishedAt:   &now,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job failed", "job_id", job.ID, "error", updateErr)
			}
		} else {
			queued := models.RecapStatusQueued
			reset := 0
			if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateRecapJobParams{
				Status:       &queued,
				Progress:     &reset,
				ErrorMessage: &msg,
			}); updateErr != nil {
				w.logger.Sugar().Warnw("failed to mark job queued", "job_id", job.ID, "error", updateErr)
			}
		}
		return err
	}
	finished := models.RecapStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := result.URL
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateRecapJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	return nil
}
