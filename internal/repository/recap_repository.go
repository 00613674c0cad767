package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/himastat/siorma-api/internal/models"
)

// RecapRepository persists recap export job metadata.
type RecapRepository struct {
	db *sqlx.DB
}

// NewRecapRepository constructs the repository.
func NewRecapRepository(db *sqlx.DB) *RecapRepository {
	return &RecapRepository{db: db}
}

// Create inserts a new recap job row with generated defaults.
func (r *RecapRepository) Create(ctx context.Context, job *models.RecapJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.RecapStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO recap_jobs (id, params, status, progress, result_url, created_by, created_at, finished_at, error_message)
VALUES (:id, :params, :status, :progress, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create recap job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *RecapRepository) GetByID(ctx context.Context, id string) (*models.RecapJob, error) {
	const query = `SELECT id, params, status, progress, result_url, created_by, created_at, finished_at, error_message
FROM recap_jobs WHERE id = $1`
	var job models.RecapJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateRecapJobParams defines the mutable fields.
type UpdateRecapJobParams struct {
	Status       *models.RecapStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a job row.
func (r *RecapRepository) Update(ctx context.Context, id string, params UpdateRecapJobParams) error {
	set := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	argPos := 1

	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *params.Status)
		argPos++
	}
	if params.Progress != nil {
		set = append(set, fmt.Sprintf("progress = $%d", argPos))
		args = append(args, *params.Progress)
		argPos++
	}
	if params.ResultURL != nil {
		set = append(set, fmt.Sprintf("result_url = $%d", argPos))
		args = append(args, *params.ResultURL)
		argPos++
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", argPos))
		args = append(args, *params.ErrorMessage)
		argPos++
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", argPos))
		args = append(args, *params.FinishedAt)
		argPos++
	}

	if len(set) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE recap_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), argPos)
	args = append(args, id)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update recap job: %w", err)
	}
	return nil
}

// ListQueued fetches queued jobs (used for cold start recovery).
func (r *RecapRepository) ListQueued(ctx context.Context, limit int) ([]models.RecapJob, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, params, status, progress, result_url, created_by, created_at, finished_at, error_message
FROM recap_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var jobs []models.RecapJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued recap jobs: %w", err)
	}
	return jobs, nil
}

// ListDecided returns decided submissions of both kinds for recap datasets.
func (r *RecapRepository) ListDecided(ctx context.Context, period string, division *string) ([]models.Report, []models.LPJ, error) {
	reportQuery := `SELECT r.id, r.program_id, r.submitted_by, r.title, r.status, r.note, r.reviewed_by, r.reviewed_at, r.created_at
FROM reports r JOIN programs p ON p.id = r.program_id
WHERE r.status IN ('approved', 'rejected') AND p.period = $1`
	lpjQuery := `SELECT l.id, l.program_id, p.title AS program_title, l.submitted_by, l.status, l.note, l.reviewed_by, l.reviewed_at, l.created_at
FROM lpj l JOIN programs p ON p.id = l.program_id
WHERE l.status IN ('approved', 'rejected') AND p.period = $1`
	args := []interface{}{period}
	if division != nil && *division != "" {
		reportQuery += " AND p.division = $2"
		lpjQuery += " AND p.division = $2"
		args = append(args, *division)
	}
	reportQuery += " ORDER BY r.reviewed_at DESC"
	lpjQuery += " ORDER BY l.reviewed_at DESC"

	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, reportQuery, args...); err != nil {
		return nil, nil, fmt.Errorf("list decided reports: %w", err)
	}
	var lpjs []models.LPJ
	if err := r.db.SelectContext(ctx, &lpjs, lpjQuery, args...); err != nil {
		return nil, nil, fmt.Errorf("list decided lpj: %w", err)
	}
	return reports, lpjs, nil
}
