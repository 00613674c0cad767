package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/himastat/siorma-api/internal/models"
)

// reviewableStatuses guards decision writes: only rows whose raw status
// normalizes to "submitted" may be decided. The legacy "pending" alias is
// matched here so the store-level guard agrees with models.NormalizeStatus.
const reviewableStatuses = `('pending', 'submitted')`

// DecisionParams groups the columns written by an approval decision.
type DecisionParams struct {
	ID         int64
	Status     models.SubmissionStatus
	Note       *string
	ReviewedBy string
	ReviewedAt time.Time
}

// ReportRepository persists activity report rows.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new report row and fills the generated id.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reports (program_id, submitted_by, title, status, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		report.ProgramID, report.SubmittedBy, report.Title, report.Status, report.Note, report.CreatedAt,
	).Scan(&report.ID); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// GetByID fetches a report by identifier.
func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*models.Report, error) {
	const query = `SELECT id, program_id, submitted_by, title, status, note, reviewed_by, reviewed_at, created_at
FROM reports WHERE id = $1`
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// List returns report rows matching the filter (latest first).
func (r *ReportRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Report, error) {
	query := `SELECT id, program_id, submitted_by, title, status, note, reviewed_by, reviewed_at, created_at
FROM reports`
	args := make([]interface{}, 0, 2)
	if filter.SubmittedBy != "" {
		args = append(args, filter.SubmittedBy)
		query += fmt.Sprintf(" WHERE submitted_by = $%d", len(args))
	} else if filter.ProgramID > 0 {
		args = append(args, filter.ProgramID)
		query += fmt.Sprintf(" WHERE program_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"

	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// ApplyDecision conditionally writes the decision outcome. The WHERE clause
// is the single arbiter against concurrent decisions on the same row: when no
// row matches, the report was either absent or no longer awaiting review, and
// sql.ErrNoRows is returned for the caller to disambiguate.
func (r *ReportRepository) ApplyDecision(ctx context.Context, params DecisionParams) error {
	query := `UPDATE reports SET status = $1, note = $2, reviewed_by = $3, reviewed_at = $4
WHERE id = $5 AND status IN ` + reviewableStatuses
	result, err := r.db.ExecContext(ctx, query,
		string(params.Status), params.Note, params.ReviewedBy, params.ReviewedAt, params.ID,
	)
	if err != nil {
		return fmt.Errorf("apply report decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check report decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
