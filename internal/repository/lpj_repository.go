package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/himastat/siorma-api/internal/models"
)

// LPJRepository persists post-activity financial report rows.
type LPJRepository struct {
	db *sqlx.DB
}

// NewLPJRepository constructs the repository.
func NewLPJRepository(db *sqlx.DB) *LPJRepository {
	return &LPJRepository{db: db}
}

// Create inserts a new LPJ row and fills the generated id.
func (r *LPJRepository) Create(ctx context.Context, lpj *models.LPJ) error {
	if lpj.CreatedAt.IsZero() {
		lpj.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lpj (program_id, submitted_by, status, note, created_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		lpj.ProgramID, lpj.SubmittedBy, lpj.Status, lpj.Note, lpj.CreatedAt,
	).Scan(&lpj.ID); err != nil {
		return fmt.Errorf("create lpj: %w", err)
	}
	return nil
}

// GetByID fetches an LPJ with its owning program title joined in.
func (r *LPJRepository) GetByID(ctx context.Context, id int64) (*models.LPJ, error) {
	const query = `SELECT l.id, l.program_id, p.title AS program_title, l.submitted_by, l.status, l.note,
       l.reviewed_by, l.reviewed_at, l.created_at
FROM lpj l JOIN programs p ON p.id = l.program_id
WHERE l.id = $1`
	var lpj models.LPJ
	if err := r.db.GetContext(ctx, &lpj, query, id); err != nil {
		return nil, err
	}
	return &lpj, nil
}

// List returns LPJ rows matching the filter (latest first).
func (r *LPJRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.LPJ, error) {
	query := `SELECT l.id, l.program_id, p.title AS program_title, l.submitted_by, l.status, l.note,
       l.reviewed_by, l.reviewed_at, l.created_at
FROM lpj l JOIN programs p ON p.id = l.program_id`
	args := make([]interface{}, 0, 2)
	if filter.SubmittedBy != "" {
		args = append(args, filter.SubmittedBy)
		query += fmt.Sprintf(" WHERE l.submitted_by = $%d", len(args))
	} else if filter.ProgramID > 0 {
		args = append(args, filter.ProgramID)
		query += fmt.Sprintf(" WHERE l.program_id = $%d", len(args))
	}
	query += " ORDER BY l.created_at DESC, l.id DESC"

	var lpjs []models.LPJ
	if err := r.db.SelectContext(ctx, &lpjs, query, args...); err != nil {
		return nil, fmt.Errorf("list lpj: %w", err)
	}
	return lpjs, nil
}

// ApplyDecision conditionally writes the decision outcome, mirroring the
// report repository guard. RowsAffected == 0 maps to sql.ErrNoRows.
func (r *LPJRepository) ApplyDecision(ctx context.Context, params DecisionParams) error {
	query := `UPDATE lpj SET status = $1, note = $2, reviewed_by = $3, reviewed_at = $4
WHERE id = $5 AND status IN ` + reviewableStatuses
	result, err := r.db.ExecContext(ctx, query,
		string(params.Status), params.Note, params.ReviewedBy, params.ReviewedAt, params.ID,
	)
	if err != nil {
		return fmt.Errorf("apply lpj decision: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check lpj decision rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
