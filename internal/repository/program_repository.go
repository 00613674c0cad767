package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/himastat/siorma-api/internal/models"
)

// ProgramRepository handles persistence for programs-of-work.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository creates a new repository instance.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// List returns programs matching filters with pagination metadata.
func (r *ProgramRepository) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error) {
	base := "FROM programs WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Division != "" {
		conditions = append(conditions, fmt.Sprintf("division = $%d", len(args)+1))
		args = append(args, filter.Division)
	}
	if filter.Period != "" {
		conditions = append(conditions, fmt.Sprintf("period = $%d", len(args)+1))
		args = append(args, filter.Period)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT id, title, division, period, lead_user_id, description, created_at, updated_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d", base, size, offset)
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list programs: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count programs: %w", err)
	}

	return programs, total, nil
}

// FindByID returns a program by id.
func (r *ProgramRepository) FindByID(ctx context.Context, id int64) (*models.Program, error) {
	const query = `SELECT id, title, division, period, lead_user_id, description, created_at, updated_at FROM programs WHERE id = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// Create inserts a program row and fills the generated id.
func (r *ProgramRepository) Create(ctx context.Context, program *models.Program) error {
	now := time.Now().UTC()
	if program.CreatedAt.IsZero() {
		program.CreatedAt = now
	}
	program.UpdatedAt = now
	const query = `INSERT INTO programs (title, division, period, lead_user_id, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		program.Title, program.Division, program.Period, program.LeadUserID, program.Description,
		program.CreatedAt, program.UpdatedAt,
	).Scan(&program.ID); err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// Update persists changes to a program row.
func (r *ProgramRepository) Update(ctx context.Context, program *models.Program) error {
	program.UpdatedAt = time.Now().UTC()
	const query = `UPDATE programs SET title = $1, division = $2, period = $3, lead_user_id = $4, description = $5, updated_at = $6
WHERE id = $7`
	if _, err := r.db.ExecContext(ctx, query,
		program.Title, program.Division, program.Period, program.LeadUserID, program.Description,
		program.UpdatedAt, program.ID,
	); err != nil {
		return fmt.Errorf("update program: %w", err)
	}
	return nil
}

// CountSubmissions returns how many reports and LPJ rows reference the program.
func (r *ProgramRepository) CountSubmissions(ctx context.Context, id int64) (int, error) {
	const query = `SELECT
		(SELECT COUNT(*) FROM reports WHERE program_id = $1) +
		(SELECT COUNT(*) FROM lpj WHERE program_id = $1)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, id); err != nil {
		return 0, fmt.Errorf("count program submissions: %w", err)
	}
	return total, nil
}

// Delete removes a program row.
func (r *ProgramRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM programs WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete program: %w", err)
	}
	return nil
}
