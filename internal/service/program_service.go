package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/himastat/siorma-api/internal/models"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
)

type programRepository interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, int, error)
	FindByID(ctx context.Context, id int64) (*models.Program, error)
	Create(ctx context.Context, program *models.Program) error
	Update(ctx context.Context, program *models.Program) error
	Delete(ctx context.Context, id int64) error
	CountSubmissions(ctx context.Context, id int64) (int, error)
}

// CreateProgramRequest captures fields for registering a program of work.
type CreateProgramRequest struct {
	Title       string `json:"title" validate:"required"`
	Division    string `json:"division" validate:"required"`
	Period      string `json:"period" validate:"required"`
	LeadUserID  string `json:"lead_user_id" validate:"required"`
	Description string `json:"description"`
}

// UpdateProgramRequest modifies program fields.
type UpdateProgramRequest struct {
	Title       string `json:"title" validate:"required"`
	Division    string `json:"division" validate:"required"`
	Period      string `json:"period" validate:"required"`
	LeadUserID  string `json:"lead_user_id" validate:"required"`
	Description string `json:"description"`
}

// ProgramService handles program-of-work workflows.
type ProgramService struct {
	repo      programRepository
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProgramService creates a new program service.
func NewProgramService(repo programRepository, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *ProgramService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgramService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns paginated programs.
func (s *ProgramService) List(ctx context.Context, filter models.ProgramFilter) ([]models.Program, *models.Pagination, error) {
	programs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return programs, pagination, nil
}

// Get returns a program by identifier.
func (s *ProgramService) Get(ctx context.Context, id int64) (*models.Program, error) {
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	return program, nil
}

// Create registers a new program of work.
func (s *ProgramService) Create(ctx context.Context, req CreateProgramRequest, actor *models.JWTClaims) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}

	program := &models.Program{
		Title:       strings.TrimSpace(req.Title),
		Division:    strings.TrimSpace(req.Division),
		Period:      strings.TrimSpace(req.Period),
		LeadUserID:  req.LeadUserID,
		Description: req.Description,
	}

	if err := s.repo.Create(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}

	s.emitAudit(ctx, actor, models.AuditActionProgramCreate, program.ID)
	return program, nil
}

// Update modifies an existing program.
func (s *ProgramService) Update(ctx context.Context, id int64, req UpdateProgramRequest, actor *models.JWTClaims) (*models.Program, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}

	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	program.Title = strings.TrimSpace(req.Title)
	program.Division = strings.TrimSpace(req.Division)
	program.Period = strings.TrimSpace(req.Period)
	program.LeadUserID = req.LeadUserID
	program.Description = req.Description

	if err := s.repo.Update(ctx, program); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program")
	}

	s.emitAudit(ctx, actor, models.AuditActionProgramUpdate, program.ID)
	return program, nil
}

// Delete removes a program when nothing has been submitted for it.
func (s *ProgramService) Delete(ctx context.Context, id int64, actor *models.JWTClaims) error {
	program, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	count, err := s.repo.CountSubmissions(ctx, program.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check program submissions")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "program has submissions attached")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete program")
	}

	s.emitAudit(ctx, actor, models.AuditActionProgramDelete, id)
	return nil
}

func (s *ProgramService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, programID int64) {
	if s.audit == nil || actor == nil {
		return
	}
	resourceID := fmt.Sprintf("%d", programID)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "program",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record program audit log", zap.Error(err))
	}
}
