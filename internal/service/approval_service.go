package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/himastat/siorma-api/internal/dto"
	"github.com/himastat/siorma-api/internal/models"
	"github.com/himastat/siorma-api/internal/repository"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
)

type reportDecider interface {
	GetByID(ctx context.Context, id int64) (*models.Report, error)
	ApplyDecision(ctx context.Context, params repository.DecisionParams) error
}

type lpjDecider interface {
	GetByID(ctx context.Context, id int64) (*models.LPJ, error)
	ApplyDecision(ctx context.Context, params repository.DecisionParams) error
}

type feedInvalidator interface {
	InvalidateFeeds(ctx context.Context, submitterID string)
}

// ApprovalService is the decision state machine over submitted documents.
// A document may move from submitted to approved or rejected exactly once;
// the repositories' conditional write is the arbiter under concurrency.
type ApprovalService struct {
	reports reportDecider
	lpjs    lpjDecider
	audit   auditLogger
	feeds   feedInvalidator
	metrics *MetricsService
	logger  *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(reports reportDecider, lpjs lpjDecider, audit auditLogger, feeds feedInvalidator, metrics *MetricsService, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalService{
		reports: reports,
		lpjs:    lpjs,
		audit:   audit,
		feeds:   feeds,
		metrics: metrics,
		logger:  logger,
	}
}

// Decide applies the approver decision to the record behind a composite feed
// id. All guards run before any mutation: role, decision shape, rejection
// note. A decision that no longer applies (already decided, still a draft,
// or decided concurrently) surfaces as INVALID_TRANSITION and is never
// retried here.
func (s *ApprovalService) Decide(ctx context.Context, compositeID string, req dto.DecisionRequest, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleKetua {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the ketua may decide submissions")
	}
	if req.Decision != models.StatusApproved && req.Decision != models.StatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approved or rejected")
	}

	var note *string
	if req.Decision == models.StatusRejected {
		if strings.TrimSpace(req.Note) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection note is required")
		}
		// Stored verbatim; only blankness is validated.
		note = &req.Note
	}

	kind, id, err := models.DecomposeSubmissionID(compositeID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no submission matches the given id")
	}

	params := repository.DecisionParams{
		ID:         id,
		Status:     req.Decision,
		Note:       note,
		ReviewedBy: actor.UserID,
		ReviewedAt: time.Now().UTC(),
	}

	submission, err := s.apply(ctx, kind, params)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDecision(string(kind), string(req.Decision))
	s.emitAudit(ctx, actor.UserID, submission, note)
	if s.feeds != nil {
		s.feeds.InvalidateFeeds(ctx, submission.SubmittedBy)
	}
	return submission, nil
}

func (s *ApprovalService) apply(ctx context.Context, kind models.SubmissionKind, params repository.DecisionParams) (*models.Submission, error) {
	switch kind {
	case models.KindReport:
		if err := s.reports.ApplyDecision(ctx, params); err != nil {
			return nil, s.decisionError(ctx, kind, params.ID, err)
		}
		report, err := s.reports.GetByID(ctx, params.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload report")
		}
		submission := models.FromReport(*report)
		return &submission, nil
	case models.KindLPJ:
		if err := s.lpjs.ApplyDecision(ctx, params); err != nil {
			return nil, s.decisionError(ctx, kind, params.ID, err)
		}
		lpj, err := s.lpjs.GetByID(ctx, params.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload lpj")
		}
		submission := models.FromLPJ(*lpj)
		return &submission, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no submission matches the given id")
	}
}

// decisionError disambiguates a zero-row conditional write: the record is
// either missing entirely or not in a reviewable state.
func (s *ApprovalService) decisionError(ctx context.Context, kind models.SubmissionKind, id int64, err error) error {
	if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply decision")
	}
	exists, lookupErr := s.exists(ctx, kind, id)
	if lookupErr != nil {
		return appErrors.Wrap(lookupErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify submission state")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "no submission matches the given id")
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, "submission is not awaiting a decision")
}

func (s *ApprovalService) exists(ctx context.Context, kind models.SubmissionKind, id int64) (bool, error) {
	var err error
	switch kind {
	case models.KindReport:
		_, err = s.reports.GetByID(ctx, id)
	case models.KindLPJ:
		_, err = s.lpjs.GetByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *ApprovalService) emitAudit(ctx context.Context, reviewerID string, submission *models.Submission, note *string) {
	if s.audit == nil {
		return
	}
	var newValues []byte
	if note != nil {
		newValues = []byte(*note)
	}
	log := &models.AuditLog{
		UserID:     &reviewerID,
		Action:     models.AuditActionSubmissionDecide,
		Resource:   "submission",
		ResourceID: &submission.ID,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "approval-service",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
