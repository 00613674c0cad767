package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/himastat/siorma-api/internal/dto"
	"github.com/himastat/siorma-api/internal/models"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
)

type reportStore interface {
	Create(ctx context.Context, report *models.Report) error
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Report, error)
}

type lpjStore interface {
	Create(ctx context.Context, lpj *models.LPJ) error
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.LPJ, error)
}

type programFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Program, error)
}

const (
	queueCacheKey      = "submissions:queue"
	feedCacheKeyPrefix = "submissions:feed:"
)

// SubmissionService aggregates the two concrete document kinds into the
// approver queue and the per-member feed. Both views project rows through
// the same normalization path so they can never disagree about a status.
type SubmissionService struct {
	reports  reportStore
	lpjs     lpjStore
	programs programFinder
	audit    auditLogger
	cache    *CacheService
	logger   *zap.Logger
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// NewSubmissionService constructs the service.
func NewSubmissionService(reports reportStore, lpjs lpjStore, programs programFinder, audit auditLogger, cache *CacheService, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		reports:  reports,
		lpjs:     lpjs,
		programs: programs,
		audit:    audit,
		cache:    cache,
		logger:   logger,
	}
}

// Create stores a new report or LPJ on behalf of the submitter. A document is
// saved as a draft (NULL status) unless the submitter chose to submit it
// immediately.
func (s *SubmissionService) Create(ctx context.Context, req dto.CreateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.ProgramID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "programId is required")
	}
	program, err := s.programs.FindByID(ctx, req.ProgramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}

	var status *string
	if req.Submit {
		submitted := string(models.StatusSubmitted)
		status = &submitted
	}

	var submission models.Submission
	switch req.Kind {
	case models.KindReport:
		title := strings.TrimSpace(req.Title)
		if title == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "title is required for reports")
		}
		report := &models.Report{
			ProgramID:   req.ProgramID,
			SubmittedBy: actor.UserID,
			Title:       title,
			Status:      status,
		}
		if err := s.reports.Create(ctx, report); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report")
		}
		submission = models.FromReport(*report)
	case models.KindLPJ:
		lpj := &models.LPJ{
			ProgramID:    req.ProgramID,
			ProgramTitle: program.Title,
			SubmittedBy:  actor.UserID,
			Status:       status,
		}
		if err := s.lpjs.Create(ctx, lpj); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lpj")
		}
		submission = models.FromLPJ(*lpj)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "kind must be REPORT or LPJ")
	}

	s.emitAudit(ctx, actor.UserID, models.AuditActionSubmissionCreate, submission.ID)
	s.InvalidateFeeds(ctx, actor.UserID)
	return &submission, nil
}

// ApprovalQueue returns every submission in the organization partitioned into
// pending (awaiting a decision) and history (already decided). Drafts appear
// in neither partition. Approver only.
func (s *SubmissionService) ApprovalQueue(ctx context.Context, actor *models.JWTClaims) (*models.ApprovalQueue, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleKetua {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the ketua may review submissions")
	}

	var cached models.ApprovalQueue
	if hit, _ := s.cache.Get(ctx, queueCacheKey, &cached); hit {
		return &cached, nil
	}

	all, err := s.fetchSubmissions(ctx, models.SubmissionFilter{})
	if err != nil {
		return nil, err
	}

	queue := &models.ApprovalQueue{
		Pending: make([]models.Submission, 0, len(all)),
		History: make([]models.Submission, 0, len(all)),
	}
	for _, sub := range all {
		switch {
		case sub.Status == models.StatusSubmitted:
			queue.Pending = append(queue.Pending, sub)
		case sub.Status.IsDecided():
			queue.History = append(queue.History, sub)
		}
	}

	s.cacheSet(ctx, queueCacheKey, queue)
	return queue, nil
}

// MySubmissions returns the caller's own documents of both kinds merged into
// one feed, newest first.
func (s *SubmissionService) MySubmissions(ctx context.Context, actor *models.JWTClaims) ([]models.Submission, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	key := feedCacheKeyPrefix + actor.UserID
	var cached []models.Submission
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	feed, err := s.fetchSubmissions(ctx, models.SubmissionFilter{SubmittedBy: actor.UserID})
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, key, feed)
	return feed, nil
}

// InvalidateFeeds drops cached views after a write. The store stays the
// source of truth, so a failed invalidation only delays freshness by the TTL.
func (s *SubmissionService) InvalidateFeeds(ctx context.Context, submitterID string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, "submissions:*"); err != nil {
		s.logger.Warn("failed to invalidate submission caches", zap.String("submitter", submitterID), zap.Error(err))
	}
}

// fetchSubmissions is the single projection path shared by both views.
func (s *SubmissionService) fetchSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	reports, err := s.reports.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	lpjs, err := s.lpjs.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lpj")
	}

	merged := make([]models.Submission, 0, len(reports)+len(lpjs))
	for _, report := range reports {
		merged = append(merged, models.FromReport(report))
	}
	for _, lpj := range lpjs {
		merged = append(merged, models.FromLPJ(lpj))
	}

	// Stable sort keeps reports ahead of LPJ at equal timestamps, so the
	// feed order is deterministic without relying on wall-clock precision.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged, nil
}

func (s *SubmissionService) cacheSet(ctx context.Context, key string, value interface{}) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, key, value, 0); err != nil {
		s.logger.Warn("failed to cache submissions view", zap.String("key", key), zap.Error(err))
	}
}

func (s *SubmissionService) emitAudit(ctx context.Context, userID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "submission",
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "submission-service",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
