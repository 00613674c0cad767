package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/himastat/siorma-api/internal/dto"
	"github.com/himastat/siorma-api/internal/models"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
)

type reportStoreStub struct {
	reports []models.Report
	nextID  int64
}

func (s *reportStoreStub) Create(ctx context.Context, report *models.Report) error {
	s.nextID++
	report.ID = s.nextID
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	s.reports = append(s.reports, *report)
	return nil
}

func (s *reportStoreStub) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Report, error) {
	result := make([]models.Report, 0, len(s.reports))
	for _, r := range s.reports {
		if filter.SubmittedBy != "" && r.SubmittedBy != filter.SubmittedBy {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

type lpjStoreStub struct {
	lpjs   []models.LPJ
	nextID int64
}

func (s *lpjStoreStub) Create(ctx context.Context, lpj *models.LPJ) error {
	s.nextID++
	lpj.ID = s.nextID
	if lpj.CreatedAt.IsZero() {
		lpj.CreatedAt = time.Now().UTC()
	}
	s.lpjs = append(s.lpjs, *lpj)
	return nil
}

func (s *lpjStoreStub) List(ctx context.Context, filter models.SubmissionFilter) ([]models.LPJ, error) {
	result := make([]models.LPJ, 0, len(s.lpjs))
	for _, l := range s.lpjs {
		if filter.SubmittedBy != "" && l.SubmittedBy != filter.SubmittedBy {
			continue
		}
		result = append(result, l)
	}
	return result, nil
}

type programFinderStub struct {
	programs map[int64]*models.Program
}

func (s *programFinderStub) FindByID(ctx context.Context, id int64) (*models.Program, error) {
	program, ok := s.programs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return program, nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newSubmissionFixture() (*SubmissionService, *reportStoreStub, *lpjStoreStub, *programFinderStub, *auditStub) {
	reports := &reportStoreStub{}
	lpjs := &lpjStoreStub{}
	programs := &programFinderStub{programs: map[int64]*models.Program{
		1: {ID: 1, Title: "Webinar Statistika", Division: "PSDM", Period: "2026"},
		9: {ID: 9, Title: "Pekan Statistika", Division: "Acara", Period: "2026"},
	}}
	audit := &auditStub{}
	svc := NewSubmissionService(reports, lpjs, programs, audit, nil, nil)
	return svc, reports, lpjs, programs, audit
}

func seedReport(reports *reportStoreStub, submitter string, status *string, createdAt time.Time) models.Report {
	report := models.Report{
		ProgramID:   1,
		SubmittedBy: submitter,
		Title:       "Laporan Webinar",
		Status:      status,
		CreatedAt:   createdAt,
	}
	_ = reports.Create(context.Background(), &report)
	reports.reports[len(reports.reports)-1].CreatedAt = createdAt
	return reports.reports[len(reports.reports)-1]
}

func TestSubmissionServiceCreateDraftAndSubmitted(t *testing.T) {
	svc, _, _, _, audit := newSubmissionFixture()
	actor := &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota}

	draft, err := svc.Create(context.Background(), dto.CreateSubmissionRequest{
		Kind: models.KindReport, ProgramID: 1, Title: "Laporan Webinar",
	}, actor)
	require.NoError(t, err)
	require.Equal(t, models.StatusDraft, draft.Status)

	submitted, err := svc.Create(context.Background(), dto.CreateSubmissionRequest{
		Kind: models.KindReport, ProgramID: 1, Title: "Laporan Webinar", Submit: true,
	}, actor)
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, submitted.Status)
	require.Len(t, audit.logs, 2)
}

func TestSubmissionServiceCreateValidations(t *testing.T) {
	svc, _, _, _, _ := newSubmissionFixture()
	actor := &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota}

	_, err := svc.Create(context.Background(), dto.CreateSubmissionRequest{Kind: models.KindReport, ProgramID: 1}, actor)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), dto.CreateSubmissionRequest{Kind: "MEMO", ProgramID: 1, Title: "x"}, actor)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), dto.CreateSubmissionRequest{Kind: models.KindReport, ProgramID: 404, Title: "x"}, actor)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), dto.CreateSubmissionRequest{Kind: models.KindReport, ProgramID: 1, Title: "x"}, nil)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestSubmissionServiceCreateLPJSynthesizesTitle(t *testing.T) {
	svc, _, _, _, _ := newSubmissionFixture()
	actor := &models.JWTClaims{UserID: "koordinator-1", Role: models.RoleKoordinator}

	lpj, err := svc.Create(context.Background(), dto.CreateSubmissionRequest{
		Kind: models.KindLPJ, ProgramID: 9, Submit: true,
	}, actor)
	require.NoError(t, err)
	require.Equal(t, "LPJ Pekan Statistika", lpj.Title)
	require.Equal(t, "LPJ-1", lpj.ID)
}

func TestSubmissionServiceQueuePartition(t *testing.T) {
	svc, reports, lpjs, _, _ := newSubmissionFixture()
	now := time.Now().UTC()

	pending := "pending"
	approved := "approved"
	rejected := "rejected"
	seedReport(reports, "anggota-1", nil, now.Add(-4*time.Hour))       // draft
	seedReport(reports, "anggota-1", &pending, now.Add(-3*time.Hour))  // legacy alias
	seedReport(reports, "anggota-2", &approved, now.Add(-2*time.Hour)) // decided
	note := "Lampiran kwitansi tidak lengkap"
	lpjs.lpjs = append(lpjs.lpjs, models.LPJ{
		ID: 1, ProgramID: 9, ProgramTitle: "Pekan Statistika",
		SubmittedBy: "koordinator-1", Status: &rejected, Note: &note,
		CreatedAt: now.Add(-time.Hour),
	})

	queue, err := svc.ApprovalQueue(context.Background(), ketuaClaims())
	require.NoError(t, err)

	require.Len(t, queue.Pending, 1)
	require.Equal(t, "RPT-2", queue.Pending[0].ID)
	require.Equal(t, models.StatusSubmitted, queue.Pending[0].Status)

	require.Len(t, queue.History, 2)
	for _, sub := range queue.History {
		require.True(t, sub.Status.IsDecided())
	}

	// Drafts are invisible to the approver.
	for _, sub := range append(queue.Pending, queue.History...) {
		require.NotEqual(t, models.StatusDraft, sub.Status)
	}
}

func TestSubmissionServiceQueueRoleGate(t *testing.T) {
	svc, _, _, _, _ := newSubmissionFixture()

	_, err := svc.ApprovalQueue(context.Background(), nil)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	_, err = svc.ApprovalQueue(context.Background(), &models.JWTClaims{UserID: "k-1", Role: models.RoleKoordinator})
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmissionServiceMySubmissionsOrderAndOwnership(t *testing.T) {
	svc, reports, lpjs, _, _ := newSubmissionFixture()
	now := time.Now().UTC()

	submitted := "submitted"
	seedReport(reports, "anggota-1", nil, now.Add(-3*time.Hour))
	seedReport(reports, "anggota-2", &submitted, now.Add(-2*time.Hour))
	seedReport(reports, "anggota-1", &submitted, now.Add(-time.Hour))
	lpjs.lpjs = append(lpjs.lpjs, models.LPJ{
		ID: 1, ProgramID: 9, ProgramTitle: "Pekan Statistika",
		SubmittedBy: "anggota-1", Status: &submitted, CreatedAt: now,
	})

	feed, err := svc.MySubmissions(context.Background(), &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota})
	require.NoError(t, err)
	require.Len(t, feed, 3)

	// Newest first, drafts included, other submitters excluded.
	require.Equal(t, "LPJ-1", feed[0].ID)
	require.Equal(t, "RPT-3", feed[1].ID)
	require.Equal(t, "RPT-1", feed[2].ID)
	require.Equal(t, models.StatusDraft, feed[2].Status)
	for _, sub := range feed {
		require.Equal(t, "anggota-1", sub.SubmittedBy)
	}
}

func TestSubmissionServiceFeedsAgreeOnStatus(t *testing.T) {
	svc, reports, _, _, _ := newSubmissionFixture()
	now := time.Now().UTC()

	pending := "pending"
	seedReport(reports, "anggota-1", &pending, now)

	queue, err := svc.ApprovalQueue(context.Background(), ketuaClaims())
	require.NoError(t, err)
	feed, err := svc.MySubmissions(context.Background(), &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota})
	require.NoError(t, err)

	require.Len(t, queue.Pending, 1)
	require.Len(t, feed, 1)
	require.Equal(t, queue.Pending[0].ID, feed[0].ID)
	require.Equal(t, queue.Pending[0].Status, feed[0].Status)
	require.Equal(t, queue.Pending[0].Title, feed[0].Title)
}

func TestSubmissionServiceStableTieBreak(t *testing.T) {
	svc, reports, lpjs, _, _ := newSubmissionFixture()
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	submitted := "submitted"
	seedReport(reports, "anggota-1", &submitted, ts)
	lpjs.lpjs = append(lpjs.lpjs, models.LPJ{
		ID: 1, ProgramID: 9, ProgramTitle: "Pekan Statistika",
		SubmittedBy: "anggota-1", Status: &submitted, CreatedAt: ts,
	})

	first, err := svc.MySubmissions(context.Background(), &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota})
	require.NoError(t, err)
	second, err := svc.MySubmissions(context.Background(), &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, "RPT-1", first[0].ID)
	require.Equal(t, "LPJ-1", first[1].ID)
}
