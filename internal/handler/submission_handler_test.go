package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/himastat/siorma-api/internal/dto"
	"github.com/himastat/siorma-api/internal/middleware"
	"github.com/himastat/siorma-api/internal/models"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
)

type submissionServiceMock struct {
	createResp *models.Submission
	createErr  error
	queueResp  *models.ApprovalQueue
	queueErr   error
	mineResp   []models.Submission
	mineErr    error
}

func (m *submissionServiceMock) Create(ctx context.Context, req dto.CreateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error) {
	return m.createResp, m.createErr
}

func (m *submissionServiceMock) ApprovalQueue(ctx context.Context, actor *models.JWTClaims) (*models.ApprovalQueue, error) {
	return m.queueResp, m.queueErr
}

func (m *submissionServiceMock) MySubmissions(ctx context.Context, actor *models.JWTClaims) ([]models.Submission, error) {
	return m.mineResp, m.mineErr
}

type approvalServiceMock struct {
	decideResp *models.Submission
	decideErr  error
	gotID      string
	gotReq     dto.DecisionRequest
}

func (m *approvalServiceMock) Decide(ctx context.Context, compositeID string, req dto.DecisionRequest, actor *models.JWTClaims) (*models.Submission, error) {
	m.gotID = compositeID
	m.gotReq = req
	return m.decideResp, m.decideErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestSubmissionHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &submissionServiceMock{
		createResp: &models.Submission{ID: "RPT-1", Kind: models.KindReport, Status: models.StatusSubmitted},
	}
	handler := NewSubmissionHandler(mockSvc, &approvalServiceMock{})

	payload, _ := json.Marshal(dto.CreateSubmissionRequest{Kind: models.KindReport, ProgramID: 1, Title: "Laporan", Submit: true})
	c, w := newGinContext(http.MethodPost, "/submissions", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestSubmissionHandlerCreateUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewSubmissionHandler(&submissionServiceMock{}, &approvalServiceMock{})

	c, w := newGinContext(http.MethodPost, "/submissions", []byte(`{}`))
	handler.Create(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmissionHandlerQueueForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &submissionServiceMock{queueErr: appErrors.ErrForbidden}
	handler := NewSubmissionHandler(mockSvc, &approvalServiceMock{})

	c, w := newGinContext(http.MethodGet, "/submissions/queue", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota})

	handler.Queue(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmissionHandlerMine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &submissionServiceMock{mineResp: []models.Submission{{ID: "LPJ-2"}, {ID: "RPT-1"}}}
	handler := NewSubmissionHandler(mockSvc, &approvalServiceMock{})

	c, w := newGinContext(http.MethodGet, "/submissions/mine", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota})

	handler.Mine(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.Submission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 2)
	require.Equal(t, "LPJ-2", envelope.Data[0].ID)
}

func TestSubmissionHandlerDecide(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockApprovals := &approvalServiceMock{
		decideResp: &models.Submission{ID: "RPT-7", Status: models.StatusApproved},
	}
	handler := NewSubmissionHandler(&submissionServiceMock{}, mockApprovals)

	payload, _ := json.Marshal(dto.DecisionRequest{Decision: models.StatusApproved})
	c, w := newGinContext(http.MethodPost, "/submissions/RPT-7/decision", payload)
	c.Params = gin.Params{{Key: "id", Value: "RPT-7"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "ketua-1", Role: models.RoleKetua})

	handler.Decide(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "RPT-7", mockApprovals.gotID)
	require.Equal(t, models.StatusApproved, mockApprovals.gotReq.Decision)
}

func TestSubmissionHandlerDecideConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockApprovals := &approvalServiceMock{decideErr: appErrors.ErrInvalidTransition}
	handler := NewSubmissionHandler(&submissionServiceMock{}, mockApprovals)

	payload, _ := json.Marshal(dto.DecisionRequest{Decision: models.StatusApproved})
	c, w := newGinContext(http.MethodPost, "/submissions/RPT-7/decision", payload)
	c.Params = gin.Params{{Key: "id", Value: "RPT-7"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "ketua-1", Role: models.RoleKetua})

	handler.Decide(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmissionHandlerDecideNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockApprovals := &approvalServiceMock{decideErr: appErrors.ErrNotFound}
	handler := NewSubmissionHandler(&submissionServiceMock{}, mockApprovals)

	payload, _ := json.Marshal(dto.DecisionRequest{Decision: models.StatusRejected, Note: "tidak lengkap"})
	c, w := newGinContext(http.MethodPost, "/submissions/LPJ-99/decision", payload)
	c.Params = gin.Params{{Key: "id", Value: "LPJ-99"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "ketua-1", Role: models.RoleKetua})

	handler.Decide(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
