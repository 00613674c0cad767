package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/himastat/siorma-api/internal/dto"
	"github.com/himastat/siorma-api/internal/middleware"
	"github.com/himastat/siorma-api/internal/models"
	"github.com/himastat/siorma-api/internal/service"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
)

type recapServiceMock struct {
	createResp  *dto.RecapJobResponse
	createErr   error
	statusResp  *dto.RecapStatusResponse
	statusErr   error
	download    *service.RecapDownload
	downloadErr error
}

func (m *recapServiceMock) CreateJob(ctx context.Context, req dto.RecapRequest, actor *models.JWTClaims) (*dto.RecapJobResponse, error) {
	return m.createResp, m.createErr
}

func (m *recapServiceMock) GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*dto.RecapStatusResponse, error) {
	return m.statusResp, m.statusErr
}

func (m *recapServiceMock) ResolveDownload(ctx context.Context, token string) (*service.RecapDownload, error) {
	return m.download, m.downloadErr
}

func TestRecapHandlerGenerate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recapServiceMock{
		createResp: &dto.RecapJobResponse{ID: "job-1", Status: models.RecapStatusQueued, Progress: 0},
	}
	handler := NewRecapHandler(mockSvc)

	payload, _ := json.Marshal(dto.RecapRequest{Period: "2026-ganjil", Format: models.RecapFormatCSV})
	c, w := newGinContext(http.MethodPost, "/recaps", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "ketua-1", Role: models.RoleKetua})

	handler.Generate(c)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestRecapHandlerGenerateForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recapServiceMock{createErr: appErrors.ErrForbidden}
	handler := NewRecapHandler(mockSvc)

	payload, _ := json.Marshal(dto.RecapRequest{Period: "2026", Format: models.RecapFormatCSV})
	c, w := newGinContext(http.MethodPost, "/recaps", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "anggota-1", Role: models.RoleAnggota})

	handler.Generate(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecapHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recapServiceMock{
		statusResp: &dto.RecapStatusResponse{ID: "job-1", Status: models.RecapStatusFinished, Progress: 100},
	}
	handler := NewRecapHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/recaps/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "ketua-1", Role: models.RoleKetua})

	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRecapHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp(t.TempDir(), "recap*.csv")
	require.NoError(t, err)
	_, _ = file.WriteString("ID,Kind,Title\nRPT-1,REPORT,Laporan\n")
	_, _ = file.Seek(0, 0)

	mockSvc := &recapServiceMock{
		download: &service.RecapDownload{File: file, Filename: "recap_2026.csv", Format: models.RecapFormatCSV},
	}
	handler := NewRecapHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/recaps/download/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), "recap_2026.csv")
	require.Contains(t, w.Body.String(), "RPT-1")
}

func TestRecapHandlerDownloadBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recapServiceMock{downloadErr: appErrors.ErrForbidden}
	handler := NewRecapHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/recaps/download/bogus", nil)
	c.Params = gin.Params{{Key: "token", Value: "bogus"}}

	handler.Download(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
