package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/himastat/siorma-api/internal/dto"
	"github.com/himastat/siorma-api/internal/models"
	"github.com/himastat/siorma-api/internal/service"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
	"github.com/himastat/siorma-api/pkg/response"
)

type recapService interface {
	CreateJob(ctx context.Context, req dto.RecapRequest, actor *models.JWTClaims) (*dto.RecapJobResponse, error)
	GetStatus(ctx context.Context, id string, actor *models.JWTClaims) (*dto.RecapStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.RecapDownload, error)
}

// RecapHandler exposes decision recap export endpoints.
type RecapHandler struct {
	service recapService
}

// NewRecapHandler constructs the handler.
func NewRecapHandler(svc recapService) *RecapHandler {
	return &RecapHandler{service: svc}
}

// Generate godoc
// @Summary Queue a decision recap export
// @Tags Recaps
// @Accept json
// @Produce json
// @Param payload body dto.RecapRequest true "Recap payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /recaps [post]
func (h *RecapHandler) Generate(c *gin.Context) {
	var req dto.RecapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid recap payload"))
		return
	}
	job, err := h.service.CreateJob(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Recap job status
// @Tags Recaps
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /recaps/{id} [get]
func (h *RecapHandler) Status(c *gin.Context) {
	status, err := h.service.GetStatus(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a finished recap export via signed token
// @Tags Recaps
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /recaps/download/{token} [get]
func (h *RecapHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	contentType := "text/csv"
	if result.Format == models.RecapFormatPDF {
		contentType = "application/pdf"
	}
	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, result.File, nil)
}
