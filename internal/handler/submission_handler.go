package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/himastat/siorma-api/internal/dto"
	"github.com/himastat/siorma-api/internal/models"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
	"github.com/himastat/siorma-api/pkg/response"
)

type submissionService interface {
	Create(ctx context.Context, req dto.CreateSubmissionRequest, actor *models.JWTClaims) (*models.Submission, error)
	ApprovalQueue(ctx context.Context, actor *models.JWTClaims) (*models.ApprovalQueue, error)
	MySubmissions(ctx context.Context, actor *models.JWTClaims) ([]models.Submission, error)
}

type approvalService interface {
	Decide(ctx context.Context, compositeID string, req dto.DecisionRequest, actor *models.JWTClaims) (*models.Submission, error)
}

// SubmissionHandler exposes the unified submission endpoints.
type SubmissionHandler struct {
	submissions submissionService
	approvals   approvalService
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(submissions submissionService, approvals approvalService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, approvals: approvals}
}

// Create godoc
// @Summary Create a report or LPJ submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubmissionRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid submission payload"))
		return
	}
	submission, err := h.submissions.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, submission, nil)
}

// Queue godoc
// @Summary Organization-wide approval queue
// @Description Pending submissions and decision history across both kinds
// @Tags Submissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /submissions/queue [get]
func (h *SubmissionHandler) Queue(c *gin.Context) {
	queue, err := h.submissions.ApprovalQueue(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, queue, nil)
}

// Mine godoc
// @Summary Personal submission feed
// @Description Every submission of the caller, drafts included, newest first
// @Tags Submissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /submissions/mine [get]
func (h *SubmissionHandler) Mine(c *gin.Context) {
	submissions, err := h.submissions.MySubmissions(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, nil)
}

// Decide godoc
// @Summary Approve or reject a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Composite submission ID (RPT-n or LPJ-n)"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/decision [post]
func (h *SubmissionHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	submission, err := h.approvals.Decide(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}
