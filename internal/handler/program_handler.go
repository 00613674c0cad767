package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/himastat/siorma-api/internal/models"
	"github.com/himastat/siorma-api/internal/service"
	appErrors "github.com/himastat/siorma-api/pkg/errors"
	"github.com/himastat/siorma-api/pkg/response"
)

// ProgramHandler exposes program-of-work endpoints.
type ProgramHandler struct {
	service *service.ProgramService
}

// NewProgramHandler constructs the handler.
func NewProgramHandler(svc *service.ProgramService) *ProgramHandler {
	return &ProgramHandler{service: svc}
}

// List godoc
// @Summary List programs of work
// @Tags Programs
// @Produce json
// @Param division query string false "Division filter"
// @Param period query string false "Period filter"
// @Param search query string false "Title search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /programs [get]
func (h *ProgramHandler) List(c *gin.Context) {
	filter := models.ProgramFilter{
		Division: strings.TrimSpace(c.Query("division")),
		Period:   strings.TrimSpace(c.Query("period")),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	programs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, programs, pagination)
}

// Get godoc
// @Summary Get a program of work
// @Tags Programs
// @Produce json
// @Param id path int true "Program ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /programs/{id} [get]
func (h *ProgramHandler) Get(c *gin.Context) {
	id, err := parseProgramID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	program, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Create godoc
// @Summary Register a program of work
// @Tags Programs
// @Accept json
// @Produce json
// @Param payload body service.CreateProgramRequest true "Program payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /programs [post]
func (h *ProgramHandler) Create(c *gin.Context) {
	var req service.CreateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid program payload"))
		return
	}
	program, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, program, nil)
}

// Update godoc
// @Summary Update a program of work
// @Tags Programs
// @Accept json
// @Produce json
// @Param id path int true "Program ID"
// @Param payload body service.UpdateProgramRequest true "Program payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /programs/{id} [put]
func (h *ProgramHandler) Update(c *gin.Context) {
	id, err := parseProgramID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid program payload"))
		return
	}
	program, err := h.service.Update(c.Request.Context(), id, req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Delete godoc
// @Summary Delete a program of work
// @Tags Programs
// @Produce json
// @Param id path int true "Program ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /programs/{id} [delete]
func (h *ProgramHandler) Delete(c *gin.Context) {
	id, err := parseProgramID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func parseProgramID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid program id")
	}
	return id, nil
}
