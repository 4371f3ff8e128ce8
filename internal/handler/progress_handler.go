package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencourse/lms-api/internal/service"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
	"github.com/opencourse/lms-api/pkg/response"
)

// ProgressHandler exposes lesson progress endpoints.
type ProgressHandler struct {
	progress    *service.ProgressService
	completions *service.CompletionService
}

// NewProgressHandler constructs ProgressHandler.
func NewProgressHandler(progress *service.ProgressService, completions *service.CompletionService) *ProgressHandler {
	return &ProgressHandler{progress: progress, completions: completions}
}

// Record godoc
// @Summary Record lesson watch progress
// @Description Upserts the caller's watch state for a lesson and re-evaluates course completion
// @Tags Progress
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.RecordProgressRequest true "Progress payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /progress [put]
func (h *ProgressHandler) Record(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.RecordProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.progress.Record(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GetLesson godoc
// @Summary Get lesson progress
// @Tags Progress
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Router /progress/lessons/{id} [get]
func (h *ProgressHandler) GetLesson(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	progress, err := h.progress.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// GetCourse godoc
// @Summary Get course completion state
// @Description Returns the caller's completion percentage and per-lesson rows for a course
// @Tags Progress
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /progress/courses/{id} [get]
func (h *ProgressHandler) GetCourse(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courseID := c.Param("id")

	pct, err := h.completions.Percentage(c.Request.Context(), actor.UserID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.progress.CourseRows(c.Request.Context(), actor, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"percentage": pct, "lessons": rows}, nil)
}
