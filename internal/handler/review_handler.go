package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opencourse/lms-api/internal/models"
	"github.com/opencourse/lms-api/internal/service"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
	"github.com/opencourse/lms-api/pkg/response"
)

// ReviewHandler exposes moderation review endpoints.
type ReviewHandler struct {
	reviews *service.ReviewService
}

// NewReviewHandler constructs ReviewHandler.
func NewReviewHandler(reviews *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// Submit godoc
// @Summary Submit content for moderation
// @Tags Reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.SubmitReviewRequest true "Review payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reviews [post]
func (h *ReviewHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	review, err := h.reviews.Submit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, review)
}

// Approve godoc
// @Summary Approve a pending review
// @Description Approval publishes the reviewed course or lesson
// @Tags Reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.DecideReviewRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reviews/approve [put]
func (h *ReviewHandler) Approve(c *gin.Context) {
	h.decide(c, h.reviews.Approve)
}

// Reject godoc
// @Summary Reject a pending review
// @Tags Reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.DecideReviewRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reviews/reject [put]
func (h *ReviewHandler) Reject(c *gin.Context) {
	h.decide(c, h.reviews.Reject)
}

// Get godoc
// @Summary Get the current review of a subject
// @Tags Reviews
// @Produce json
// @Security BearerAuth
// @Param type query string true "Subject type (COURSE or LESSON)"
// @Param id query string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reviews [get]
func (h *ReviewHandler) Get(c *gin.Context) {
	subjectType := models.ReviewSubjectType(strings.ToUpper(c.Query("type")))
	review, err := h.reviews.Get(c.Request.Context(), subjectType, c.Query("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, review, nil)
}

func (h *ReviewHandler) decide(c *gin.Context, fn func(ctx context.Context, actor models.Actor, req service.DecideReviewRequest) (*models.ModerationReview, error)) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.DecideReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	review, err := fn(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, review, nil)
}
