package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opencourse/lms-api/internal/models"
	"github.com/opencourse/lms-api/internal/service"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
	"github.com/opencourse/lms-api/pkg/response"
)

// TranscriptHandler exposes transcript export and download endpoints.
type TranscriptHandler struct {
	transcripts *service.TranscriptService
}

// NewTranscriptHandler constructs TranscriptHandler.
func NewTranscriptHandler(transcripts *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

// Export godoc
// @Summary Export course progress transcript
// @Description Renders the caller's per-lesson progress into CSV or PDF and returns a signed download link
// @Tags Transcripts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param format query string false "csv or pdf (default csv)"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/transcript [post]
func (h *TranscriptHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := models.TranscriptFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	result, err := h.transcripts.Export(c.Request.Context(), actor, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download an exported transcript
// @Description Streams the file referenced by a valid signed token
// @Tags Transcripts
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200
// @Failure 401 {object} response.Envelope
// @Router /transcripts/download [get]
func (h *TranscriptHandler) Download(c *gin.Context) {
	file, relPath, err := h.transcripts.OpenDownload(c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	name := filepath.Base(relPath)
	contentType := "text/csv"
	if strings.HasSuffix(name, ".pdf") {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", "attachment; filename="+name)
	c.Header("Content-Type", contentType)
	c.File(file.Name())
}
