package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencourse/lms-api/internal/service"
	appErrors "github.com/opencourse/lms-api/pkg/errors"
	"github.com/opencourse/lms-api/pkg/response"
)

// CertificateHandler exposes certificate endpoints. Verify is the only public
// one; everything else sits behind auth.
type CertificateHandler struct {
	certificates *service.CertificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certificates *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

type revokeCertificateRequest struct {
	Reason string `json:"reason"`
}

// Request godoc
// @Summary Request a certificate for an enrollment
// @Description Creates the pending certificate once; repeated requests return the existing one
// @Tags Certificates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/certificate [post]
func (h *CertificateHandler) Request(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cert, err := h.certificates.RequestForEnrollment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cert)
}

// Get godoc
// @Summary Get the certificate of an enrollment
// @Tags Certificates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/certificate [get]
func (h *CertificateHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cert, err := h.certificates.GetForEnrollment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Approve godoc
// @Summary Approve a pending certificate
// @Tags Certificates
// @Produce json
// @Security BearerAuth
// @Param id path string true "Certificate ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /certificates/{id}/approve [put]
func (h *CertificateHandler) Approve(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	cert, err := h.certificates.Approve(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Revoke godoc
// @Summary Revoke an approved certificate
// @Tags Certificates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Certificate ID"
// @Param payload body revokeCertificateRequest true "Revocation payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /certificates/{id}/revoke [put]
func (h *CertificateHandler) Revoke(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req revokeCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	cert, err := h.certificates.Revoke(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cert, nil)
}

// Verify godoc
// @Summary Verify a certificate by hash
// @Description Public endpoint; found and not-found share the same response shape
// @Tags Certificates
// @Produce json
// @Param hash path string true "Verification hash"
// @Success 200 {object} response.Envelope
// @Router /certificates/verify/{hash} [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.certificates.Verify(c.Request.Context(), c.Param("hash"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
