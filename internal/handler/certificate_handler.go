package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-core-api/internal/service"
	appErrors "github.com/noah-isme/lms-core-api/pkg/errors"
	"github.com/noah-isme/lms-core-api/pkg/response"
)

// CertificateHandler exposes certificate listing and download endpoints.
type CertificateHandler struct {
	certificates *service.CertificateService
}

// NewCertificateHandler constructs CertificateHandler.
func NewCertificateHandler(certificates *service.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// List godoc
// @Summary List the caller's certificates
// @Description Each entry carries a short-lived signed download URL
// @Tags Certificates
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/certificates [get]
func (h *CertificateHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	items, err := h.certificates.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Download godoc
// @Summary Download a certificate PDF
// @Description Token-authenticated; no session required
// @Tags Certificates
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /certificates/download [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	path, err := h.certificates.Resolve(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.File(path)
}
