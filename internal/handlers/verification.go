// internal/handlers/verification.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vistahub/license-gate/internal/i18n"
	"github.com/vistahub/license-gate/internal/licensing"
	"github.com/vistahub/license-gate/internal/services"
	"github.com/vistahub/license-gate/internal/utils"
)

const BypassHeader = "X-Signature-Bypass"

type VerificationHandler struct {
	verificationService *services.VerificationService
}

type VerifyRequest struct {
	Key       string      `json:"key"`
	DeviceID  string      `json:"deviceId"`
	Timestamp json.Number `json:"timestamp"`
	Signature string      `json:"signature"`
}

type VerifyResponse struct {
	Granted   bool       `json:"granted"`
	Reason    string     `json:"reason,omitempty"`
	Message   string     `json:"message,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func NewVerificationHandler(verificationService *services.VerificationService) *VerificationHandler {
	return &VerificationHandler{
		verificationService: verificationService,
	}
}

// GET /api/verify
func (h *VerificationHandler) Deliver(c *gin.Context) {
	req := services.SignedRequest{
		LicenseKey:    c.Query("key"),
		DeviceID:      c.Query("deviceId"),
		Timestamp:     c.Query("timestamp"),
		Signature:     c.Query("signature"),
		BypassToken:   c.GetHeader(BypassHeader),
		SourceAddress: c.ClientIP(),
	}

	c.Header("Cache-Control", "no-store")

	delivery, err := h.verificationService.Deliver(c.Request.Context(), req)
	if err != nil {
		reason := licensing.ReasonOf(err)
		h.plain(c, statusFor(reason), classFor(reason), reason)
		return
	}
	if !delivery.Granted {
		h.plain(c, http.StatusForbidden, "DENIED", delivery.Reason)
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(delivery.Bootstrap))
}

// POST /verify
func (h *VerificationHandler) Verify(c *gin.Context) {
	var body VerifyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.verdict(c, licensing.ReasonMalformedParameters, nil)
		return
	}

	result, err := h.verificationService.Verify(c.Request.Context(), services.SignedRequest{
		LicenseKey:    body.Key,
		DeviceID:      body.DeviceID,
		Timestamp:     body.Timestamp.String(),
		Signature:     body.Signature,
		BypassToken:   c.GetHeader(BypassHeader),
		SourceAddress: c.ClientIP(),
	})
	if err != nil {
		h.verdict(c, licensing.ReasonOf(err), nil)
		return
	}

	h.verdict(c, result.Reason, result)
}

// plain writes a single Lua comment line so an executor running the body
// does nothing.
func (h *VerificationHandler) plain(c *gin.Context, status int, class string, reason licensing.Reason) {
	message := i18n.T(utils.GetLangFromContext(c), i18n.ReasonKey(string(reason)))
	c.Data(status, "text/plain; charset=utf-8", []byte(fmt.Sprintf("-- %s: %s: %s\n", class, reason, message)))
}

func (h *VerificationHandler) verdict(c *gin.Context, reason licensing.Reason, result *services.VerificationResult) {
	if result != nil && result.Granted {
		c.JSON(http.StatusOK, VerifyResponse{Granted: true, ExpiresAt: result.ExpiresAt()})
		return
	}

	status := statusFor(reason)
	if reason.Kind() == licensing.KindLicense {
		status = http.StatusForbidden
	}
	c.JSON(status, VerifyResponse{
		Reason:  string(reason),
		Message: i18n.T(utils.GetLangFromContext(c), i18n.ReasonKey(string(reason))),
	})
}

func statusFor(reason licensing.Reason) int {
	switch reason.Kind() {
	case licensing.KindProtocol:
		return http.StatusBadRequest
	case licensing.KindAuthentication:
		return http.StatusUnauthorized
	case licensing.KindLicense:
		return http.StatusForbidden
	}
	return http.StatusServiceUnavailable
}

func classFor(reason licensing.Reason) string {
	switch reason.Kind() {
	case licensing.KindProtocol, licensing.KindAuthentication:
		return "REJECTED"
	case licensing.KindLicense:
		return "DENIED"
	}
	return "RETRY"
}
