package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/internal/services"
	appErrors "github.com/rajkayal/hubauth/pkg/errors"
	"github.com/rajkayal/hubauth/pkg/response"
)

// OTPHandler serves the standalone one-time code endpoints.
type OTPHandler struct {
	otp *services.OTPService
}

func NewOTPHandler(otp *services.OTPService) *OTPHandler {
	return &OTPHandler{otp: otp}
}

type sendOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"omitempty,oneof=login registration verification password-reset"`
}

// POST /api/otp/send
func (h *OTPHandler) Send(c *gin.Context) {
	var req sendOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.otp.Send(requestContext(c), req.Email, defaultPurpose(req.Purpose))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

type verifyOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Code    string `json:"code" validate:"required,len=6,numeric"`
	Purpose string `json:"purpose" validate:"omitempty,oneof=login registration verification password-reset"`
}

// POST /api/otp/verify
func (h *OTPHandler) Verify(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	account, err := h.otp.Verify(requestContext(c), req.Email, req.Code, req.Purpose)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{"verified": true}
	if account != nil {
		payload["user"] = accountPayload(account)
	}
	response.Success(c, http.StatusOK, payload)
}

// POST /api/otp/resend
func (h *OTPHandler) Resend(c *gin.Context) {
	var req sendOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.otp.Resend(requestContext(c), req.Email, defaultPurpose(req.Purpose))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GET /api/otp/status?email=...
func (h *OTPHandler) Status(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		response.Error(c, appErrors.NewBadRequest("email query parameter is required"))
		return
	}

	status, err := h.otp.Status(requestContext(c), email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, status)
}

func defaultPurpose(purpose string) string {
	if purpose == "" {
		return models.PurposeLogin
	}
	return purpose
}
