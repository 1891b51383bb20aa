package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rajkayal/hubauth/internal/services"
	appErrors "github.com/rajkayal/hubauth/pkg/errors"
	"github.com/rajkayal/hubauth/pkg/response"
)

// AuditHandler exposes recent security events to privileged operators.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit?email=...&limit=...
func (h *AuditHandler) Recent(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		response.Error(c, appErrors.NewBadRequest("email query parameter is required"))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, appErrors.NewBadRequest("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.audit.RecentForEmail(requestContext(c), email, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": entries})
}
