package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/rajkayal/hubauth/internal/auth"
	"github.com/rajkayal/hubauth/internal/middleware"
)

// requestContext returns the context to propagate into service calls.
func requestContext(c *gin.Context) context.Context {
	return c.Request.Context()
}

// currentClaims returns the verified token claims placed by the auth middleware.
func currentClaims(c *gin.Context) (*auth.Claims, bool) {
	value, exists := c.Get(middleware.CtxClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*auth.Claims)
	return claims, ok
}

// currentUserID returns the authenticated account ID, if present.
func currentUserID(c *gin.Context) (string, bool) {
	value, exists := c.Get(middleware.CtxUserIDKey)
	if !exists {
		return "", false
	}
	id, ok := value.(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func clientIP(c *gin.Context) string {
	return c.ClientIP()
}
