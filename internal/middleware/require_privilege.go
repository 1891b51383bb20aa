package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/pkg/errors"
	"github.com/rajkayal/hubauth/pkg/response"
)

// RequirePrivilege rejects requests whose token does not carry the
// privileged role. Must run after Auth.
func RequirePrivilege() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(CtxRoleKey)
		if role != models.RolePrivileged {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
