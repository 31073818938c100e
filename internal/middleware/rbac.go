package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

// SelfAccess in an RBAC list admits callers whose id equals the :id route
// parameter.
const SelfAccess = "SELF"

// RBAC admits callers holding one of the allowed roles. SUPERADMIN is
// implied by ADMIN.
func RBAC(allowed ...string) gin.HandlerFunc {
	roles := make(map[models.UserRole]bool, len(allowed)+1)
	self := false
	for _, a := range allowed {
		if a == SelfAccess {
			self = true
			continue
		}
		roles[models.UserRole(a)] = true
	}
	if roles[models.RoleAdmin] {
		roles[models.RoleSuperAdmin] = true
	}

	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		switch {
		case !ok:
			response.Error(c, appErrors.ErrUnauthorized)
		case roles[claims.Role]:
			c.Next()
			return
		case self && claims.UserID != "" && c.Param("id") == claims.UserID:
			c.Next()
			return
		default:
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient role"))
		}
		c.Abort()
	}
}
