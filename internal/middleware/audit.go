package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/school-lms-api/internal/models"
)

// AuditWriter persists audit trail rows.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit records one audit row per successful mutation on resource. The
// :id route parameter, when present, becomes the resource id.
func Audit(repo AuditWriter, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status >= 400 {
			return
		}

		var actor string
		if claims, ok := CurrentClaims(c); ok {
			actor = claims.UserID
		}
		client := models.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
		entry := models.NewAuditLog(actor, action, resource, c.Param("id"), client, nil, map[string]interface{}{
			"route":      c.FullPath(),
			"method":     c.Request.Method,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if err := repo.CreateAuditLog(c.Request.Context(), entry); err != nil {
			logger.Warn("audit log failed", zap.String("action", action), zap.String("resource", resource), zap.Error(err))
		}
	}
}
