package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"helpdesk-service/internal/models"
	"helpdesk-service/internal/permissions"
	"helpdesk-service/internal/repository"
)

// PermissionChecker evaluates a single permission for a user. Implemented
// by permissions.Service.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID uuid.UUID, permission string) (permissions.PermissionCheck, error)
}

// RBACMiddleware enforces permission requirements on routes. Denials and
// rate-limit rejections both leave audit entries; the two cases return
// distinct status codes (403 vs 429). Requests that pass only through an
// active emergency grant are audited as emergency access use.
type RBACMiddleware struct {
	perms     PermissionChecker
	auditRepo repository.AuditRepository
	limiter   *UserRateLimiter
	logger    *logrus.Entry
}

// NewRBACMiddleware creates the middleware with a 100 requests / 60s
// per-user rate limit on permission-checked routes.
func NewRBACMiddleware(
	perms PermissionChecker,
	auditRepo repository.AuditRepository,
	logger *logrus.Logger,
) *RBACMiddleware {
	return &RBACMiddleware{
		perms:     perms,
		auditRepo: auditRepo,
		limiter:   NewUserRateLimiter(100, 60*time.Second),
		logger:    logger.WithField("component", "rbac_middleware"),
	}
}

// RequirePermission requires the given permission (wildcards in held
// permissions are honored).
func (m *RBACMiddleware) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			unauthorized(c, "User context not found")
			return
		}

		if !m.limiter.Allow(userID) {
			m.writeAudit(c, userID, models.AuditRateLimitExceeded, permission, nil)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Success: false,
				Error: models.Error{
					Code:    "RATE_LIMIT_EXCEEDED",
					Message: "Too many permission-checked requests",
				},
			})
			return
		}

		check, err := m.perms.CheckPermission(c.Request.Context(), userID, permission)
		if err != nil {
			m.logger.WithError(err).WithField("user_id", userID).Error("Permission check failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
				Success: false,
				Error: models.Error{
					Code:    "INTERNAL_SERVER_ERROR",
					Message: "Failed to evaluate permissions",
				},
			})
			return
		}
		if !check.Allowed {
			m.writeAudit(c, userID, models.AuditUnauthorizedAttempt, permission, nil)
			m.forbidden(c)
			return
		}
		if check.ViaEmergency {
			m.writeAudit(c, userID, models.AuditEmergencyUsed, permission, check.EmergencyID)
		}

		c.Next()
	}
}

// RequireAnyPermission passes when the user holds at least one of the
// listed permissions.
func (m *RBACMiddleware) RequireAnyPermission(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			unauthorized(c, "User context not found")
			return
		}

		if !m.limiter.Allow(userID) {
			m.writeAudit(c, userID, models.AuditRateLimitExceeded, "", nil)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Success: false,
				Error: models.Error{
					Code:    "RATE_LIMIT_EXCEEDED",
					Message: "Too many permission-checked requests",
				},
			})
			return
		}

		for _, permission := range perms {
			check, err := m.perms.CheckPermission(c.Request.Context(), userID, permission)
			if err != nil {
				continue
			}
			if check.Allowed {
				if check.ViaEmergency {
					m.writeAudit(c, userID, models.AuditEmergencyUsed, permission, check.EmergencyID)
				}
				c.Next()
				return
			}
		}

		m.writeAudit(c, userID, models.AuditUnauthorizedAttempt, "", nil)
		m.forbidden(c)
	}
}

// forbidden returns a generic 403; the missing permission is recorded in
// the audit trail but never echoed to the caller.
func (m *RBACMiddleware) forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "FORBIDDEN",
			Message: "Insufficient permissions",
		},
	})
}

func (m *RBACMiddleware) writeAudit(c *gin.Context, userID uuid.UUID, action, permission string, entityID *uuid.UUID) {
	entityType := "route"
	ip := c.ClientIP()
	ua := c.Request.UserAgent()
	entry := &models.PermissionAudit{
		UserID:      &userID,
		Action:      action,
		EntityType:  &entityType,
		EntityID:    entityID,
		PerformedBy: &userID,
		IPAddress:   &ip,
		UserAgent:   &ua,
	}
	details := models.JSON{"path": c.FullPath(), "method": c.Request.Method}
	if permission != "" {
		details["permission"] = permission
	}
	entry.NewValues = &details

	// Detach from the request context so an aborted request still audits
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.auditRepo.Create(ctx, entry); err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"action":  action,
			"user_id": userID,
		}).Error("Failed to write audit entry")
	}
}
