package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"helpdesk-service/internal/cache"
	"helpdesk-service/internal/events"
	"helpdesk-service/internal/services"
)

// HealthHandler exposes liveness and readiness probes
type HealthHandler struct {
	db        *gorm.DB
	permCache *cache.PermissionCache
	publisher *events.Publisher
	roles     *services.RoleService
}

func NewHealthHandler(db *gorm.DB, permCache *cache.PermissionCache, publisher *events.Publisher, roles *services.RoleService) *HealthHandler {
	return &HealthHandler{
		db:        db,
		permCache: permCache,
		publisher: publisher,
		roles:     roles,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "helpdesk-service",
	})
}

// Ready handles GET /ready. Database connectivity is required; cache and
// event bus degradation is reported but does not fail readiness. Role
// hierarchy violations are surfaced here as a diagnostic, never enforced.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{
		"cache":  h.permCache.IsAvailable(),
		"events": h.publisher.IsConnected(),
	}

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		checks["database"] = false
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	checks["database"] = true

	if violations, err := h.roles.CheckHierarchyIntegrity(c.Request.Context()); err == nil && len(violations) > 0 {
		names := make([]string, 0, len(violations))
		for _, role := range violations {
			names = append(names, role.Name)
		}
		checks["hierarchy_violations"] = names
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}
