package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"helpdesk-service/internal/middleware"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/permissions"
	"helpdesk-service/internal/repository"
	"helpdesk-service/internal/services"
)

// RBACHandler exposes the role, temporal access, emergency access, audit,
// and cache administration endpoints.
type RBACHandler struct {
	roles     *services.RoleService
	temporal  *services.TemporalAccessService
	emergency *services.EmergencyAccessService
	perms     *permissions.Service
	auditRepo repository.AuditRepository
	logger    *logrus.Entry
}

func NewRBACHandler(
	roles *services.RoleService,
	temporal *services.TemporalAccessService,
	emergency *services.EmergencyAccessService,
	perms *permissions.Service,
	auditRepo repository.AuditRepository,
	logger *logrus.Logger,
) *RBACHandler {
	return &RBACHandler{
		roles:     roles,
		temporal:  temporal,
		emergency: emergency,
		perms:     perms,
		auditRepo: auditRepo,
		logger:    logger.WithField("component", "rbac_handler"),
	}
}

// ===== ROLES =====

// ListRoles handles GET /api/v1/roles
func (h *RBACHandler) ListRoles(c *gin.Context) {
	page, limit := parsePagination(c)
	roles, pagination, err := h.roles.ListRoles(c.Request.Context(), page, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list roles")
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.RoleListResponse{
		Success:    true,
		Data:       roles,
		Pagination: pagination,
	})
}

// AssignRole handles POST /api/v1/users/:userId/roles
func (h *RBACHandler) AssignRole(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	targetID, ok := parseUUIDParam(c, "userId")
	if !ok {
		return
	}

	var req models.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	assignment, err := h.roles.AssignRole(c.Request.Context(), actorID, targetID, req.RoleID, req.ExpiresAt, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.SuccessResponse{Success: true, Data: assignment})
}

// RevokeRole handles DELETE /api/v1/users/:userId/roles/:roleId
func (h *RBACHandler) RevokeRole(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	targetID, ok := parseUUIDParam(c, "userId")
	if !ok {
		return
	}
	roleID, ok := parseUUIDParam(c, "roleId")
	if !ok {
		return
	}

	if err := h.roles.RevokeRole(c.Request.Context(), actorID, targetID, roleID); err != nil {
		respondServiceError(c, err)
		return
	}
	message := "Role revoked"
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &message})
}

// SetRolePermissionsRequest is the payload for replacing a role's permissions
type SetRolePermissionsRequest struct {
	PermissionIDs []uuid.UUID `json:"permissionIds" binding:"required"`
}

// SetRolePermissions handles PUT /api/v1/roles/:roleId/permissions
func (h *RBACHandler) SetRolePermissions(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	roleID, ok := parseUUIDParam(c, "roleId")
	if !ok {
		return
	}

	var req SetRolePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	if err := h.roles.SetRolePermissions(c.Request.Context(), actorID, roleID, req.PermissionIDs); err != nil {
		respondServiceError(c, err)
		return
	}
	message := "Role permissions updated"
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &message})
}

// GetEffectivePermissions handles GET /api/v1/users/:userId/permissions
func (h *RBACHandler) GetEffectivePermissions(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userId")
	if !ok {
		return
	}

	perms, err := h.perms.GetUserPermissions(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to resolve permissions")
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: perms})
}

// ===== TEMPORAL ACCESS =====

// GrantTemporal handles POST /api/v1/access/temporal/grants
func (h *RBACHandler) GrantTemporal(c *gin.Context) {
	actorID, _ := middleware.UserID(c)

	var req models.TemporalGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	assignment, err := h.temporal.GrantTemporary(c.Request.Context(), req.UserID, req.RoleID, req.ExpiresAt, req.Reason, actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.SuccessResponse{Success: true, Data: assignment})
}

// TemporalRequestRequest is the payload for a self-service access request
type TemporalRequestRequest struct {
	RoleID          uuid.UUID `json:"roleId" binding:"required"`
	DurationMinutes int       `json:"durationMinutes" binding:"required"`
	Reason          string    `json:"reason" binding:"required"`
}

// RequestTemporal handles POST /api/v1/access/temporal/requests
func (h *RBACHandler) RequestTemporal(c *gin.Context) {
	actorID, _ := middleware.UserID(c)

	var req TemporalRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	request, err := h.temporal.RequestTemporary(c.Request.Context(), actorID, req.RoleID,
		time.Duration(req.DurationMinutes)*time.Minute, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.SuccessResponse{Success: true, Data: request})
}

// ListPendingTemporal handles GET /api/v1/access/temporal/requests
func (h *RBACHandler) ListPendingTemporal(c *gin.Context) {
	pending, err := h.temporal.ListPendingRequests(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: pending})
}

// ReviewNotes is the optional payload for approve/deny
type ReviewNotes struct {
	Notes *string `json:"notes,omitempty"`
}

// ApproveTemporal handles POST /api/v1/access/temporal/requests/:requestId/approve
func (h *RBACHandler) ApproveTemporal(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	requestID, ok := parseUUIDParam(c, "requestId")
	if !ok {
		return
	}

	var req ReviewNotes
	_ = c.ShouldBindJSON(&req)

	assignment, err := h.temporal.ApproveRequest(c.Request.Context(), requestID, actorID, req.Notes)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: assignment})
}

// DenyTemporal handles POST /api/v1/access/temporal/requests/:requestId/deny
func (h *RBACHandler) DenyTemporal(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	requestID, ok := parseUUIDParam(c, "requestId")
	if !ok {
		return
	}

	var req ReviewNotes
	_ = c.ShouldBindJSON(&req)

	if err := h.temporal.DenyRequest(c.Request.Context(), requestID, actorID, req.Notes); err != nil {
		respondServiceError(c, err)
		return
	}
	message := "Request denied"
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &message})
}

// ===== EMERGENCY ACCESS =====

// GenerateBreakGlass handles POST /api/v1/access/emergency/break-glass
func (h *RBACHandler) GenerateBreakGlass(c *gin.Context) {
	actorID, _ := middleware.UserID(c)

	var req models.BreakGlassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	token, record, err := h.emergency.GenerateBreakGlass(c.Request.Context(), req.UserID, req.Reason, actorID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	// The plaintext token is returned exactly once and never stored
	c.JSON(http.StatusCreated, models.SuccessResponse{
		Success: true,
		Data: gin.H{
			"token":     token,
			"expiresAt": record.ExpiresAt,
			"accessId":  record.ID,
		},
	})
}

// ConsumeBreakGlassRequest carries the one-time token
type ConsumeBreakGlassRequest struct {
	Token string `json:"token" binding:"required"`
}

// ConsumeBreakGlass handles POST /api/v1/access/emergency/break-glass/consume.
// The token itself is the credential; the route is unauthenticated.
func (h *RBACHandler) ConsumeBreakGlass(c *gin.Context) {
	var req ConsumeBreakGlassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	record, err := h.emergency.ConsumeBreakGlass(c.Request.Context(), req.Token, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: record})
}

// RequestEmergency handles POST /api/v1/access/emergency/session
func (h *RBACHandler) RequestEmergency(c *gin.Context) {
	actorID, _ := middleware.UserID(c)

	var req models.EmergencyAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	record, err := h.emergency.RequestEmergencyAccess(c.Request.Context(), actorID, req.Password,
		req.Permissions, req.Reason, duration, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.SuccessResponse{Success: true, Data: record})
}

// EmergencyStats handles GET /api/v1/access/emergency/stats
func (h *RBACHandler) EmergencyStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 {
		days = 30
	}

	stats, err := h.emergency.GetEmergencyAccessStats(c.Request.Context(), days)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: stats})
}

// ===== AUDIT =====

// ListAudit handles GET /api/v1/audit
func (h *RBACHandler) ListAudit(c *gin.Context) {
	page, limit := parsePagination(c)

	filters := repository.AuditFilters{}
	if raw := c.Query("userId"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			filters.UserID = &id
		}
	}
	if raw := c.Query("performedBy"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			filters.PerformedBy = &id
		}
	}
	if action := c.Query("action"); action != "" {
		filters.Action = action
	}
	if raw := c.Query("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.From = &t
		}
	}
	if raw := c.Query("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filters.To = &t
		}
	}

	entries, pagination, err := h.auditRepo.List(c.Request.Context(), filters, page, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list audit entries")
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       entries,
		"pagination": pagination,
	})
}

// ===== CACHE ADMINISTRATION =====

// CacheStats handles GET /api/v1/admin/cache/stats
func (h *RBACHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: h.perms.GetCacheStats()})
}

// WarmCache handles POST /api/v1/admin/cache/warm/:userId
func (h *RBACHandler) WarmCache(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "userId")
	if !ok {
		return
	}

	if err := h.perms.WarmUserCache(c.Request.Context(), userID); err != nil {
		respondServiceError(c, err)
		return
	}
	message := "Cache warmed"
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &message})
}
