package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"helpdesk-service/internal/events"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/permissions"
	"helpdesk-service/internal/policies"
	"helpdesk-service/internal/repository"
)

// ErrForbidden marks a policy denial; handlers map it to a generic 403.
var ErrForbidden = errors.New("forbidden")

// RoleService performs policy-checked role management: assignments,
// revocations, and role permission-set changes. Every mutation invalidates
// the affected permission cache entries and leaves an audit entry.
type RoleService struct {
	rbacRepo  repository.RBACRepository
	auditRepo repository.AuditRepository
	perms     *permissions.Service
	policy    *policies.RolePolicy
	audit     *policies.AuditWriter
	publisher *events.Publisher
	logger    *logrus.Entry
}

func NewRoleService(
	rbacRepo repository.RBACRepository,
	auditRepo repository.AuditRepository,
	perms *permissions.Service,
	policy *policies.RolePolicy,
	audit *policies.AuditWriter,
	publisher *events.Publisher,
	logger *logrus.Logger,
) *RoleService {
	return &RoleService{
		rbacRepo:  rbacRepo,
		auditRepo: auditRepo,
		perms:     perms,
		policy:    policy,
		audit:     audit,
		publisher: publisher,
		logger:    logger.WithField("component", "role_service"),
	}
}

// AssignRole assigns a role to a user on behalf of actor. An optional
// expiry makes the assignment temporal.
func (s *RoleService) AssignRole(
	ctx context.Context,
	actorID, targetUserID, roleID uuid.UUID,
	expiresAt *time.Time,
	reason *string,
) (*models.UserRole, error) {
	actor, err := s.rbacRepo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load actor: %w", err)
	}
	role, err := s.rbacRepo.GetRoleByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role: %w", err)
	}

	decision := s.policy.Assign(ctx, actor, role, targetUserID)
	s.audit.Record(ctx, decision, actorID, "role", &roleID)
	if !decision.Allowed {
		return nil, ErrForbidden
	}

	assignment := &models.UserRole{
		UserID:     targetUserID,
		RoleID:     roleID,
		AssignedBy: &actorID,
		ExpiresAt:  expiresAt,
		Reason:     reason,
		IsActive:   true,
	}
	if err := s.rbacRepo.AssignRole(ctx, assignment); err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}

	s.perms.InvalidateUser(ctx, targetUserID)
	s.writeAudit(ctx, actorID, models.AuditRoleAssigned, &targetUserID, &models.JSON{
		"role_id":   roleID.String(),
		"role_name": role.Name,
	})
	s.publisher.Publish(events.SubjectPermissionsChanged, map[string]interface{}{
		"user_id": targetUserID.String(),
		"role_id": roleID.String(),
		"change":  "role_assigned",
	})

	return assignment, nil
}

// RevokeRole removes an active role assignment
func (s *RoleService) RevokeRole(ctx context.Context, actorID, targetUserID, roleID uuid.UUID) error {
	actor, err := s.rbacRepo.GetUserByID(ctx, actorID)
	if err != nil {
		return fmt.Errorf("failed to load actor: %w", err)
	}
	role, err := s.rbacRepo.GetRoleByID(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to load role: %w", err)
	}

	decision := s.policy.Revoke(ctx, actor, role, targetUserID)
	s.audit.Record(ctx, decision, actorID, "role", &roleID)
	if !decision.Allowed {
		return ErrForbidden
	}

	if err := s.rbacRepo.RevokeRole(ctx, targetUserID, roleID); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	s.perms.InvalidateUser(ctx, targetUserID)
	s.writeAudit(ctx, actorID, models.AuditRoleRevoked, &targetUserID, &models.JSON{
		"role_id":   roleID.String(),
		"role_name": role.Name,
	})
	s.publisher.Publish(events.SubjectPermissionsChanged, map[string]interface{}{
		"user_id": targetUserID.String(),
		"role_id": roleID.String(),
		"change":  "role_revoked",
	})

	return nil
}

// SetRolePermissions replaces a role's permission set. Since an unknown set
// of users holds the role, the whole permission cache is invalidated.
func (s *RoleService) SetRolePermissions(ctx context.Context, actorID, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	actor, err := s.rbacRepo.GetUserByID(ctx, actorID)
	if err != nil {
		return fmt.Errorf("failed to load actor: %w", err)
	}
	role, err := s.rbacRepo.GetRoleByID(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to load role: %w", err)
	}

	decision := s.policy.ManagePermissions(ctx, actor, role)
	s.audit.Record(ctx, decision, actorID, "role", &roleID)
	if !decision.Allowed {
		return ErrForbidden
	}

	if err := s.rbacRepo.SetRolePermissions(ctx, roleID, permissionIDs, actorID.String()); err != nil {
		return fmt.Errorf("failed to set role permissions: %w", err)
	}

	s.perms.InvalidateAll(ctx)
	s.writeAudit(ctx, actorID, models.AuditPermissionsChanged, nil, &models.JSON{
		"role_id":          roleID.String(),
		"role_name":        role.Name,
		"permission_count": len(permissionIDs),
	})

	return nil
}

// ListRoles returns roles with assignment counts
func (s *RoleService) ListRoles(ctx context.Context, page, limit int) ([]models.Role, *models.PaginationInfo, error) {
	return s.rbacRepo.ListRoles(ctx, page, limit)
}

// CheckHierarchyIntegrity reports roles whose permission set is not a
// superset of the next lower level. Read-only: violations are surfaced on
// the health surface, enforcement stays with the policies.
func (s *RoleService) CheckHierarchyIntegrity(ctx context.Context) ([]models.Role, error) {
	return s.rbacRepo.FindHierarchyViolations(ctx)
}

func (s *RoleService) writeAudit(ctx context.Context, actorID uuid.UUID, action string, targetUserID *uuid.UUID, values *models.JSON) {
	entityType := "user_role"
	entry := &models.PermissionAudit{
		UserID:      targetUserID,
		Action:      action,
		EntityType:  &entityType,
		PerformedBy: &actorID,
		NewValues:   values,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("action", action).Error("Failed to write audit entry")
	}
}
