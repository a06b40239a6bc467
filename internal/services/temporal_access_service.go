package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/permissions"
	"helpdesk-service/internal/repository"
)

var (
	ErrHierarchyViolation = errors.New("granter cannot assign a role at or above their own hierarchy level")
	ErrSelfGrant          = errors.New("users cannot grant roles to themselves")
	ErrExpiryInPast       = errors.New("expiry must be in the future")
	ErrRequestNotPending  = errors.New("temporal access request is not pending")
)

// TemporalAccessService grants and sweeps time-bound role assignments.
// Grants follow two paths: a direct administrator grant, or a user request
// that a higher-hierarchy approver must approve or deny.
type TemporalAccessService struct {
	rbacRepo  repository.RBACRepository
	auditRepo repository.AuditRepository
	perms     *permissions.Service
	logger    *logrus.Entry
}

func NewTemporalAccessService(rbacRepo repository.RBACRepository, auditRepo repository.AuditRepository, perms *permissions.Service, logger *logrus.Logger) *TemporalAccessService {
	return &TemporalAccessService{
		rbacRepo:  rbacRepo,
		auditRepo: auditRepo,
		perms:     perms,
		logger:    logger.WithField("component", "temporal_access"),
	}
}

// GrantTemporary creates a time-bound role assignment. The granter must hold
// a hierarchy level strictly above the granted role's level.
func (s *TemporalAccessService) GrantTemporary(ctx context.Context, userID, roleID uuid.UUID, expiresAt time.Time, reason string, grantedBy uuid.UUID) (*models.UserRole, error) {
	if userID == grantedBy {
		return nil, ErrSelfGrant
	}
	if !expiresAt.After(time.Now()) {
		return nil, ErrExpiryInPast
	}

	role, err := s.rbacRepo.GetRoleByID(ctx, roleID)
	if err != nil {
		return nil, err
	}

	granterLevel, err := s.perms.GetUserMaxHierarchyLevel(ctx, grantedBy)
	if err != nil {
		return nil, err
	}
	if role.HierarchyLevel >= granterLevel {
		s.audit(ctx, grantedBy, models.AuditUnauthorizedAttempt, &userID,
			fmt.Sprintf("temporal grant of %s refused: hierarchy", role.Name))
		return nil, ErrHierarchyViolation
	}

	assignment := &models.UserRole{
		UserID:     userID,
		RoleID:     roleID,
		AssignedBy: &grantedBy,
		ExpiresAt:  &expiresAt,
		Reason:     &reason,
	}
	if err := s.rbacRepo.AssignRole(ctx, assignment); err != nil {
		return nil, err
	}

	s.perms.InvalidateUser(ctx, userID)
	s.auditGrant(ctx, grantedBy, userID, role, expiresAt, reason)
	return assignment, nil
}

// CleanupExpiredPermissions revokes every assignment whose expiry has passed,
// invalidates the affected users' cache entries, and writes one audit entry
// per revocation. Idempotent: a run with no new expirations is a no-op.
func (s *TemporalAccessService) CleanupExpiredPermissions(ctx context.Context) (int, error) {
	expired, err := s.rbacRepo.FindExpiredAssignments(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, assignment := range expired {
		if err := s.rbacRepo.DeactivateAssignment(ctx, assignment.ID); err != nil {
			s.logger.WithError(err).WithField("assignment_id", assignment.ID).Error("Failed to revoke expired assignment")
			continue
		}
		revoked++

		s.perms.InvalidateUser(ctx, assignment.UserID)

		roleName := ""
		if assignment.Role != nil {
			roleName = assignment.Role.Name
		}
		entry := &models.PermissionAudit{
			UserID: &assignment.UserID,
			Action: models.AuditTemporalRevoked,
			OldValues: &models.JSON{
				"role":       roleName,
				"expires_at": assignment.ExpiresAt,
			},
		}
		if err := s.auditRepo.Create(ctx, entry); err != nil {
			s.logger.WithError(err).Error("Failed to audit temporal revocation")
		}
	}

	if revoked > 0 {
		s.logger.WithField("count", revoked).Info("Revoked expired temporal role assignments")
	}
	return revoked, nil
}

// GetExpiringRoles lists assignments expiring within the window, for
// notification purposes.
func (s *TemporalAccessService) GetExpiringRoles(ctx context.Context, within time.Duration) ([]models.UserRole, error) {
	return s.rbacRepo.FindExpiringAssignments(ctx, within, time.Now())
}

// RequestTemporary records a pending temporal access request for later review
func (s *TemporalAccessService) RequestTemporary(ctx context.Context, userID, roleID uuid.UUID, duration time.Duration, reason string) (*models.TemporalAccessRequest, error) {
	if _, err := s.rbacRepo.GetRoleByID(ctx, roleID); err != nil {
		return nil, err
	}

	req := &models.TemporalAccessRequest{
		UserID:          userID,
		RoleID:          roleID,
		DurationMinutes: int(duration.Minutes()),
		Reason:          reason,
	}
	if err := s.rbacRepo.CreateTemporalRequest(ctx, req); err != nil {
		return nil, err
	}

	s.audit(ctx, userID, models.AuditTemporalRequested, &userID, reason)
	return req, nil
}

// ApproveRequest activates a pending request as a temporal grant. The
// approver is subject to the same hierarchy rule as a direct granter.
func (s *TemporalAccessService) ApproveRequest(ctx context.Context, requestID, approvedBy uuid.UUID, notes *string) (*models.UserRole, error) {
	req, err := s.rbacRepo.GetTemporalRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.TemporalRequestPending {
		return nil, ErrRequestNotPending
	}

	// Mark the request reviewed before granting. The update is guarded on
	// the pending status, so a retried or concurrent approval cannot grant
	// the same request twice.
	if err := s.rbacRepo.ReviewTemporalRequest(ctx, requestID, models.TemporalRequestApproved, approvedBy, notes); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRequestNotPending
		}
		return nil, err
	}

	expiresAt := time.Now().Add(time.Duration(req.DurationMinutes) * time.Minute)
	assignment, err := s.GrantTemporary(ctx, req.UserID, req.RoleID, expiresAt, req.Reason, approvedBy)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, approvedBy, models.AuditTemporalApproved, &req.UserID, req.Reason)
	return assignment, nil
}

// DenyRequest marks a pending request denied. Denials are audited like
// approvals.
func (s *TemporalAccessService) DenyRequest(ctx context.Context, requestID, deniedBy uuid.UUID, notes *string) error {
	req, err := s.rbacRepo.GetTemporalRequestByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != models.TemporalRequestPending {
		return ErrRequestNotPending
	}

	if err := s.rbacRepo.ReviewTemporalRequest(ctx, requestID, models.TemporalRequestDenied, deniedBy, notes); err != nil {
		return err
	}

	s.audit(ctx, deniedBy, models.AuditTemporalDenied, &req.UserID, req.Reason)
	return nil
}

// ListPendingRequests returns requests awaiting review
func (s *TemporalAccessService) ListPendingRequests(ctx context.Context) ([]models.TemporalAccessRequest, error) {
	return s.rbacRepo.ListPendingTemporalRequests(ctx)
}

func (s *TemporalAccessService) auditGrant(ctx context.Context, grantedBy, userID uuid.UUID, role *models.Role, expiresAt time.Time, reason string) {
	entry := &models.PermissionAudit{
		UserID:      &userID,
		Action:      models.AuditTemporalGranted,
		PerformedBy: &grantedBy,
		Reason:      &reason,
		NewValues: &models.JSON{
			"role":       role.Name,
			"expires_at": expiresAt,
		},
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.WithError(err).Error("Failed to audit temporal grant")
	}
}

func (s *TemporalAccessService) audit(ctx context.Context, actorID uuid.UUID, action string, targetUserID *uuid.UUID, reason string) {
	entry := &models.PermissionAudit{
		UserID:      targetUserID,
		Action:      action,
		PerformedBy: &actorID,
		Reason:      &reason,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("action", action).Error("Failed to write audit entry")
	}
}
