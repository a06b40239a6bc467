package policies

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/repository"
)

// Decision is the outcome of a policy evaluation. AuditAction is non-empty
// only when the decision must be recorded: emergency-authorized grants and
// unauthorized attempts. Normal permission-authorized grants are not audited.
type Decision struct {
	Allowed           bool
	AuditAction       string
	EmergencyAccessID *uuid.UUID
	Reason            string
}

// Allow is a plain, un-audited grant
func Allow() Decision {
	return Decision{Allowed: true}
}

// AllowEmergency is a grant authorized by an active emergency access record
func AllowEmergency(accessID uuid.UUID) Decision {
	return Decision{
		Allowed:           true,
		AuditAction:       models.AuditEmergencyUsed,
		EmergencyAccessID: &accessID,
		Reason:            "authorized via emergency access",
	}
}

// Deny is a plain denial; callers surface it as a generic 403
func Deny() Decision {
	return Decision{Allowed: false}
}

// DenyAudited is a denial that must leave an unauthorized_access_attempt entry
func DenyAudited(reason string) Decision {
	return Decision{
		Allowed:     false,
		AuditAction: models.AuditUnauthorizedAttempt,
		Reason:      reason,
	}
}

// PermissionChecker is the slice of the permission service the policies need
type PermissionChecker interface {
	GetUserPermissions(ctx context.Context, userID uuid.UUID) (*models.EffectivePermissions, error)
	GetUserMaxHierarchyLevel(ctx context.Context, userID uuid.UUID) (int, error)
}

// EmergencyChecker reports a user's active emergency grant, if any
type EmergencyChecker interface {
	GetActiveEmergencyAccess(ctx context.Context, userID uuid.UUID) (*models.EmergencyAccess, error)
}

// AuditWriter persists audit-worthy decisions. Write failures are logged but
// never block the decision they describe.
type AuditWriter struct {
	repo   repository.AuditRepository
	logger *logrus.Entry
}

func NewAuditWriter(repo repository.AuditRepository, logger *logrus.Logger) *AuditWriter {
	return &AuditWriter{
		repo:   repo,
		logger: logger.WithField("component", "audit_writer"),
	}
}

// Record writes the audit entry for a decision, if it carries one.
func (w *AuditWriter) Record(ctx context.Context, decision Decision, actorID uuid.UUID, entityType string, entityID *uuid.UUID) {
	if decision.AuditAction == "" {
		return
	}

	entry := &models.PermissionAudit{
		UserID:      &actorID,
		Action:      decision.AuditAction,
		EntityType:  &entityType,
		EntityID:    entityID,
		PerformedBy: &actorID,
	}
	if decision.Reason != "" {
		reason := decision.Reason
		entry.Reason = &reason
	}
	if decision.EmergencyAccessID != nil {
		entry.NewValues = &models.JSON{"emergency_access_id": decision.EmergencyAccessID.String()}
	}

	if err := w.repo.Create(ctx, entry); err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"action":   decision.AuditAction,
			"actor_id": actorID,
		}).Error("Failed to write audit entry")
	}
}
