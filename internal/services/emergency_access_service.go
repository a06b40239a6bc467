package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"helpdesk-service/internal/clients"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/permissions"
	"helpdesk-service/internal/repository"
)

const (
	breakGlassWindow      = 10 * time.Minute
	defaultSessionWindow  = 60 * time.Minute
	breakGlassTokenBytes  = 32
	breakGlassPermissions = "*" // break-glass grants the full permission space
)

var (
	// ErrTokenNotFound covers unknown, expired, and already-consumed tokens
	// alike so that callers cannot distinguish them.
	ErrTokenNotFound    = errors.New("token not found")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrUserNotFound     = errors.New("user not found")
)

// EmergencyAccessService grants break-glass and session-style emergency
// access. Break-glass tokens are high-entropy, stored hashed, valid for ten
// minutes, and single-use.
type EmergencyAccessService struct {
	emergencyRepo repository.EmergencyRepository
	rbacRepo      repository.RBACRepository
	auditRepo     repository.AuditRepository
	perms         *permissions.Service
	notifier      clients.Notifier
	logger        *logrus.Entry
}

func NewEmergencyAccessService(emergencyRepo repository.EmergencyRepository, rbacRepo repository.RBACRepository, auditRepo repository.AuditRepository, perms *permissions.Service, notifier clients.Notifier, logger *logrus.Logger) *EmergencyAccessService {
	return &EmergencyAccessService{
		emergencyRepo: emergencyRepo,
		rbacRepo:      rbacRepo,
		auditRepo:     auditRepo,
		perms:         perms,
		notifier:      notifier,
		logger:        logger.WithField("component", "emergency_access"),
	}
}

// GenerateBreakGlass issues a single-use break-glass token for the user. The
// plaintext token is returned exactly once; only its hash is stored.
func (s *EmergencyAccessService) GenerateBreakGlass(ctx context.Context, forUser uuid.UUID, reason string, grantedBy uuid.UUID) (string, *models.EmergencyAccess, error) {
	token, err := randomToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	hash := hashToken(token)

	perms, _ := json.Marshal([]string{breakGlassPermissions})
	record := &models.EmergencyAccess{
		UserID:      forUser,
		AccessType:  models.EmergencyAccessBreakGlass,
		Permissions: datatypes.JSON(perms),
		TokenHash:   &hash,
		Reason:      reason,
		ExpiresAt:   time.Now().Add(breakGlassWindow),
		GrantedBy:   &grantedBy,
	}
	if err := s.emergencyRepo.Create(ctx, record); err != nil {
		return "", nil, err
	}

	s.perms.InvalidateUser(ctx, forUser)
	s.audit(ctx, grantedBy, models.AuditEmergencyGranted, &forUser, reason, &models.JSON{
		"access_type": string(models.EmergencyAccessBreakGlass),
		"expires_at":  record.ExpiresAt,
	})
	return token, record, nil
}

// ConsumeBreakGlass redeems a break-glass token. Only the first consumption
// succeeds; every later attempt, and every unknown token, fails as not found.
func (s *EmergencyAccessService) ConsumeBreakGlass(ctx context.Context, token string, ipAddress, userAgent string) (*models.EmergencyAccess, error) {
	record, err := s.emergencyRepo.ConsumeByTokenHash(ctx, hashToken(token), time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	s.perms.InvalidateUser(ctx, record.UserID)
	entry := &models.PermissionAudit{
		UserID:    &record.UserID,
		Action:    models.AuditEmergencyUsed,
		Reason:    &record.Reason,
		IPAddress: &ipAddress,
		UserAgent: &userAgent,
		NewValues: &models.JSON{"emergency_access_id": record.ID.String()},
	}
	if aerr := s.auditRepo.Create(ctx, entry); aerr != nil {
		s.logger.WithError(aerr).Error("Failed to audit break-glass consumption")
	}
	return record, nil
}

// RequestEmergencyAccess grants session-style emergency access after
// re-verifying the requester's password. The originating IP and user agent
// are recorded and the user is notified out of band.
func (s *EmergencyAccessService) RequestEmergencyAccess(ctx context.Context, userID uuid.UUID, password string, grantPerms []string, reason string, duration time.Duration, ipAddress, userAgent string) (*models.EmergencyAccess, error) {
	user, err := s.rbacRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.audit(ctx, userID, models.AuditUnauthorizedAttempt, &userID, "emergency access password verification failed", nil)
		return nil, ErrInvalidPassword
	}

	if duration <= 0 {
		duration = defaultSessionWindow
	}

	permsJSON, _ := json.Marshal(grantPerms)
	record := &models.EmergencyAccess{
		UserID:      userID,
		AccessType:  models.EmergencyAccessSession,
		Permissions: datatypes.JSON(permsJSON),
		Reason:      reason,
		ExpiresAt:   time.Now().Add(duration),
		IPAddress:   &ipAddress,
		UserAgent:   &userAgent,
	}
	if err := s.emergencyRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	s.perms.InvalidateUser(ctx, userID)
	s.audit(ctx, userID, models.AuditEmergencyGranted, &userID, reason, &models.JSON{
		"access_type": string(models.EmergencyAccessSession),
		"permissions": grantPerms,
		"expires_at":  record.ExpiresAt,
	})

	if s.notifier != nil {
		subject := "Emergency access granted to your account"
		body := fmt.Sprintf("Emergency access was granted at %s. Reason: %s. If this was not you, contact your administrator immediately.",
			record.CreatedAt.Format(time.RFC3339), reason)
		if nerr := s.notifier.Send(ctx, user.Email, subject, body, nil); nerr != nil {
			s.logger.WithError(nerr).Warn("Failed to send emergency access notification")
		}
	}

	return record, nil
}

// HasEmergencyAccess reports whether the user currently holds an active grant
func (s *EmergencyAccessService) HasEmergencyAccess(ctx context.Context, userID uuid.UUID) bool {
	record, err := s.GetActiveEmergencyAccess(ctx, userID)
	return err == nil && record != nil
}

// GetActiveEmergencyAccess returns the user's active grant, or nil
func (s *EmergencyAccessService) GetActiveEmergencyAccess(ctx context.Context, userID uuid.UUID) (*models.EmergencyAccess, error) {
	record, err := s.emergencyRepo.GetActiveByUser(ctx, userID, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// CleanupExpiredEmergencyAccess deactivates expired and consumed records.
// Rows are never deleted; the audit trail stays intact.
func (s *EmergencyAccessService) CleanupExpiredEmergencyAccess(ctx context.Context) (int64, error) {
	count, err := s.emergencyRepo.DeactivateExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.WithField("count", count).Info("Deactivated expired emergency access records")
		// System revocation: no acting user
		entry := &models.PermissionAudit{
			Action:    models.AuditEmergencyRevoked,
			NewValues: &models.JSON{"deactivated": count, "source": "expiry_sweep"},
		}
		if err := s.auditRepo.Create(ctx, entry); err != nil {
			s.logger.WithError(err).Error("Failed to audit emergency access sweep")
		}
	}
	return count, nil
}

// GetEmergencyAccessStats summarizes activity over the trailing N days
func (s *EmergencyAccessService) GetEmergencyAccessStats(ctx context.Context, days int) (*repository.EmergencyStats, error) {
	since := time.Now().AddDate(0, 0, -days)
	stats, err := s.emergencyRepo.GetStats(ctx, since)
	if err != nil {
		return nil, err
	}
	denied, err := s.auditRepo.CountByAction(ctx, models.AuditUnauthorizedAttempt, since)
	if err != nil {
		return nil, err
	}
	stats.UnauthorizedAttempts = denied
	return stats, nil
}

func (s *EmergencyAccessService) audit(ctx context.Context, actorID uuid.UUID, action string, targetUserID *uuid.UUID, reason string, values *models.JSON) {
	entry := &models.PermissionAudit{
		UserID:      targetUserID,
		Action:      action,
		PerformedBy: &actorID,
		Reason:      &reason,
		NewValues:   values,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("action", action).Error("Failed to write audit entry")
	}
}

func randomToken() (string, error) {
	buf := make([]byte, breakGlassTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
