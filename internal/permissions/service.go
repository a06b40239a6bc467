package permissions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"helpdesk-service/internal/cache"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/repository"
	"helpdesk-service/internal/timeutil"
)

// slowResolveThreshold is the warmed-path performance contract. Exceeding it
// is logged, never failed.
const slowResolveThreshold = 10 * time.Millisecond

// Service resolves the effective permission set for a user: the union of
// permissions from active non-expired role assignments (normal and temporal)
// plus any active emergency grant's extra permissions.
//
// The role-derived portion is cached per user; the emergency layer is
// re-checked against the database timestamps on every call so that a cached
// entry can never extend an expired or consumed grant.
type Service struct {
	rbacRepo      repository.RBACRepository
	emergencyRepo repository.EmergencyRepository
	permCache     *cache.PermissionCache
	logger        *logrus.Entry
}

// NewService creates a permission resolution service
func NewService(rbacRepo repository.RBACRepository, emergencyRepo repository.EmergencyRepository, permCache *cache.PermissionCache, logger *logrus.Logger) *Service {
	return &Service{
		rbacRepo:      rbacRepo,
		emergencyRepo: emergencyRepo,
		permCache:     permCache,
		logger:        logger.WithField("component", "permission_service"),
	}
}

// GetUserPermissions returns the user's resolved permission state
func (s *Service) GetUserPermissions(ctx context.Context, userID uuid.UUID) (*models.EffectivePermissions, error) {
	start := time.Now()

	perms, err := s.resolveRolePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Emergency layer: never taken from the cache
	if emergency, eerr := s.activeEmergency(ctx, userID); eerr == nil && emergency != nil {
		perms.EmergencyActive = true
		perms.Permissions = appendUnique(perms.Permissions, emergency.PermissionNames())
	}

	if elapsed := time.Since(start); elapsed > slowResolveThreshold {
		s.logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"elapsed_ms": elapsed.Milliseconds(),
		}).Warn("Slow permission resolution")
	}

	return perms, nil
}

// PermissionCheck is the outcome of a single permission test. ViaEmergency
// marks decisions that only an active emergency grant could satisfy; callers
// must audit those.
type PermissionCheck struct {
	Allowed      bool
	ViaEmergency bool
	EmergencyID  *uuid.UUID
}

// CheckPermission reports whether the user currently holds the permission,
// honoring wildcards in both the required and the held strings. Role-derived
// permissions are tested first; the emergency layer is consulted only when
// they fall short, so ViaEmergency is set exactly when the grant made the
// difference.
func (s *Service) CheckPermission(ctx context.Context, userID uuid.UUID, permission string) (PermissionCheck, error) {
	perms, err := s.resolveRolePermissions(ctx, userID)
	if err != nil {
		return PermissionCheck{}, err
	}
	if PermissionSatisfied(permission, perms.Permissions) {
		return PermissionCheck{Allowed: true}, nil
	}

	emergency, err := s.activeEmergency(ctx, userID)
	if err != nil || emergency == nil {
		return PermissionCheck{}, err
	}
	if PermissionSatisfied(permission, emergency.PermissionNames()) {
		id := emergency.ID
		return PermissionCheck{Allowed: true, ViaEmergency: true, EmergencyID: &id}, nil
	}
	return PermissionCheck{}, nil
}

// UserHasPermission reports whether the user currently holds the permission
func (s *Service) UserHasPermission(ctx context.Context, userID uuid.UUID, permission string) (bool, error) {
	check, err := s.CheckPermission(ctx, userID, permission)
	if err != nil {
		return false, err
	}
	return check.Allowed, nil
}

// WarmUserCache precomputes and stores the user's role-derived permissions
func (s *Service) WarmUserCache(ctx context.Context, userID uuid.UUID) error {
	perms, err := s.computeRolePermissions(ctx, userID)
	if err != nil {
		return err
	}
	return s.permCache.Set(ctx, userID, perms)
}

// InvalidateUser drops the user's cache entry. Called on every role,
// temporal, or emergency mutation affecting the user.
func (s *Service) InvalidateUser(ctx context.Context, userID uuid.UUID) {
	if err := s.permCache.Invalidate(ctx, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate permission cache")
	}
}

// InvalidateAll drops every cached permission set. Used when a role's
// permission set changes, which affects an unknown set of users.
func (s *Service) InvalidateAll(ctx context.Context) {
	if err := s.permCache.InvalidateAll(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate permission cache")
	}
}

// GetCacheStats exposes cache counters for the operational surface
func (s *Service) GetCacheStats() cache.Stats {
	return s.permCache.GetStats()
}

// GetUserMaxHierarchyLevel returns the highest hierarchy level among the
// user's currently valid roles. Hierarchy comparisons guard grants and
// revocations, so this always reads the database rather than the cache.
func (s *Service) GetUserMaxHierarchyLevel(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.rbacRepo.GetUserMaxHierarchyLevel(ctx, userID)
}

// resolveRolePermissions consults the cache first; a store failure degrades
// to recomputation, never a denied request.
func (s *Service) resolveRolePermissions(ctx context.Context, userID uuid.UUID) (*models.EffectivePermissions, error) {
	cached, err := s.permCache.Get(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Warn("Permission cache unavailable, recomputing from storage")
	} else if cached != nil {
		return cached, nil
	}

	perms, err := s.computeRolePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.permCache.Set(ctx, userID, perms); err != nil {
		s.logger.WithError(err).Debug("Failed to store permission cache entry")
	}
	return perms, nil
}

func (s *Service) computeRolePermissions(ctx context.Context, userID uuid.UUID) (*models.EffectivePermissions, error) {
	assignments, err := s.rbacRepo.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &models.EffectivePermissions{
		UserID:      userID,
		Permissions: make([]string, 0),
		Roles:       make([]string, 0),
	}

	now := time.Now()
	seen := make(map[string]bool)
	for _, assignment := range assignments {
		if assignment.Role == nil || !assignment.Role.IsActive {
			continue
		}
		// Storage filters expired assignments; re-check here so a stale
		// read can never grant through an expired temporal assignment.
		if timeutil.IsPast(assignment.ExpiresAt, now) {
			continue
		}
		result.Roles = append(result.Roles, assignment.Role.Name)
		if assignment.Role.HierarchyLevel > result.MaxHierarchyLevel {
			result.MaxHierarchyLevel = assignment.Role.HierarchyLevel
		}
		for _, perm := range assignment.Role.Permissions {
			if perm.IsActive && !seen[perm.Name] {
				seen[perm.Name] = true
				result.Permissions = append(result.Permissions, perm.Name)
			}
		}
	}

	return result, nil
}

func (s *Service) activeEmergency(ctx context.Context, userID uuid.UUID) (*models.EmergencyAccess, error) {
	now := time.Now()
	record, err := s.emergencyRepo.GetActiveByUser(ctx, userID, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	// The query already filters on activity; re-check the record so a stale
	// row can never extend an expired or revoked grant.
	if !record.IsCurrentlyActive(now) {
		return nil, nil
	}
	return record, nil
}

func appendUnique(base []string, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, p := range base {
		seen[p] = true
	}
	for _, p := range extra {
		if !seen[p] {
			seen[p] = true
			base = append(base, p)
		}
	}
	return base
}
