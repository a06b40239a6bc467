package policies

import (
	"context"

	"github.com/google/uuid"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/permissions"
)

// RolePolicy makes role-management authorization decisions. Beyond the
// permission check, every role-hierarchy action requires the target role's
// level to be strictly below the actor's maximum held level, which makes
// self-elevation and lateral grants structurally impossible.
type RolePolicy struct {
	checker   PermissionChecker
	emergency EmergencyChecker
}

func NewRolePolicy(checker PermissionChecker, emergency EmergencyChecker) *RolePolicy {
	return &RolePolicy{checker: checker, emergency: emergency}
}

// Assign decides whether actor may assign role to targetUserID
func (p *RolePolicy) Assign(ctx context.Context, actor *models.User, role *models.Role, targetUserID uuid.UUID) Decision {
	if actor == nil || role == nil {
		return Deny()
	}
	// A user may never assign a role to themselves, emergency access or not
	if actor.ID == targetUserID {
		return DenyAudited("self role assignment attempt")
	}
	return p.hierarchyDecision(ctx, actor, role, "roles.assign")
}

// Revoke decides whether actor may revoke role from targetUserID
func (p *RolePolicy) Revoke(ctx context.Context, actor *models.User, role *models.Role, targetUserID uuid.UUID) Decision {
	if actor == nil || role == nil {
		return Deny()
	}
	// Revoking one's own permissions-bearing role is forbidden
	if actor.ID == targetUserID {
		return DenyAudited("self role revocation attempt")
	}
	return p.hierarchyDecision(ctx, actor, role, "roles.revoke")
}

// ManagePermissions decides whether actor may change the role's permission set
func (p *RolePolicy) ManagePermissions(ctx context.Context, actor *models.User, role *models.Role) Decision {
	if actor == nil || role == nil {
		return Deny()
	}
	return p.hierarchyDecision(ctx, actor, role, "roles.manage_permissions")
}

// Impersonate decides whether actor may impersonate target. Requires the
// target's maximum level to be strictly lower, and never the actor themselves.
func (p *RolePolicy) Impersonate(ctx context.Context, actor *models.User, target *models.User) Decision {
	if actor == nil || target == nil {
		return Deny()
	}
	if actor.ID == target.ID {
		return DenyAudited("self impersonation attempt")
	}

	perms, err := p.checker.GetUserPermissions(ctx, actor.ID)
	if err != nil {
		return Deny()
	}
	if !permissions.PermissionSatisfied("users.impersonate", perms.Permissions) {
		return DenyAudited("users.impersonate denied")
	}

	targetLevel, err := p.checker.GetUserMaxHierarchyLevel(ctx, target.ID)
	if err != nil {
		return Deny()
	}
	if targetLevel >= perms.MaxHierarchyLevel {
		return DenyAudited("impersonation target not strictly lower in hierarchy")
	}
	return Allow()
}

// hierarchyDecision applies the shared permission + strict-hierarchy ladder.
// Equal levels are forbidden: strictly-less-than is required.
func (p *RolePolicy) hierarchyDecision(ctx context.Context, actor *models.User, role *models.Role, permission string) Decision {
	if record, err := p.emergency.GetActiveEmergencyAccess(ctx, actor.ID); err == nil && record != nil {
		// Emergency access still cannot bypass the hierarchy invariant
		level, lerr := p.checker.GetUserMaxHierarchyLevel(ctx, actor.ID)
		if lerr == nil && role.HierarchyLevel < level {
			return AllowEmergency(record.ID)
		}
		return DenyAudited("hierarchy violation under emergency access")
	}

	perms, err := p.checker.GetUserPermissions(ctx, actor.ID)
	if err != nil {
		return Deny()
	}
	if !permissions.PermissionSatisfied(permission, perms.Permissions) {
		return DenyAudited(permission + " denied")
	}
	if role.HierarchyLevel >= perms.MaxHierarchyLevel {
		return DenyAudited("target role not strictly lower in hierarchy")
	}
	return Allow()
}
