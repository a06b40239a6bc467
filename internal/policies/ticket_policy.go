package policies

import (
	"context"
	"fmt"

	"helpdesk-service/internal/models"
	"helpdesk-service/internal/permissions"
)

// TicketPolicy makes per-ticket authorization decisions. Evaluation order for
// every action: active emergency access grants immediately (and is audited);
// otherwise the `tickets.<action>_all` / `_department` / `_own` permission
// ladder applies.
type TicketPolicy struct {
	checker   PermissionChecker
	emergency EmergencyChecker
}

func NewTicketPolicy(checker PermissionChecker, emergency EmergencyChecker) *TicketPolicy {
	return &TicketPolicy{checker: checker, emergency: emergency}
}

func (p *TicketPolicy) View(ctx context.Context, user *models.User, ticket *models.Ticket) Decision {
	return p.decide(ctx, user, ticket, "view")
}

func (p *TicketPolicy) Update(ctx context.Context, user *models.User, ticket *models.Ticket) Decision {
	return p.decide(ctx, user, ticket, "update")
}

func (p *TicketPolicy) Delete(ctx context.Context, user *models.User, ticket *models.Ticket) Decision {
	return p.decide(ctx, user, ticket, "delete")
}

func (p *TicketPolicy) Assign(ctx context.Context, user *models.User, ticket *models.Ticket) Decision {
	return p.decide(ctx, user, ticket, "assign")
}

func (p *TicketPolicy) Close(ctx context.Context, user *models.User, ticket *models.Ticket) Decision {
	return p.decide(ctx, user, ticket, "close")
}

func (p *TicketPolicy) decide(ctx context.Context, user *models.User, ticket *models.Ticket, action string) Decision {
	if user == nil || ticket == nil {
		return Deny()
	}

	if d, ok := p.emergencyGrant(ctx, user); ok {
		return d
	}

	perms, err := p.checker.GetUserPermissions(ctx, user.ID)
	if err != nil {
		return Deny()
	}
	held := perms.Permissions

	if permissions.PermissionSatisfied(fmt.Sprintf("tickets.%s_all", action), held) {
		return Allow()
	}
	if permissions.PermissionSatisfied(fmt.Sprintf("tickets.%s_department", action), held) &&
		departmentInScope(user, ticket.Department) {
		return Allow()
	}
	if permissions.PermissionSatisfied(fmt.Sprintf("tickets.%s_own", action), held) && ownsTicket(user, ticket) {
		return Allow()
	}

	return DenyAudited(fmt.Sprintf("tickets.%s denied", action))
}

// emergencyGrant returns an emergency-authorized decision when the user holds
// an active grant. No active grant is the common case and produces no audit.
func (p *TicketPolicy) emergencyGrant(ctx context.Context, user *models.User) (Decision, bool) {
	record, err := p.emergency.GetActiveEmergencyAccess(ctx, user.ID)
	if err != nil || record == nil {
		return Decision{}, false
	}
	return AllowEmergency(record.ID), true
}

func ownsTicket(user *models.User, ticket *models.Ticket) bool {
	if ticket.CreatedBy == user.ID {
		return true
	}
	return ticket.AssignedTo != nil && *ticket.AssignedTo == user.ID
}
