package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"helpdesk-service/internal/events"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/policies"
	"helpdesk-service/internal/repository"
)

// TicketService is the policy-checked surface over the tickets repository.
// Every read and mutation passes through TicketPolicy; policy outcomes that
// carry an audit action are recorded before the result is returned.
type TicketService struct {
	ticketsRepo repository.TicketsRepository
	rbacRepo    repository.RBACRepository
	auditRepo   repository.AuditRepository
	policy      *policies.TicketPolicy
	audit       *policies.AuditWriter
	publisher   *events.Publisher
	slaHours    int
	logger      *logrus.Entry
}

func NewTicketService(
	ticketsRepo repository.TicketsRepository,
	rbacRepo repository.RBACRepository,
	auditRepo repository.AuditRepository,
	policy *policies.TicketPolicy,
	audit *policies.AuditWriter,
	publisher *events.Publisher,
	slaHours int,
	logger *logrus.Logger,
) *TicketService {
	return &TicketService{
		ticketsRepo: ticketsRepo,
		rbacRepo:    rbacRepo,
		auditRepo:   auditRepo,
		policy:      policy,
		audit:       audit,
		publisher:   publisher,
		slaHours:    slaHours,
		logger:      logger.WithField("component", "ticket_service"),
	}
}

// CreateTicket creates a ticket on behalf of the actor with the default SLA
// due date applied.
func (s *TicketService) CreateTicket(ctx context.Context, actorID uuid.UUID, req *models.CreateTicketRequest) (*models.Ticket, error) {
	if req.DepartmentID != nil {
		if _, err := s.rbacRepo.GetDepartmentByID(ctx, *req.DepartmentID); err != nil {
			return nil, err
		}
	}

	due := req.DueDate
	if due == nil {
		d := time.Now().UTC().Add(time.Duration(s.slaHours) * time.Hour)
		due = &d
	}
	ticket := &models.Ticket{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		Category:     req.Category,
		DepartmentID: req.DepartmentID,
		CreatedBy:    actorID,
		Status:       models.TicketStatusOpen,
		DueDate:      due,
	}
	if err := s.ticketsRepo.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return ticket, nil
}

// GetTicket loads a ticket if the actor's permissions allow viewing it
func (s *TicketService) GetTicket(ctx context.Context, actorID, ticketID uuid.UUID) (*models.Ticket, error) {
	actor, ticket, err := s.load(ctx, actorID, ticketID)
	if err != nil {
		return nil, err
	}

	decision := s.policy.View(ctx, actor, ticket)
	s.audit.Record(ctx, decision, actorID, "ticket", &ticketID)
	if !decision.Allowed {
		return nil, ErrForbidden
	}
	return ticket, nil
}

// UpdateTicket applies a partial update after an update-policy check
func (s *TicketService) UpdateTicket(ctx context.Context, actorID, ticketID uuid.UUID, req *models.UpdateTicketRequest) (*models.Ticket, error) {
	actor, ticket, err := s.load(ctx, actorID, ticketID)
	if err != nil {
		return nil, err
	}

	decision := s.policy.Update(ctx, actor, ticket)
	s.audit.Record(ctx, decision, actorID, "ticket", &ticketID)
	if !decision.Allowed {
		return nil, ErrForbidden
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		updates["status"] = *req.Status
		if *req.Status == models.TicketStatusResolved {
			updates["resolved_at"] = time.Now().UTC()
		}
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if len(updates) == 0 {
		return ticket, nil
	}

	if err := s.ticketsRepo.Update(ctx, ticketID, updates); err != nil {
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}
	return s.ticketsRepo.GetByID(ctx, ticketID)
}

// AssignTicket assigns the ticket to a user after an assign-policy check
func (s *TicketService) AssignTicket(ctx context.Context, actorID, ticketID, assigneeID uuid.UUID) (*models.Ticket, error) {
	actor, ticket, err := s.load(ctx, actorID, ticketID)
	if err != nil {
		return nil, err
	}

	decision := s.policy.Assign(ctx, actor, ticket)
	s.audit.Record(ctx, decision, actorID, "ticket", &ticketID)
	if !decision.Allowed {
		return nil, ErrForbidden
	}

	if _, err := s.rbacRepo.GetUserByID(ctx, assigneeID); err != nil {
		return nil, fmt.Errorf("assignee not found: %w", err)
	}
	if err := s.ticketsRepo.Assign(ctx, ticketID, assigneeID); err != nil {
		return nil, fmt.Errorf("failed to assign ticket: %w", err)
	}

	s.writeAssignmentAudit(ctx, actorID, ticketID, assigneeID)
	s.publisher.Publish(events.SubjectTicketAssigned, map[string]interface{}{
		"ticket_id":   ticketID.String(),
		"assigned_to": assigneeID.String(),
		"assigned_by": actorID.String(),
	})

	return s.ticketsRepo.GetByID(ctx, ticketID)
}

// CloseTicket moves the ticket to CLOSED after a close-policy check
func (s *TicketService) CloseTicket(ctx context.Context, actorID, ticketID uuid.UUID) (*models.Ticket, error) {
	actor, ticket, err := s.load(ctx, actorID, ticketID)
	if err != nil {
		return nil, err
	}

	decision := s.policy.Close(ctx, actor, ticket)
	s.audit.Record(ctx, decision, actorID, "ticket", &ticketID)
	if !decision.Allowed {
		return nil, ErrForbidden
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":    models.TicketStatusClosed,
		"closed_at": now,
	}
	if err := s.ticketsRepo.Update(ctx, ticketID, updates); err != nil {
		return nil, fmt.Errorf("failed to close ticket: %w", err)
	}

	s.publisher.Publish(events.SubjectTicketClosed, map[string]interface{}{
		"ticket_id": ticketID.String(),
		"closed_by": actorID.String(),
	})
	return s.ticketsRepo.GetByID(ctx, ticketID)
}

// ListTickets returns a ticket page. Listing is gated by the route-level
// permission check; per-ticket scoping applies on individual reads.
func (s *TicketService) ListTickets(ctx context.Context, page, limit int) ([]models.Ticket, *models.PaginationInfo, error) {
	return s.ticketsRepo.List(ctx, page, limit)
}

func (s *TicketService) load(ctx context.Context, actorID, ticketID uuid.UUID) (*models.User, *models.Ticket, error) {
	actor, err := s.rbacRepo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load actor: %w", err)
	}
	ticket, err := s.ticketsRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	return actor, ticket, nil
}

func (s *TicketService) writeAssignmentAudit(ctx context.Context, actorID, ticketID, assigneeID uuid.UUID) {
	entityType := "ticket"
	entry := &models.PermissionAudit{
		UserID:      &assigneeID,
		Action:      models.AuditTicketAssigned,
		EntityType:  &entityType,
		EntityID:    &ticketID,
		PerformedBy: &actorID,
	}
	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("ticket_id", ticketID).Error("Failed to write audit entry")
	}
}
