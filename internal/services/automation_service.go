package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"helpdesk-service/internal/events"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/reports"
	"helpdesk-service/internal/repository"
	"helpdesk-service/internal/workflow"
)

const (
	autoCloseAfter     = 7 * 24 * time.Hour
	followUpAfter      = 48 * time.Hour
	maxRuleExecutions  = 100 // per rule per sweep
)

// AutomationRunSummary reports what a scheduled sweep did
type AutomationRunSummary struct {
	RulesEvaluated     int `json:"rulesEvaluated"`
	RulesRun           int `json:"rulesRun"`
	ExecutionsStarted  int `json:"executionsStarted"`
	ExecutionsFailed   int `json:"executionsFailed"`
	RulesErrored       int `json:"rulesErrored"`
}

// AutomationService runs scheduled workflow rules and the standing ticket
// hygiene sweeps (SLA monitoring, auto-close, follow-up reminders, reports).
type AutomationService struct {
	workflowRepo repository.WorkflowRepository
	ticketsRepo  repository.TicketsRepository
	engine       *workflow.Engine
	publisher    *events.Publisher
	cronParser   cron.Parser
	logger       *logrus.Entry
}

func NewAutomationService(
	workflowRepo repository.WorkflowRepository,
	ticketsRepo repository.TicketsRepository,
	engine *workflow.Engine,
	publisher *events.Publisher,
	logger *logrus.Logger,
) *AutomationService {
	return &AutomationService{
		workflowRepo: workflowRepo,
		ticketsRepo:  ticketsRepo,
		engine:       engine,
		publisher:    publisher,
		cronParser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:       logger.WithField("component", "automation_service"),
	}
}

// ProcessScheduledRules evaluates every active rule in priority order and
// runs its workflow against each matching ticket. A failure in one rule is
// logged and counted but never stops the remaining rules.
func (s *AutomationService) ProcessScheduledRules(ctx context.Context, now time.Time) (*AutomationRunSummary, error) {
	rules, err := s.workflowRepo.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}

	summary := &AutomationRunSummary{RulesEvaluated: len(rules)}
	var tickets []models.Ticket
	ticketsLoaded := false

	for i := range rules {
		rule := &rules[i]

		due, err := s.ruleDue(rule, now)
		if err != nil {
			summary.RulesErrored++
			s.logger.WithError(err).WithField("rule_id", rule.ID).Warn("Invalid rule schedule, skipping")
			continue
		}
		if !due {
			continue
		}

		if !ticketsLoaded {
			tickets, err = s.ticketsRepo.FindActive(ctx)
			if err != nil {
				return summary, fmt.Errorf("failed to load active tickets: %w", err)
			}
			ticketsLoaded = true
		}

		executed, err := s.runRule(ctx, rule, tickets, &summary.ExecutionsFailed)
		if err != nil {
			summary.RulesErrored++
			s.logger.WithError(err).WithField("rule_id", rule.ID).Warn("Rule run failed")
			continue
		}

		summary.RulesRun++
		summary.ExecutionsStarted += executed
		if err := s.workflowRepo.MarkRuleRun(ctx, rule.ID, now, executed); err != nil {
			s.logger.WithError(err).WithField("rule_id", rule.ID).Error("Failed to mark rule run")
		}
	}

	return summary, nil
}

func (s *AutomationService) ruleDue(rule *models.WorkflowRule, now time.Time) (bool, error) {
	schedule, err := s.cronParser.Parse(rule.Schedule)
	if err != nil {
		return false, fmt.Errorf("bad schedule %q: %w", rule.Schedule, err)
	}
	if rule.LastRunAt == nil {
		return true, nil
	}
	return !schedule.Next(*rule.LastRunAt).After(now), nil
}

func (s *AutomationService) runRule(
	ctx context.Context,
	rule *models.WorkflowRule,
	tickets []models.Ticket,
	failedCounter *int,
) (int, error) {
	if rule.Workflow == nil {
		return 0, fmt.Errorf("rule %s has no workflow loaded", rule.ID)
	}
	conditions, err := rule.ConditionTree()
	if err != nil {
		return 0, fmt.Errorf("bad condition tree: %w", err)
	}

	remaining := maxRuleExecutions
	if rule.ExecutionLimit > 0 {
		left := rule.ExecutionLimit - rule.ExecutionCount
		if left <= 0 {
			return 0, nil
		}
		if left < remaining {
			remaining = left
		}
	}

	executed := 0
	for i := range tickets {
		if executed >= remaining {
			break
		}
		ticket := tickets[i]

		matched, err := workflow.EvaluateGroup(&ticket, conditions)
		if err != nil {
			return executed, fmt.Errorf("condition evaluation: %w", err)
		}
		if !matched {
			continue
		}

		execution, err := s.engine.Execute(ctx, rule.Workflow, &ticket, nil, &rule.ID)
		if err != nil {
			*failedCounter++
			continue
		}
		executed++
		s.publisher.Publish(events.SubjectWorkflowExecuted, map[string]interface{}{
			"workflow_id":  rule.WorkflowID.String(),
			"rule_id":      rule.ID.String(),
			"execution_id": execution.ID.String(),
			"ticket_id":    ticket.ID.String(),
		})
	}

	return executed, nil
}

// MonitorSLABreaches escalates tickets past their due date and publishes an
// event per breach. Already-escalated tickets are left alone.
func (s *AutomationService) MonitorSLABreaches(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.ticketsRepo.FindOverdue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to find overdue tickets: %w", err)
	}

	escalated := 0
	for i := range overdue {
		ticket := overdue[i]
		if ticket.Status == models.TicketStatusEscalated {
			continue
		}
		err := s.ticketsRepo.Update(ctx, ticket.ID, map[string]interface{}{
			"status": models.TicketStatusEscalated,
		})
		if err != nil {
			s.logger.WithError(err).WithField("ticket_id", ticket.ID).Error("Failed to escalate ticket")
			continue
		}
		escalated++
		s.publisher.Publish(events.SubjectTicketEscalated, map[string]interface{}{
			"ticket_id":     ticket.ID.String(),
			"ticket_number": ticket.TicketNumber,
			"priority":      string(ticket.Priority),
			"overdue_since": ticket.DueDate,
		})
	}

	if escalated > 0 {
		s.logger.WithField("count", escalated).Info("Escalated overdue tickets")
	}
	return escalated, nil
}

// AutoCloseStaleTickets closes tickets that have sat resolved past the
// retention window.
func (s *AutomationService) AutoCloseStaleTickets(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-autoCloseAfter)
	stale, err := s.ticketsRepo.FindResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale resolved tickets: %w", err)
	}

	closed := 0
	for i := range stale {
		ticket := stale[i]
		err := s.ticketsRepo.Update(ctx, ticket.ID, map[string]interface{}{
			"status":    models.TicketStatusClosed,
			"closed_at": now,
		})
		if err != nil {
			s.logger.WithError(err).WithField("ticket_id", ticket.ID).Error("Failed to auto-close ticket")
			continue
		}
		closed++
		s.publisher.Publish(events.SubjectTicketClosed, map[string]interface{}{
			"ticket_id":     ticket.ID.String(),
			"ticket_number": ticket.TicketNumber,
			"auto_closed":   true,
		})
	}

	if closed > 0 {
		s.logger.WithField("count", closed).Info("Auto-closed stale tickets")
	}
	return closed, nil
}

// SendFollowUpReminders publishes a reminder event for open tickets with no
// reply activity inside the follow-up window.
func (s *AutomationService) SendFollowUpReminders(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-followUpAfter)
	quiet, err := s.ticketsRepo.FindAwaitingReplySince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to find quiet tickets: %w", err)
	}

	for i := range quiet {
		ticket := quiet[i]
		s.publisher.Publish(events.SubjectTicketAssigned, map[string]interface{}{
			"reminder":      true,
			"ticket_id":     ticket.ID.String(),
			"ticket_number": ticket.TicketNumber,
			"assigned_to":   ticket.AssignedTo,
			"quiet_since":   ticket.LastReplyAt,
		})
	}

	return len(quiet), nil
}

// GenerateAutomatedReport builds the periodic ticket summary workbook
func (s *AutomationService) GenerateAutomatedReport(ctx context.Context, now time.Time) ([]byte, error) {
	counts, err := s.ticketsRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets: %w", err)
	}
	overdue, err := s.ticketsRepo.FindOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue tickets: %w", err)
	}
	active, err := s.ticketsRepo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active tickets: %w", err)
	}

	return reports.WriteTicketSummary(&reports.TicketSummary{
		GeneratedAt:   now,
		CountByStatus: counts,
		OverdueCount:  len(overdue),
		Tickets:       active,
	})
}
