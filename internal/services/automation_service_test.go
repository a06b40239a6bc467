package services

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"helpdesk-service/internal/models"
	"helpdesk-service/internal/workflow"
)

func newAutomationService(t *testing.T, workflowRepo *MockWorkflowRepository, ticketsRepo *MockTicketsRepository) *AutomationService {
	t.Helper()
	engine := workflow.NewEngine(workflowRepo, ticketsRepo, nil, nil, testLogger())
	return NewAutomationService(workflowRepo, ticketsRepo, engine, nil, testLogger())
}

func linearWorkflow(t *testing.T) *models.Workflow {
	t.Helper()
	graph := models.WorkflowGraph{
		Nodes: []models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeStart},
			{ID: "bump", Type: models.NodeTypeAction, Data: models.JSON{"action": "update_ticket", "priority": "CRITICAL"}},
			{ID: "end", Type: models.NodeTypeEnd},
		},
		Connections: []models.WorkflowConnection{
			{From: "start", To: "bump"},
			{From: "bump", To: "end"},
		},
	}
	raw, err := json.Marshal(graph)
	assert.NoError(t, err)
	return &models.Workflow{ID: uuid.New(), Name: "bump priority", Definition: datatypes.JSON(raw), IsActive: true}
}

func ruleFor(t *testing.T, wf *models.Workflow, conditions *models.RuleConditionGroup) models.WorkflowRule {
	t.Helper()
	rule := models.WorkflowRule{
		ID:         uuid.New(),
		Name:       "test rule",
		WorkflowID: wf.ID,
		EntityType: models.EntityTypeTicket,
		Schedule:   "* * * * *",
		IsActive:   true,
		Workflow:   wf,
	}
	if conditions != nil {
		raw, err := json.Marshal(conditions)
		assert.NoError(t, err)
		rule.Conditions = datatypes.JSON(raw)
	}
	return rule
}

func activeTicket(priority models.TicketPriority) models.Ticket {
	return models.Ticket{
		ID:           uuid.New(),
		TicketNumber: "TKT-00000009",
		Title:        "something broke",
		Status:       models.TicketStatusOpen,
		Priority:     priority,
		CreatedBy:    uuid.New(),
		CreatedAt:    time.Now().Add(-time.Hour),
	}
}

// ===========================================
// Scheduled rule processing
// ===========================================

func TestProcessScheduledRules_RunsDueRule(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	wf := linearWorkflow(t)
	rule := ruleFor(t, wf, nil) // never run before, no conditions

	workflowRepo := new(MockWorkflowRepository)
	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, workflowRepo, ticketsRepo)

	ticket := activeTicket(models.TicketPriorityHigh)
	workflowRepo.On("ListActiveRules", ctx).Return([]models.WorkflowRule{rule}, nil)
	ticketsRepo.On("FindActive", ctx).Return([]models.Ticket{ticket}, nil)
	workflowRepo.On("CreateExecution", ctx, mock.Anything).Return(nil)
	workflowRepo.On("CreateAction", ctx, mock.Anything).Return(nil)
	workflowRepo.On("UpdateExecution", ctx, mock.Anything).Return(nil)
	ticketsRepo.On("Update", ctx, ticket.ID, mock.Anything).Return(nil)
	workflowRepo.On("MarkRuleRun", ctx, rule.ID, now, 1).Return(nil)

	summary, err := svc.ProcessScheduledRules(ctx, now)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.RulesEvaluated)
	assert.Equal(t, 1, summary.RulesRun)
	assert.Equal(t, 1, summary.ExecutionsStarted)
	assert.Zero(t, summary.ExecutionsFailed)
	workflowRepo.AssertExpectations(t)
}

func TestProcessScheduledRules_NotDueRuleSkipped(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	wf := linearWorkflow(t)
	rule := ruleFor(t, wf, nil)
	rule.Schedule = "0 0 1 1 *" // once a year
	lastRun := now.Add(-time.Hour)
	rule.LastRunAt = &lastRun

	workflowRepo := new(MockWorkflowRepository)
	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, workflowRepo, ticketsRepo)

	workflowRepo.On("ListActiveRules", ctx).Return([]models.WorkflowRule{rule}, nil)

	summary, err := svc.ProcessScheduledRules(ctx, now)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.RulesEvaluated)
	assert.Zero(t, summary.RulesRun)
	ticketsRepo.AssertNotCalled(t, "FindActive", mock.Anything)
}

func TestProcessScheduledRules_BadScheduleCounted(t *testing.T) {
	ctx := context.Background()
	wf := linearWorkflow(t)
	rule := ruleFor(t, wf, nil)
	rule.Schedule = "not a cron line"

	workflowRepo := new(MockWorkflowRepository)
	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, workflowRepo, ticketsRepo)

	workflowRepo.On("ListActiveRules", ctx).Return([]models.WorkflowRule{rule}, nil)

	summary, err := svc.ProcessScheduledRules(ctx, time.Now())

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.RulesErrored)
	assert.Zero(t, summary.RulesRun)
}

func TestProcessScheduledRules_ConditionsFilterTickets(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	wf := linearWorkflow(t)
	rule := ruleFor(t, wf, &models.RuleConditionGroup{
		Logic: "and",
		Conditions: []models.RuleCondition{
			{Field: "priority", Operator: "=", Value: "HIGH"},
		},
	})

	workflowRepo := new(MockWorkflowRepository)
	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, workflowRepo, ticketsRepo)

	match := activeTicket(models.TicketPriorityHigh)
	skip := activeTicket(models.TicketPriorityLow)
	workflowRepo.On("ListActiveRules", ctx).Return([]models.WorkflowRule{rule}, nil)
	ticketsRepo.On("FindActive", ctx).Return([]models.Ticket{skip, match}, nil)
	workflowRepo.On("CreateExecution", ctx, mock.Anything).Return(nil)
	workflowRepo.On("CreateAction", ctx, mock.Anything).Return(nil)
	workflowRepo.On("UpdateExecution", ctx, mock.Anything).Return(nil)
	ticketsRepo.On("Update", ctx, match.ID, mock.Anything).Return(nil)
	workflowRepo.On("MarkRuleRun", ctx, rule.ID, now, 1).Return(nil)

	summary, err := svc.ProcessScheduledRules(ctx, now)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.ExecutionsStarted)
	ticketsRepo.AssertNotCalled(t, "Update", ctx, skip.ID, mock.Anything)
}

func TestProcessScheduledRules_ExecutionLimitRespected(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	wf := linearWorkflow(t)
	rule := ruleFor(t, wf, nil)
	rule.ExecutionLimit = 3
	rule.ExecutionCount = 2 // one execution left

	workflowRepo := new(MockWorkflowRepository)
	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, workflowRepo, ticketsRepo)

	tickets := []models.Ticket{activeTicket(models.TicketPriorityHigh), activeTicket(models.TicketPriorityHigh)}
	workflowRepo.On("ListActiveRules", ctx).Return([]models.WorkflowRule{rule}, nil)
	ticketsRepo.On("FindActive", ctx).Return(tickets, nil)
	workflowRepo.On("CreateExecution", ctx, mock.Anything).Return(nil).Once()
	workflowRepo.On("CreateAction", ctx, mock.Anything).Return(nil)
	workflowRepo.On("UpdateExecution", ctx, mock.Anything).Return(nil)
	ticketsRepo.On("Update", ctx, mock.Anything, mock.Anything).Return(nil)
	workflowRepo.On("MarkRuleRun", ctx, rule.ID, now, 1).Return(nil)

	summary, err := svc.ProcessScheduledRules(ctx, now)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.ExecutionsStarted)
	workflowRepo.AssertExpectations(t)
}

func TestProcessScheduledRules_ExhaustedLimitRunsNothing(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	wf := linearWorkflow(t)
	rule := ruleFor(t, wf, nil)
	rule.ExecutionLimit = 5
	rule.ExecutionCount = 5

	workflowRepo := new(MockWorkflowRepository)
	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, workflowRepo, ticketsRepo)

	workflowRepo.On("ListActiveRules", ctx).Return([]models.WorkflowRule{rule}, nil)
	ticketsRepo.On("FindActive", ctx).Return([]models.Ticket{activeTicket(models.TicketPriorityHigh)}, nil)
	workflowRepo.On("MarkRuleRun", ctx, rule.ID, now, 0).Return(nil)

	summary, err := svc.ProcessScheduledRules(ctx, now)

	assert.NoError(t, err)
	assert.Zero(t, summary.ExecutionsStarted)
	workflowRepo.AssertNotCalled(t, "CreateExecution", mock.Anything, mock.Anything)
}

func TestProcessScheduledRules_FailedExecutionIsolated(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	// A workflow whose graph fails validation: the engine refuses it per
	// ticket, but the rule sweep keeps going and the failed run does not
	// consume the rule's execution count.
	broken := &models.Workflow{ID: uuid.New(), Name: "broken", Definition: datatypes.JSON(`{"nodes":[],"connections":[]}`), IsActive: true}
	rule := ruleFor(t, broken, nil)

	workflowRepo := new(MockWorkflowRepository)
	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, workflowRepo, ticketsRepo)

	workflowRepo.On("ListActiveRules", ctx).Return([]models.WorkflowRule{rule}, nil)
	ticketsRepo.On("FindActive", ctx).Return([]models.Ticket{activeTicket(models.TicketPriorityHigh)}, nil)
	workflowRepo.On("MarkRuleRun", ctx, rule.ID, now, 0).Return(nil)

	summary, err := svc.ProcessScheduledRules(ctx, now)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.RulesRun)
	assert.Zero(t, summary.ExecutionsStarted)
	assert.Equal(t, 1, summary.ExecutionsFailed)
	workflowRepo.AssertCalled(t, "MarkRuleRun", ctx, rule.ID, now, 0)
}

// ===========================================
// Ticket hygiene sweeps
// ===========================================

func TestMonitorSLABreaches_EscalatesOverdue(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	overdue := activeTicket(models.TicketPriorityHigh)
	already := activeTicket(models.TicketPriorityHigh)
	already.Status = models.TicketStatusEscalated

	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, new(MockWorkflowRepository), ticketsRepo)

	ticketsRepo.On("FindOverdue", ctx, now).Return([]models.Ticket{overdue, already}, nil)
	ticketsRepo.On("Update", ctx, overdue.ID, map[string]interface{}{
		"status": models.TicketStatusEscalated,
	}).Return(nil)

	escalated, err := svc.MonitorSLABreaches(ctx, now)

	assert.NoError(t, err)
	assert.Equal(t, 1, escalated)
	ticketsRepo.AssertNotCalled(t, "Update", ctx, already.ID, mock.Anything)
}

func TestAutoCloseStaleTickets(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	stale := activeTicket(models.TicketPriorityLow)
	stale.Status = models.TicketStatusResolved

	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, new(MockWorkflowRepository), ticketsRepo)

	ticketsRepo.On("FindResolvedBefore", ctx, mock.MatchedBy(func(cutoff time.Time) bool {
		return now.Sub(cutoff) == 7*24*time.Hour
	})).Return([]models.Ticket{stale}, nil)
	ticketsRepo.On("Update", ctx, stale.ID, map[string]interface{}{
		"status":    models.TicketStatusClosed,
		"closed_at": now,
	}).Return(nil)

	closed, err := svc.AutoCloseStaleTickets(ctx, now)

	assert.NoError(t, err)
	assert.Equal(t, 1, closed)
	ticketsRepo.AssertExpectations(t)
}

func TestSendFollowUpReminders(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	quiet := []models.Ticket{activeTicket(models.TicketPriorityMedium), activeTicket(models.TicketPriorityLow)}

	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, new(MockWorkflowRepository), ticketsRepo)

	ticketsRepo.On("FindAwaitingReplySince", ctx, mock.MatchedBy(func(cutoff time.Time) bool {
		return now.Sub(cutoff) == 48*time.Hour
	})).Return(quiet, nil)

	count, err := svc.SendFollowUpReminders(ctx, now)

	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGenerateAutomatedReport_ProducesWorkbook(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	ticketsRepo := new(MockTicketsRepository)
	svc := newAutomationService(t, new(MockWorkflowRepository), ticketsRepo)

	ticketsRepo.On("CountByStatus", ctx).Return(map[models.TicketStatus]int64{
		models.TicketStatusOpen:   4,
		models.TicketStatusClosed: 10,
	}, nil)
	ticketsRepo.On("FindOverdue", ctx, now).Return([]models.Ticket{activeTicket(models.TicketPriorityHigh)}, nil)
	ticketsRepo.On("FindActive", ctx).Return([]models.Ticket{activeTicket(models.TicketPriorityHigh)}, nil)

	data, err := svc.GenerateAutomatedReport(ctx, now)

	assert.NoError(t, err)
	assert.NotEmpty(t, data)
	// xlsx files are zip archives
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))
}
