package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"helpdesk-service/internal/clients"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/repository"
)

var (
	ErrBudgetExceeded = errors.New("workflow node budget exceeded")
	ErrNoPath         = errors.New("no outgoing connection from node")
)

// actionFunc executes a single action node against the current entity and
// returns a result payload for the action record.
type actionFunc func(ctx context.Context, run *executionState, data models.JSON) (map[string]interface{}, error)

// Engine interprets workflow graphs against tickets. Each run creates a
// WorkflowExecution plus one WorkflowAction per executed action node; a
// failing node marks the execution failed but preserves the partial trail.
type Engine struct {
	repo     repository.WorkflowRepository
	tickets  repository.TicketsRepository
	ai       clients.AIClient
	notifier clients.Notifier
	logger   *logrus.Entry
	actions  map[string]actionFunc
}

type executionState struct {
	execution *models.WorkflowExecution
	ticket    *models.Ticket
	sequence  int
	aiResults map[string]interface{}
}

func NewEngine(
	repo repository.WorkflowRepository,
	tickets repository.TicketsRepository,
	ai clients.AIClient,
	notifier clients.Notifier,
	logger *logrus.Logger,
) *Engine {
	e := &Engine{
		repo:     repo,
		tickets:  tickets,
		ai:       ai,
		notifier: notifier,
		logger:   logger.WithField("component", "workflow_engine"),
	}
	e.actions = map[string]actionFunc{
		"assign_ticket":     e.actionAssignTicket,
		"update_ticket":     e.actionUpdateTicket,
		"send_notification": e.actionSendNotification,
		"ai_process":        e.actionAIProcess,
	}
	return e
}

// Execute validates the workflow graph, then walks it from the start node.
// Validation failures return an error before any execution record is created.
func (e *Engine) Execute(
	ctx context.Context,
	workflow *models.Workflow,
	ticket *models.Ticket,
	triggeredBy *uuid.UUID,
	ruleID *uuid.UUID,
) (*models.WorkflowExecution, error) {
	graph, err := workflow.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to decode workflow definition: %w", err)
	}
	if err := ValidateWorkflowStructure(graph); err != nil {
		return nil, err
	}

	execution := &models.WorkflowExecution{
		WorkflowID:     workflow.ID,
		WorkflowRuleID: ruleID,
		EntityType:     models.EntityTypeTicket,
		EntityID:       ticket.ID,
		Status:         models.ExecutionStatusRunning,
		TriggeredBy:    triggeredBy,
		StartedAt:      time.Now().UTC(),
	}
	if err := e.repo.CreateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	run := &executionState{
		execution: execution,
		ticket:    ticket,
		aiResults: map[string]interface{}{},
	}

	runErr := e.walk(ctx, graph, run)

	now := time.Now().UTC()
	execution.CompletedAt = &now
	if runErr != nil {
		execution.Status = models.ExecutionStatusFailed
		msg := runErr.Error()
		execution.ErrorMessage = &msg
	} else {
		execution.Status = models.ExecutionStatusCompleted
		result := models.JSON{"actions_executed": run.sequence}
		for k, v := range run.aiResults {
			result[k] = v
		}
		execution.Result = &result
	}
	if err := e.repo.UpdateExecution(ctx, execution); err != nil {
		e.logger.WithError(err).WithField("execution_id", execution.ID).
			Error("Failed to persist execution state")
	}

	if runErr != nil {
		e.logger.WithError(runErr).WithFields(logrus.Fields{
			"workflow_id":  workflow.ID,
			"execution_id": execution.ID,
			"ticket_id":    ticket.ID,
		}).Warn("Workflow execution failed")
	}

	return execution, runErr
}

func (e *Engine) walk(ctx context.Context, graph *models.WorkflowGraph, run *executionState) error {
	nodes := make(map[string]models.WorkflowNode, len(graph.Nodes))
	next := make(map[string]string)
	var startID string
	for _, node := range graph.Nodes {
		nodes[node.ID] = node
		if node.Type == models.NodeTypeStart {
			startID = node.ID
		}
	}
	for _, conn := range graph.Connections {
		next[conn.From] = conn.To
	}

	// Cycles are legal in the graph; the visit budget bounds the run
	budget := 2 * len(graph.Nodes)
	visits := 0
	currentID := startID

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		visits++
		if visits > budget {
			return fmt.Errorf("%w: %d visits over %d nodes", ErrBudgetExceeded, visits, len(graph.Nodes))
		}

		node, ok := nodes[currentID]
		if !ok {
			return fmt.Errorf("node %q not found", currentID)
		}

		switch node.Type {
		case models.NodeTypeEnd:
			return nil

		case models.NodeTypeStart:
			// fall through to the outgoing edge

		case models.NodeTypeAction:
			if err := e.runAction(ctx, run, node); err != nil {
				return err
			}

		case models.NodeTypeCondition:
			target, err := e.evaluateConditionNode(run.ticket, node)
			if err != nil {
				return err
			}
			currentID = target
			continue

		case models.NodeTypeAI:
			if err := e.runAINode(ctx, run, node); err != nil {
				return err
			}

		case models.NodeTypeDelay:
			if err := e.runDelay(ctx, node); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown node type %q at node %q", node.Type, node.ID)
		}

		target, ok := next[currentID]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNoPath, currentID)
		}
		currentID = target
	}
}

func (e *Engine) runAction(ctx context.Context, run *executionState, node models.WorkflowNode) error {
	actionType, _ := node.Data["action"].(string)
	handler, ok := e.actions[actionType]

	run.sequence++
	record := &models.WorkflowAction{
		ExecutionID:    run.execution.ID,
		ActionType:     actionType,
		SequenceNumber: run.sequence,
	}
	if len(node.Data) > 0 {
		data := node.Data
		record.ActionData = &data
	}

	if !ok {
		record.Status = models.ActionStatusFailed
		msg := fmt.Sprintf("unknown action type %q", actionType)
		record.ErrorMessage = &msg
		e.recordAction(ctx, record)
		return errors.New(msg)
	}

	result, err := handler(ctx, run, node.Data)
	if err != nil {
		record.Status = models.ActionStatusFailed
		msg := err.Error()
		record.ErrorMessage = &msg
		e.recordAction(ctx, record)
		return fmt.Errorf("action %q at node %q: %w", actionType, node.ID, err)
	}

	record.Status = models.ActionStatusCompleted
	if result != nil {
		res := models.JSON(result)
		record.Result = &res
	}
	e.recordAction(ctx, record)
	return nil
}

func (e *Engine) recordAction(ctx context.Context, record *models.WorkflowAction) {
	if err := e.repo.CreateAction(ctx, record); err != nil {
		e.logger.WithError(err).WithField("execution_id", record.ExecutionID).
			Error("Failed to persist workflow action")
	}
}

func (e *Engine) evaluateConditionNode(ticket *models.Ticket, node models.WorkflowNode) (string, error) {
	field, _ := node.Data["field"].(string)
	operator, _ := node.Data["operator"].(string)
	expected := node.Data["value"]

	matched, err := EvaluateCondition(TicketFieldValue(ticket, field), operator, expected)
	if err != nil {
		return "", fmt.Errorf("condition node %q: %w", node.ID, err)
	}

	key := "false_path"
	if matched {
		key = "true_path"
	}
	target, ok := node.Data[key].(string)
	if !ok || target == "" {
		return "", fmt.Errorf("condition node %q missing %s", node.ID, key)
	}
	return target, nil
}

func (e *Engine) runAINode(ctx context.Context, run *executionState, node models.WorkflowNode) error {
	operation, _ := node.Data["operation"].(string)
	if operation == "" {
		return fmt.Errorf("ai node %q missing operation", node.ID)
	}

	input := map[string]interface{}{
		"ticket_id":   run.ticket.ID.String(),
		"title":       run.ticket.Title,
		"description": run.ticket.Description,
		"status":      string(run.ticket.Status),
		"priority":    string(run.ticket.Priority),
	}
	result, err := e.ai.Process(ctx, operation, input)
	if err != nil {
		return fmt.Errorf("ai node %q: %w", node.ID, err)
	}
	run.aiResults[node.ID] = result
	return nil
}

func (e *Engine) runDelay(ctx context.Context, node models.WorkflowNode) error {
	seconds, ok := toFloat(node.Data["duration_seconds"])
	if !ok || seconds < 0 {
		return fmt.Errorf("delay node %q has invalid duration_seconds", node.ID)
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ===== ACTION HANDLERS =====

func (e *Engine) actionAssignTicket(ctx context.Context, run *executionState, data models.JSON) (map[string]interface{}, error) {
	raw, _ := data["assignee_id"].(string)
	assigneeID, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid assignee_id %q", raw)
	}
	if err := e.tickets.Assign(ctx, run.ticket.ID, assigneeID); err != nil {
		return nil, err
	}
	run.ticket.AssignedTo = &assigneeID
	run.ticket.Status = models.TicketStatusInProgress
	return map[string]interface{}{"assigned_to": assigneeID.String()}, nil
}

func (e *Engine) actionUpdateTicket(ctx context.Context, run *executionState, data models.JSON) (map[string]interface{}, error) {
	updates := map[string]interface{}{}
	if status, ok := data["status"].(string); ok && status != "" {
		updates["status"] = status
	}
	if priority, ok := data["priority"].(string); ok && priority != "" {
		updates["priority"] = priority
	}
	if category, ok := data["category"].(string); ok && category != "" {
		updates["category"] = category
	}
	if len(updates) == 0 {
		return nil, errors.New("update_ticket has no recognized fields")
	}

	if err := e.tickets.Update(ctx, run.ticket.ID, updates); err != nil {
		return nil, err
	}
	if status, ok := updates["status"].(string); ok {
		run.ticket.Status = models.TicketStatus(status)
	}
	if priority, ok := updates["priority"].(string); ok {
		run.ticket.Priority = models.TicketPriority(priority)
	}
	return map[string]interface{}{"updated_fields": len(updates)}, nil
}

func (e *Engine) actionSendNotification(ctx context.Context, run *executionState, data models.JSON) (map[string]interface{}, error) {
	recipient, _ := data["recipient"].(string)
	subject, _ := data["subject"].(string)
	body, _ := data["message"].(string)
	if recipient == "" {
		return nil, errors.New("send_notification missing recipient")
	}

	variables := map[string]interface{}{
		"ticket_number": run.ticket.TicketNumber,
		"ticket_title":  run.ticket.Title,
		"status":        string(run.ticket.Status),
	}
	if err := e.notifier.Send(ctx, recipient, subject, body, variables); err != nil {
		return nil, err
	}
	return map[string]interface{}{"recipient": recipient}, nil
}

func (e *Engine) actionAIProcess(ctx context.Context, run *executionState, data models.JSON) (map[string]interface{}, error) {
	operation, _ := data["operation"].(string)
	if operation == "" {
		return nil, errors.New("ai_process missing operation")
	}
	result, err := e.ai.Process(ctx, operation, map[string]interface{}{
		"ticket_id":   run.ticket.ID.String(),
		"title":       run.ticket.Title,
		"description": run.ticket.Description,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
