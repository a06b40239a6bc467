package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"helpdesk-service/internal/middleware"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/repository"
	"helpdesk-service/internal/workflow"
)

// WorkflowHandler exposes workflow definition and execution endpoints
type WorkflowHandler struct {
	workflowRepo repository.WorkflowRepository
	ticketsRepo  repository.TicketsRepository
	auditRepo    repository.AuditRepository
	engine       *workflow.Engine
	logger       *logrus.Entry
}

func NewWorkflowHandler(
	workflowRepo repository.WorkflowRepository,
	ticketsRepo repository.TicketsRepository,
	auditRepo repository.AuditRepository,
	engine *workflow.Engine,
	logger *logrus.Logger,
) *WorkflowHandler {
	return &WorkflowHandler{
		workflowRepo: workflowRepo,
		ticketsRepo:  ticketsRepo,
		auditRepo:    auditRepo,
		engine:       engine,
		logger:       logger.WithField("component", "workflow_handler"),
	}
}

// CreateWorkflow handles POST /api/v1/workflows. The graph is validated
// before anything is stored.
func (h *WorkflowHandler) CreateWorkflow(c *gin.Context) {
	actorID, _ := middleware.UserID(c)

	var req models.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	if err := workflow.ValidateWorkflowStructure(&req.Definition); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_WORKFLOW", err.Error())
		return
	}

	definition, err := json.Marshal(req.Definition)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_WORKFLOW", "Definition is not serializable")
		return
	}

	record := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Definition:  datatypes.JSON(definition),
		IsActive:    true,
		CreatedBy:   &actorID,
	}
	if err := h.workflowRepo.CreateWorkflow(c.Request.Context(), record); err != nil {
		h.logger.WithError(err).Error("Failed to create workflow")
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.WorkflowResponse{Success: true, Data: record})
}

// ListWorkflows handles GET /api/v1/workflows
func (h *WorkflowHandler) ListWorkflows(c *gin.Context) {
	page, limit := parsePagination(c)

	workflows, pagination, err := h.workflowRepo.ListWorkflows(c.Request.Context(), page, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       workflows,
		"pagination": pagination,
	})
}

// GetWorkflow handles GET /api/v1/workflows/:workflowId
func (h *WorkflowHandler) GetWorkflow(c *gin.Context) {
	workflowID, ok := parseUUIDParam(c, "workflowId")
	if !ok {
		return
	}

	record, err := h.workflowRepo.GetWorkflowByID(c.Request.Context(), workflowID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.WorkflowResponse{Success: true, Data: record})
}

// ExecuteWorkflow handles POST /api/v1/workflows/:workflowId/execute.
// The run is synchronous; a failed run still returns the execution record
// with its partial action trail.
func (h *WorkflowHandler) ExecuteWorkflow(c *gin.Context) {
	actorID, _ := middleware.UserID(c)
	workflowID, ok := parseUUIDParam(c, "workflowId")
	if !ok {
		return
	}

	var req models.ExecuteWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	if req.EntityType != models.EntityTypeTicket {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", "Unsupported entity type")
		return
	}

	record, err := h.workflowRepo.GetWorkflowByID(c.Request.Context(), workflowID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	ticket, err := h.ticketsRepo.GetByID(c.Request.Context(), req.EntityID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	execution, runErr := h.engine.Execute(c.Request.Context(), record, ticket, &actorID, nil)
	if execution == nil {
		respondError(c, http.StatusBadRequest, "INVALID_WORKFLOW", runErr.Error())
		return
	}

	h.auditExecution(c, actorID, workflowID, execution)

	status := http.StatusOK
	if runErr != nil {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, models.ExecutionResponse{Success: runErr == nil, Data: execution})
}

// auditExecution records a manual workflow run against the triggering user
func (h *WorkflowHandler) auditExecution(c *gin.Context, actorID, workflowID uuid.UUID, execution *models.WorkflowExecution) {
	entityType := "workflow"
	entry := &models.PermissionAudit{
		UserID:      &actorID,
		Action:      models.AuditWorkflowExecuted,
		EntityType:  &entityType,
		EntityID:    &workflowID,
		PerformedBy: &actorID,
		NewValues: &models.JSON{
			"execution_id": execution.ID.String(),
			"status":       string(execution.Status),
		},
	}
	if err := h.auditRepo.Create(c.Request.Context(), entry); err != nil {
		h.logger.WithError(err).Error("Failed to audit workflow execution")
	}
}

// GetExecution handles GET /api/v1/executions/:executionId
func (h *WorkflowHandler) GetExecution(c *gin.Context) {
	executionID, ok := parseUUIDParam(c, "executionId")
	if !ok {
		return
	}

	execution, err := h.workflowRepo.GetExecutionByID(c.Request.Context(), executionID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ExecutionResponse{Success: true, Data: execution})
}

// ListExecutions handles GET /api/v1/executions
func (h *WorkflowHandler) ListExecutions(c *gin.Context) {
	page, limit := parsePagination(c)

	var workflowID *uuid.UUID
	if raw := c.Query("workflowId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid workflowId parameter")
			return
		}
		workflowID = &id
	}

	executions, pagination, err := h.workflowRepo.ListExecutions(c.Request.Context(), workflowID, page, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ExecutionListResponse{
		Success:    true,
		Data:       executions,
		Pagination: pagination,
	})
}

// CancelExecution handles POST /api/v1/executions/:executionId/cancel.
// Only running executions can be cancelled; terminal states are immutable.
func (h *WorkflowHandler) CancelExecution(c *gin.Context) {
	executionID, ok := parseUUIDParam(c, "executionId")
	if !ok {
		return
	}

	if err := h.workflowRepo.CancelExecution(c.Request.Context(), executionID); err != nil {
		respondServiceError(c, err)
		return
	}
	message := "Execution cancelled"
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &message})
}
