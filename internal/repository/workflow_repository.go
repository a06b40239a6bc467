package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"helpdesk-service/internal/models"
)

// WorkflowRepository handles database operations for workflows, executions,
// per-node action records, and scheduled rules.
type WorkflowRepository interface {
	// Workflows
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	GetWorkflowByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, page, limit int) ([]models.Workflow, *models.PaginationInfo, error)

	// Executions
	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	GetExecutionByID(ctx context.Context, id uuid.UUID) (*models.WorkflowExecution, error)
	ListExecutions(ctx context.Context, workflowID *uuid.UUID, page, limit int) ([]models.WorkflowExecution, *models.PaginationInfo, error)
	CancelExecution(ctx context.Context, id uuid.UUID) error

	// Actions
	CreateAction(ctx context.Context, action *models.WorkflowAction) error

	// Rules
	ListActiveRules(ctx context.Context) ([]models.WorkflowRule, error)
	MarkRuleRun(ctx context.Context, id uuid.UUID, ranAt time.Time, executed int) error
}

type workflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{db: db}
}

// ============================================================================
// WORKFLOWS
// ============================================================================

func (r *workflowRepository) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	workflow.CreatedAt = time.Now()
	workflow.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(workflow).Error
}

func (r *workflowRepository) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	var workflow models.Workflow
	err := r.db.WithContext(ctx).First(&workflow, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &workflow, nil
}

func (r *workflowRepository) ListWorkflows(ctx context.Context, page, limit int) ([]models.Workflow, *models.PaginationInfo, error) {
	var workflows []models.Workflow
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Workflow{})
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	offset := (page - 1) * limit
	if err := query.Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&workflows).Error; err != nil {
		return nil, nil, err
	}

	return workflows, buildPagination(page, limit, total), nil
}

// ============================================================================
// EXECUTIONS
// ============================================================================

func (r *workflowRepository) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	execution.StartedAt = time.Now()
	return r.db.WithContext(ctx).Create(execution).Error
}

func (r *workflowRepository) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return r.db.WithContext(ctx).Save(execution).Error
}

func (r *workflowRepository) GetExecutionByID(ctx context.Context, id uuid.UUID) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution
	err := r.db.WithContext(ctx).
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_number ASC")
		}).
		First(&execution, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &execution, nil
}

func (r *workflowRepository) ListExecutions(ctx context.Context, workflowID *uuid.UUID, page, limit int) ([]models.WorkflowExecution, *models.PaginationInfo, error) {
	var executions []models.WorkflowExecution
	var total int64

	query := r.db.WithContext(ctx).Model(&models.WorkflowExecution{})
	if workflowID != nil {
		query = query.Where("workflow_id = ?", *workflowID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	offset := (page - 1) * limit
	if err := query.Offset(offset).Limit(limit).
		Order("started_at DESC").
		Find(&executions).Error; err != nil {
		return nil, nil, err
	}

	return executions, buildPagination(page, limit, total), nil
}

// CancelExecution marks a running execution cancelled. Terminal executions
// are left untouched.
func (r *workflowRepository) CancelExecution(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.WorkflowExecution{}).
		Where("id = ? AND status = ?", id, models.ExecutionStatusRunning).
		Updates(map[string]interface{}{
			"status":       models.ExecutionStatusCancelled,
			"completed_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// ACTIONS
// ============================================================================

func (r *workflowRepository) CreateAction(ctx context.Context, action *models.WorkflowAction) error {
	action.CreatedAt = time.Now()
	return r.db.WithContext(ctx).Create(action).Error
}

// ============================================================================
// RULES
// ============================================================================

func (r *workflowRepository) ListActiveRules(ctx context.Context) ([]models.WorkflowRule, error) {
	var rules []models.WorkflowRule
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Preload("Workflow").
		Order("priority ASC, created_at ASC").
		Find(&rules).Error
	return rules, err
}

func (r *workflowRepository) MarkRuleRun(ctx context.Context, id uuid.UUID, ranAt time.Time, executed int) error {
	return r.db.WithContext(ctx).Model(&models.WorkflowRule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_at":     ranAt,
			"execution_count": gorm.Expr("execution_count + ?", executed),
		}).Error
}
