package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ============================================================================
// WORKFLOW DEFINITIONS
// ============================================================================

// NodeType represents the type of a workflow graph node
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeAction    NodeType = "action"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAI        NodeType = "ai"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeEnd       NodeType = "end"
)

// WorkflowNode is a typed node in a workflow graph. Data carries type-specific
// configuration; condition nodes declare their true_path/false_path targets
// there rather than in the connection list.
type WorkflowNode struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	Data JSON     `json:"data,omitempty"`
}

// WorkflowConnection is a directed edge between two node ids
type WorkflowConnection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WorkflowGraph is the node/connection structure interpreted by the engine
type WorkflowGraph struct {
	Nodes       []WorkflowNode       `json:"nodes"`
	Connections []WorkflowConnection `json:"connections"`
}

// Workflow is a stored workflow definition
type Workflow struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name        string         `json:"name" gorm:"not null"`
	Description *string        `json:"description,omitempty"`
	Definition  datatypes.JSON `json:"definition" gorm:"type:jsonb;not null"` // WorkflowGraph
	IsActive    bool           `json:"isActive" gorm:"default:true"`
	CreatedBy   *uuid.UUID     `json:"createdBy,omitempty" gorm:"type:uuid"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Workflow) TableName() string {
	return "workflows"
}

// Graph decodes the stored definition
func (w *Workflow) Graph() (*WorkflowGraph, error) {
	var graph WorkflowGraph
	if err := json.Unmarshal(w.Definition, &graph); err != nil {
		return nil, err
	}
	return &graph, nil
}

// ============================================================================
// WORKFLOW EXECUTIONS
// ============================================================================

// ExecutionStatus represents the state of a workflow execution.
// running is the only non-terminal state.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions
func (s ExecutionStatus) IsTerminal() bool {
	return s != ExecutionStatusRunning
}

// EntityType identifies the kind of entity a workflow runs against
type EntityType string

const (
	EntityTypeTicket EntityType = "ticket"
)

// WorkflowExecution records a single run of a workflow against an entity.
// Created at invocation, mutated only by the engine, immutable once terminal.
type WorkflowExecution struct {
	ID             uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	WorkflowID     uuid.UUID       `json:"workflowId" gorm:"type:uuid;not null;index"`
	WorkflowRuleID *uuid.UUID      `json:"workflowRuleId,omitempty" gorm:"type:uuid;index"`
	EntityType     EntityType      `json:"entityType" gorm:"not null"`
	EntityID       uuid.UUID       `json:"entityId" gorm:"type:uuid;not null;index"`
	Status         ExecutionStatus `json:"status" gorm:"not null;default:'running';index"`
	ExecutionData  *JSON           `json:"executionData,omitempty" gorm:"type:jsonb"`
	Result         *JSON           `json:"result,omitempty" gorm:"type:jsonb"`
	ErrorMessage   *string         `json:"errorMessage,omitempty"`
	TriggeredBy    *uuid.UUID      `json:"triggeredBy,omitempty" gorm:"type:uuid"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`

	// Relationships
	Workflow *Workflow        `json:"workflow,omitempty" gorm:"foreignKey:WorkflowID"`
	Actions  []WorkflowAction `json:"actions,omitempty" gorm:"foreignKey:ExecutionID"`
}

func (WorkflowExecution) TableName() string {
	return "workflow_executions"
}

// ActionStatus represents the status of a single executed action node
type ActionStatus string

const (
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// WorkflowAction is an append-only child record of an execution, one per
// executed action node. SequenceNumber is strictly increasing per execution.
type WorkflowAction struct {
	ID             uuid.UUID    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ExecutionID    uuid.UUID    `json:"executionId" gorm:"type:uuid;not null;index"`
	ActionType     string       `json:"actionType" gorm:"not null"`
	ActionData     *JSON        `json:"actionData,omitempty" gorm:"type:jsonb"`
	Status         ActionStatus `json:"status" gorm:"not null"`
	Result         *JSON        `json:"result,omitempty" gorm:"type:jsonb"`
	ErrorMessage   *string      `json:"errorMessage,omitempty"`
	SequenceNumber int          `json:"sequenceNumber" gorm:"not null"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func (WorkflowAction) TableName() string {
	return "workflow_actions"
}

// ============================================================================
// WORKFLOW RULES
// ============================================================================

// RuleCondition is a single field/operator/value predicate
type RuleCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"` // =, !=, >, <, contains
	Value    interface{} `json:"value"`
}

// RuleConditionGroup composes predicates with AND/OR. Nested groups allowed.
type RuleConditionGroup struct {
	Logic      string               `json:"logic"` // "and" | "or"
	Conditions []RuleCondition      `json:"conditions,omitempty"`
	Groups     []RuleConditionGroup `json:"groups,omitempty"`
}

// WorkflowRule schedules a workflow against entities matching a condition tree.
// Lower Priority executes first. ExecutionLimit of 0 means unlimited.
type WorkflowRule struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name           string         `json:"name" gorm:"not null"`
	WorkflowID     uuid.UUID      `json:"workflowId" gorm:"type:uuid;not null"`
	EntityType     EntityType     `json:"entityType" gorm:"not null;default:'ticket'"`
	Conditions     datatypes.JSON `json:"conditions" gorm:"type:jsonb"` // RuleConditionGroup
	Schedule       string         `json:"schedule" gorm:"not null"`     // cron expression
	Priority       int            `json:"priority" gorm:"default:100;index"`
	ExecutionLimit int            `json:"executionLimit" gorm:"default:0"`
	ExecutionCount int            `json:"executionCount" gorm:"default:0"`
	LastRunAt      *time.Time     `json:"lastRunAt,omitempty"`
	IsActive       bool           `json:"isActive" gorm:"default:true;index"`
	CreatedBy      *uuid.UUID     `json:"createdBy,omitempty" gorm:"type:uuid"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`

	// Relationships
	Workflow *Workflow `json:"workflow,omitempty" gorm:"foreignKey:WorkflowID"`
}

func (WorkflowRule) TableName() string {
	return "workflow_rules"
}

// ConditionTree decodes the stored condition group
func (r *WorkflowRule) ConditionTree() (*RuleConditionGroup, error) {
	if len(r.Conditions) == 0 {
		return nil, nil
	}
	var group RuleConditionGroup
	if err := json.Unmarshal(r.Conditions, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// CreateWorkflowRequest represents a request to create a workflow
type CreateWorkflowRequest struct {
	Name        string        `json:"name" binding:"required"`
	Description *string       `json:"description,omitempty"`
	Definition  WorkflowGraph `json:"definition" binding:"required"`
}

// ExecuteWorkflowRequest represents a manual workflow run request
type ExecuteWorkflowRequest struct {
	EntityType EntityType `json:"entityType" binding:"required"`
	EntityID   uuid.UUID  `json:"entityId" binding:"required"`
}

// WorkflowResponse represents a single workflow response
type WorkflowResponse struct {
	Success bool      `json:"success"`
	Data    *Workflow `json:"data,omitempty"`
	Message *string   `json:"message,omitempty"`
}

// ExecutionResponse represents a single execution response
type ExecutionResponse struct {
	Success bool               `json:"success"`
	Data    *WorkflowExecution `json:"data,omitempty"`
	Message *string            `json:"message,omitempty"`
}

// ExecutionListResponse represents a list of executions response
type ExecutionListResponse struct {
	Success    bool                `json:"success"`
	Data       []WorkflowExecution `json:"data"`
	Pagination *PaginationInfo     `json:"pagination,omitempty"`
}
