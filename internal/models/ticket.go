package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TicketStatus represents the status of a ticket
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusOnHold     TicketStatus = "ON_HOLD"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusEscalated  TicketStatus = "ESCALATED"
)

// TicketPriority represents the priority of a ticket
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Ticket represents a support ticket
type Ticket struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TicketNumber string          `json:"ticketNumber" gorm:"uniqueIndex;not null"`
	Title        string          `json:"title" gorm:"not null"`
	Description  string          `json:"description" gorm:"not null"`
	Status       TicketStatus    `json:"status" gorm:"not null;default:'OPEN';index"`
	Priority     TicketPriority  `json:"priority" gorm:"not null;default:'MEDIUM';index"`
	Category     *string         `json:"category,omitempty"`
	DepartmentID *uuid.UUID      `json:"departmentId,omitempty" gorm:"type:uuid;index"`
	CreatedBy    uuid.UUID       `json:"createdBy" gorm:"type:uuid;not null;index"`
	AssignedTo   *uuid.UUID      `json:"assignedTo,omitempty" gorm:"type:uuid;index"`
	DueDate      *time.Time      `json:"dueDate,omitempty"`
	ResolvedAt   *time.Time      `json:"resolvedAt,omitempty"`
	ClosedAt     *time.Time      `json:"closedAt,omitempty"`
	LastReplyAt  *time.Time      `json:"lastReplyAt,omitempty"`
	Tags         *JSON           `json:"tags,omitempty" gorm:"type:jsonb"`
	Metadata     *JSON           `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	DeletedAt    *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`

	// Relationships
	Department *Department `json:"department,omitempty" gorm:"foreignKey:DepartmentID"`
	Creator    *User       `json:"creator,omitempty" gorm:"foreignKey:CreatedBy"`
	Assignee   *User       `json:"assignee,omitempty" gorm:"foreignKey:AssignedTo"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// CreateTicketRequest represents a request to create a new ticket
type CreateTicketRequest struct {
	Title        string         `json:"title" binding:"required"`
	Description  string         `json:"description" binding:"required"`
	Priority     TicketPriority `json:"priority" binding:"required"`
	Category     *string        `json:"category,omitempty"`
	DepartmentID *uuid.UUID     `json:"departmentId,omitempty"`
	DueDate      *time.Time     `json:"dueDate,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
}

// UpdateTicketRequest represents a request to update a ticket
type UpdateTicketRequest struct {
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Priority    *TicketPriority `json:"priority,omitempty"`
	Status      *TicketStatus   `json:"status,omitempty"`
	Category    *string         `json:"category,omitempty"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
}

// AssignTicketRequest represents a request to assign a ticket
type AssignTicketRequest struct {
	AssigneeID uuid.UUID `json:"assigneeId" binding:"required"`
}

// TicketResponse represents a single ticket response
type TicketResponse struct {
	Success bool    `json:"success"`
	Data    *Ticket `json:"data"`
	Message *string `json:"message,omitempty"`
}

// TicketListResponse represents a list of tickets response
type TicketListResponse struct {
	Success    bool            `json:"success"`
	Data       []Ticket        `json:"data"`
	Pagination *PaginationInfo `json:"pagination"`
}
