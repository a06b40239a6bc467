package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ============================================================================
// DEPARTMENTS
// ============================================================================

// Department represents an organizational department. Path is the materialized
// ancestry ("1/2/3") used for prefix-based descendant scoping.
type Department struct {
	ID                 uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name               string          `json:"name" gorm:"not null"`
	Description        *string         `json:"description,omitempty"`
	ParentDepartmentID *uuid.UUID      `json:"parentDepartmentId,omitempty" gorm:"type:uuid"`
	Path               string          `json:"path" gorm:"not null;index"`
	IsActive           bool            `json:"isActive" gorm:"default:true"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	DeletedAt          *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`

	// Relationships
	ParentDepartment *Department  `json:"parentDepartment,omitempty" gorm:"foreignKey:ParentDepartmentID"`
	SubDepartments   []Department `json:"subDepartments,omitempty" gorm:"foreignKey:ParentDepartmentID"`
}

func (Department) TableName() string {
	return "departments"
}

// IsDescendantOf reports whether d lies within ancestor's subtree
// (inclusive of ancestor itself).
func (d *Department) IsDescendantOf(ancestor *Department) bool {
	if d == nil || ancestor == nil {
		return false
	}
	if d.Path == ancestor.Path {
		return true
	}
	return strings.HasPrefix(d.Path, ancestor.Path+"/")
}

// ============================================================================
// PERMISSIONS
// ============================================================================

// Permission represents a granular permission identified by a dotted name,
// e.g. 'tickets.view_all'. Names may contain a '*' wildcard segment.
type Permission struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name        string    `json:"name" gorm:"uniqueIndex;not null"` // e.g. 'tickets.view_all'
	DisplayName string    `json:"displayName" gorm:"not null"`
	Description *string   `json:"description,omitempty"`
	Resource    *string   `json:"resource,omitempty"` // e.g. 'tickets'
	Action      *string   `json:"action,omitempty"`   // e.g. 'view_all'
	IsSensitive bool      `json:"isSensitive" gorm:"default:false"`
	IsActive    bool      `json:"isActive" gorm:"default:true"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Permission) TableName() string {
	return "permissions"
}

// ============================================================================
// ROLES
// ============================================================================

// Role represents a role with assigned permissions. HierarchyLevel strictly
// orders authority: a user may only manage roles whose level is strictly
// below their own maximum held level.
type Role struct {
	ID             uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name           string          `json:"name" gorm:"uniqueIndex;not null"`
	DisplayName    string          `json:"displayName" gorm:"not null"`
	Description    *string         `json:"description,omitempty"`
	HierarchyLevel int             `json:"hierarchyLevel" gorm:"default:0;index"`
	IsSystem       bool            `json:"isSystem" gorm:"default:false"`
	IsActive       bool            `json:"isActive" gorm:"default:true"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	DeletedAt      *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`

	// Relationships
	Permissions []Permission `json:"permissions,omitempty" gorm:"many2many:role_permissions;foreignKey:ID;joinForeignKey:RoleID;References:ID;joinReferences:PermissionID"`
	UserCount   int64        `json:"userCount,omitempty" gorm:"-"`
}

func (Role) TableName() string {
	return "roles"
}

// RolePermission represents the junction between roles and permissions
type RolePermission struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RoleID       uuid.UUID `json:"roleId" gorm:"type:uuid;not null;uniqueIndex:idx_role_permission"`
	PermissionID uuid.UUID `json:"permissionId" gorm:"type:uuid;not null;uniqueIndex:idx_role_permission"`
	GrantedAt    time.Time `json:"grantedAt" gorm:"default:now()"`
	GrantedBy    *string   `json:"grantedBy,omitempty"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

// ============================================================================
// USER-ROLE ASSIGNMENTS
// ============================================================================

// UserRole represents the assignment of a role to a user. ExpiresAt, when set,
// makes the assignment temporal: past-expiry assignments never contribute to
// the effective permission set and are physically revoked by the cleanup sweep.
type UserRole struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID     uuid.UUID  `json:"userId" gorm:"type:uuid;not null;index"`
	RoleID     uuid.UUID  `json:"roleId" gorm:"type:uuid;not null;index"`
	AssignedAt time.Time  `json:"assignedAt" gorm:"default:now()"`
	AssignedBy *uuid.UUID `json:"assignedBy,omitempty" gorm:"type:uuid"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty" gorm:"index"`
	Reason     *string    `json:"reason,omitempty"`
	IsActive   bool       `json:"isActive" gorm:"default:true"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Role *Role `json:"role,omitempty" gorm:"foreignKey:RoleID"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

// ============================================================================
// TEMPORAL ACCESS REQUESTS
// ============================================================================

// TemporalRequestStatus represents the status of a temporal access request
type TemporalRequestStatus string

const (
	TemporalRequestPending  TemporalRequestStatus = "pending"
	TemporalRequestApproved TemporalRequestStatus = "approved"
	TemporalRequestDenied   TemporalRequestStatus = "denied"
)

// TemporalAccessRequest represents a user-initiated request for a time-bound
// role that a higher-hierarchy approver must approve or deny.
type TemporalAccessRequest struct {
	ID              uuid.UUID             `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID          uuid.UUID             `json:"userId" gorm:"type:uuid;not null;index"`
	RoleID          uuid.UUID             `json:"roleId" gorm:"type:uuid;not null"`
	DurationMinutes int                   `json:"durationMinutes" gorm:"not null"`
	Reason          string                `json:"reason" gorm:"not null"`
	Status          TemporalRequestStatus `json:"status" gorm:"not null;default:'pending';index"`
	ReviewedBy      *uuid.UUID            `json:"reviewedBy,omitempty" gorm:"type:uuid"`
	ReviewedAt      *time.Time            `json:"reviewedAt,omitempty"`
	ReviewNotes     *string               `json:"reviewNotes,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Role *Role `json:"role,omitempty" gorm:"foreignKey:RoleID"`
}

func (TemporalAccessRequest) TableName() string {
	return "temporal_access_requests"
}

// ============================================================================
// EMERGENCY ACCESS
// ============================================================================

// EmergencyAccessType distinguishes single-use break-glass tokens from
// session-style emergency grants.
type EmergencyAccessType string

const (
	EmergencyAccessBreakGlass EmergencyAccessType = "break_glass"
	EmergencyAccessSession    EmergencyAccessType = "session"
)

// EmergencyAccess represents a break-glass or session-style emergency grant.
// The record is active only while IsActive is true, ExpiresAt is in the
// future, and (for break-glass) UsedAt is nil.
type EmergencyAccess struct {
	ID          uuid.UUID           `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID      uuid.UUID           `json:"userId" gorm:"type:uuid;not null;index"`
	AccessType  EmergencyAccessType `json:"accessType" gorm:"not null;default:'break_glass'"`
	Permissions datatypes.JSON      `json:"permissions" gorm:"type:jsonb;not null"` // list of permission names
	TokenHash   *string             `json:"-" gorm:"index"`
	Reason      string              `json:"reason" gorm:"not null"`
	ExpiresAt   time.Time           `json:"expiresAt" gorm:"not null;index"`
	UsedAt      *time.Time          `json:"usedAt,omitempty"`
	IsActive    bool                `json:"isActive" gorm:"default:true;index"`
	GrantedBy   *uuid.UUID          `json:"grantedBy,omitempty" gorm:"type:uuid"`
	IPAddress   *string             `json:"ipAddress,omitempty"`
	UserAgent   *string             `json:"userAgent,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`

	// Relationships
	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (EmergencyAccess) TableName() string {
	return "emergency_access"
}

// IsCurrentlyActive reports whether the record still authorizes access at now.
func (e *EmergencyAccess) IsCurrentlyActive(now time.Time) bool {
	if !e.IsActive || !e.ExpiresAt.After(now) {
		return false
	}
	if e.AccessType == EmergencyAccessBreakGlass && e.UsedAt != nil {
		return false
	}
	return true
}

// PermissionNames decodes the granted permission list.
func (e *EmergencyAccess) PermissionNames() []string {
	var names []string
	_ = jsonUnmarshal(e.Permissions, &names)
	return names
}

// ============================================================================
// PERMISSION AUDITS
// ============================================================================

// AuditAction enumerates auditable actions
const (
	AuditRoleAssigned              = "role_assigned"
	AuditRoleRevoked               = "role_revoked"
	AuditTemporalGranted           = "temporal_access_granted"
	AuditTemporalRevoked           = "temporal_access_revoked"
	AuditTemporalRequested         = "temporal_access_requested"
	AuditTemporalApproved          = "temporal_access_approved"
	AuditTemporalDenied            = "temporal_access_denied"
	AuditEmergencyGranted          = "emergency_access_granted"
	AuditEmergencyUsed             = "emergency_access_used"
	AuditEmergencyRevoked          = "emergency_access_revoked"
	AuditUnauthorizedAttempt       = "unauthorized_access_attempt"
	AuditRateLimitExceeded         = "rate_limit_exceeded"
	AuditTicketAssigned            = "ticket_assigned"
	AuditPermissionsChanged        = "role_permissions_changed"
	AuditWorkflowExecuted          = "workflow_executed"
)

// PermissionAudit is an append-only record of an authorization-relevant
// decision or RBAC mutation. Rows are never updated or deleted.
type PermissionAudit struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID      *uuid.UUID `json:"userId,omitempty" gorm:"type:uuid;index"`
	Action      string     `json:"action" gorm:"not null;index"`
	EntityType  *string    `json:"entityType,omitempty"`
	EntityID    *uuid.UUID `json:"entityId,omitempty" gorm:"type:uuid"`
	OldValues   *JSON      `json:"oldValues,omitempty" gorm:"type:jsonb"`
	NewValues   *JSON      `json:"newValues,omitempty" gorm:"type:jsonb"`
	PerformedBy *uuid.UUID `json:"performedBy,omitempty" gorm:"type:uuid;index"`
	Reason      *string    `json:"reason,omitempty"`
	IPAddress   *string    `json:"ipAddress,omitempty"`
	UserAgent   *string    `json:"userAgent,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"index"`
}

func (PermissionAudit) TableName() string {
	return "permission_audits"
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// AssignRoleRequest represents a request to assign a role to a user
type AssignRoleRequest struct {
	RoleID    uuid.UUID  `json:"roleId" binding:"required"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Reason    *string    `json:"reason,omitempty"`
}

// TemporalGrantRequest represents an administrator-initiated temporal grant
type TemporalGrantRequest struct {
	UserID    uuid.UUID `json:"userId" binding:"required"`
	RoleID    uuid.UUID `json:"roleId" binding:"required"`
	ExpiresAt time.Time `json:"expiresAt" binding:"required"`
	Reason    string    `json:"reason" binding:"required"`
}

// BreakGlassRequest represents a request to generate a break-glass token
type BreakGlassRequest struct {
	UserID uuid.UUID `json:"userId" binding:"required"`
	Reason string    `json:"reason" binding:"required"`
}

// EmergencyAccessRequest represents a session-style emergency access request
type EmergencyAccessRequest struct {
	Password        string   `json:"password" binding:"required"`
	Permissions     []string `json:"permissions" binding:"required"`
	Reason          string   `json:"reason" binding:"required"`
	DurationMinutes int      `json:"durationMinutes,omitempty"`
}

// EffectivePermissions represents the resolved permission state for a user
type EffectivePermissions struct {
	UserID            uuid.UUID `json:"userId"`
	Permissions       []string  `json:"permissions"`
	Roles             []string  `json:"roles"`
	MaxHierarchyLevel int       `json:"maxHierarchyLevel"`
	EmergencyActive   bool      `json:"emergencyActive"`
}

// RoleListResponse represents a list of roles API response
type RoleListResponse struct {
	Success    bool            `json:"success"`
	Data       []Role          `json:"data"`
	Pagination *PaginationInfo `json:"pagination,omitempty"`
}

// AuditListResponse represents a list of audit entries API response
type AuditListResponse struct {
	Success    bool              `json:"success"`
	Data       []PermissionAudit `json:"data"`
	Pagination *PaginationInfo   `json:"pagination,omitempty"`
}
