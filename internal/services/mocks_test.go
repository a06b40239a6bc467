package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"helpdesk-service/internal/cache"
	"helpdesk-service/internal/models"
	"helpdesk-service/internal/permissions"
	"helpdesk-service/internal/repository"
)

// MockRBACRepository is a mock implementation of repository.RBACRepository
type MockRBACRepository struct {
	mock.Mock
}

var _ repository.RBACRepository = (*MockRBACRepository)(nil)

func (m *MockRBACRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockRBACRepository) GetDepartmentByID(ctx context.Context, id uuid.UUID) (*models.Department, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Department), args.Error(1)
}

func (m *MockRBACRepository) GetRoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Role), args.Error(1)
}

func (m *MockRBACRepository) ListRoles(ctx context.Context, page, limit int) ([]models.Role, *models.PaginationInfo, error) {
	args := m.Called(ctx, page, limit)
	return args.Get(0).([]models.Role), args.Get(1).(*models.PaginationInfo), args.Error(2)
}

func (m *MockRBACRepository) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID, grantedBy string) error {
	args := m.Called(ctx, roleID, permissionIDs, grantedBy)
	return args.Error(0)
}

func (m *MockRBACRepository) FindHierarchyViolations(ctx context.Context) ([]models.Role, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Role), args.Error(1)
}

func (m *MockRBACRepository) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]models.UserRole, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.UserRole), args.Error(1)
}

func (m *MockRBACRepository) GetUserMaxHierarchyLevel(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockRBACRepository) AssignRole(ctx context.Context, assignment *models.UserRole) error {
	args := m.Called(ctx, assignment)
	return args.Error(0)
}

func (m *MockRBACRepository) RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error {
	args := m.Called(ctx, userID, roleID)
	return args.Error(0)
}

func (m *MockRBACRepository) FindExpiredAssignments(ctx context.Context, now time.Time) ([]models.UserRole, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]models.UserRole), args.Error(1)
}

func (m *MockRBACRepository) DeactivateAssignment(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRBACRepository) FindExpiringAssignments(ctx context.Context, within time.Duration, now time.Time) ([]models.UserRole, error) {
	args := m.Called(ctx, within, now)
	return args.Get(0).([]models.UserRole), args.Error(1)
}

func (m *MockRBACRepository) CreateTemporalRequest(ctx context.Context, req *models.TemporalAccessRequest) error {
	args := m.Called(ctx, req)
	if args.Error(0) == nil && req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockRBACRepository) GetTemporalRequestByID(ctx context.Context, id uuid.UUID) (*models.TemporalAccessRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TemporalAccessRequest), args.Error(1)
}

func (m *MockRBACRepository) ReviewTemporalRequest(ctx context.Context, id uuid.UUID, status models.TemporalRequestStatus, reviewedBy uuid.UUID, notes *string) error {
	args := m.Called(ctx, id, status, reviewedBy, notes)
	return args.Error(0)
}

func (m *MockRBACRepository) ListPendingTemporalRequests(ctx context.Context) ([]models.TemporalAccessRequest, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.TemporalAccessRequest), args.Error(1)
}

// MockWorkflowRepository is a mock implementation of repository.WorkflowRepository
type MockWorkflowRepository struct {
	mock.Mock
}

var _ repository.WorkflowRepository = (*MockWorkflowRepository)(nil)

func (m *MockWorkflowRepository) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)
	return args.Error(0)
}

func (m *MockWorkflowRepository) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) ListWorkflows(ctx context.Context, page, limit int) ([]models.Workflow, *models.PaginationInfo, error) {
	args := m.Called(ctx, page, limit)
	return args.Get(0).([]models.Workflow), args.Get(1).(*models.PaginationInfo), args.Error(2)
}

func (m *MockWorkflowRepository) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)
	if args.Error(0) == nil && execution.ID == uuid.Nil {
		execution.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockWorkflowRepository) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

func (m *MockWorkflowRepository) GetExecutionByID(ctx context.Context, id uuid.UUID) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockWorkflowRepository) ListExecutions(ctx context.Context, workflowID *uuid.UUID, page, limit int) ([]models.WorkflowExecution, *models.PaginationInfo, error) {
	args := m.Called(ctx, workflowID, page, limit)
	return args.Get(0).([]models.WorkflowExecution), args.Get(1).(*models.PaginationInfo), args.Error(2)
}

func (m *MockWorkflowRepository) CancelExecution(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWorkflowRepository) CreateAction(ctx context.Context, action *models.WorkflowAction) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

func (m *MockWorkflowRepository) ListActiveRules(ctx context.Context) ([]models.WorkflowRule, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.WorkflowRule), args.Error(1)
}

func (m *MockWorkflowRepository) MarkRuleRun(ctx context.Context, id uuid.UUID, ranAt time.Time, executed int) error {
	args := m.Called(ctx, id, ranAt, executed)
	return args.Error(0)
}

// MockTicketsRepository is a mock implementation of repository.TicketsRepository
type MockTicketsRepository struct {
	mock.Mock
}

var _ repository.TicketsRepository = (*MockTicketsRepository)(nil)

func (m *MockTicketsRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	args := m.Called(ctx, ticket)
	return args.Error(0)
}

func (m *MockTicketsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketsRepository) List(ctx context.Context, page, limit int) ([]models.Ticket, *models.PaginationInfo, error) {
	args := m.Called(ctx, page, limit)
	return args.Get(0).([]models.Ticket), args.Get(1).(*models.PaginationInfo), args.Error(2)
}

func (m *MockTicketsRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	args := m.Called(ctx, id, updates)
	return args.Error(0)
}

func (m *MockTicketsRepository) Assign(ctx context.Context, id, assigneeID uuid.UUID) error {
	args := m.Called(ctx, id, assigneeID)
	return args.Error(0)
}

func (m *MockTicketsRepository) FindActive(ctx context.Context) ([]models.Ticket, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketsRepository) FindOverdue(ctx context.Context, now time.Time) ([]models.Ticket, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketsRepository) FindResolvedBefore(ctx context.Context, cutoff time.Time) ([]models.Ticket, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketsRepository) FindAwaitingReplySince(ctx context.Context, cutoff time.Time) ([]models.Ticket, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketsRepository) CountByStatus(ctx context.Context) (map[models.TicketStatus]int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[models.TicketStatus]int64), args.Error(1)
}

// MockAuditRepository is a mock implementation of repository.AuditRepository
type MockAuditRepository struct {
	mock.Mock
}

var _ repository.AuditRepository = (*MockAuditRepository)(nil)

func (m *MockAuditRepository) Create(ctx context.Context, entry *models.PermissionAudit) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) List(ctx context.Context, filters repository.AuditFilters, page, limit int) ([]models.PermissionAudit, *models.PaginationInfo, error) {
	args := m.Called(ctx, filters, page, limit)
	return args.Get(0).([]models.PermissionAudit), args.Get(1).(*models.PaginationInfo), args.Error(2)
}

func (m *MockAuditRepository) CountByAction(ctx context.Context, action string, since time.Time) (int64, error) {
	args := m.Called(ctx, action, since)
	return args.Get(0).(int64), args.Error(1)
}

// MockEmergencyRepository is a mock implementation of repository.EmergencyRepository
type MockEmergencyRepository struct {
	mock.Mock
}

var _ repository.EmergencyRepository = (*MockEmergencyRepository)(nil)

func (m *MockEmergencyRepository) Create(ctx context.Context, record *models.EmergencyAccess) error {
	args := m.Called(ctx, record)
	if args.Error(0) == nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockEmergencyRepository) GetActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.EmergencyAccess, error) {
	args := m.Called(ctx, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmergencyAccess), args.Error(1)
}

func (m *MockEmergencyRepository) ConsumeByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.EmergencyAccess, error) {
	args := m.Called(ctx, tokenHash, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmergencyAccess), args.Error(1)
}

func (m *MockEmergencyRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEmergencyRepository) GetStats(ctx context.Context, since time.Time) (*repository.EmergencyStats, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.EmergencyStats), args.Error(1)
}

// ===========================================
// Shared fixtures
// ===========================================

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// newPermsService builds a real permission service over an in-memory Redis
func newPermsService(t *testing.T, rbacRepo repository.RBACRepository, emergencyRepo repository.EmergencyRepository) *permissions.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	permCache := cache.NewPermissionCacheWithClient(client, 5*time.Minute)
	return permissions.NewService(rbacRepo, emergencyRepo, permCache, testLogger())
}

func roleWithLevel(name string, level int) *models.Role {
	return &models.Role{
		ID:             uuid.New(),
		Name:           name,
		DisplayName:    name,
		HierarchyLevel: level,
		IsActive:       true,
	}
}
