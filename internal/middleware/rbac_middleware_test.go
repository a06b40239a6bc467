package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"helpdesk-service/internal/models"
	"helpdesk-service/internal/permissions"
	"helpdesk-service/internal/repository"
)

// ===========================================
// Mocks
// ===========================================

type MockPermissionChecker struct {
	mock.Mock
}

var _ PermissionChecker = (*MockPermissionChecker)(nil)

func (m *MockPermissionChecker) CheckPermission(ctx context.Context, userID uuid.UUID, permission string) (permissions.PermissionCheck, error) {
	args := m.Called(ctx, userID, permission)
	return args.Get(0).(permissions.PermissionCheck), args.Error(1)
}

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
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]models.PermissionAudit), args.Get(1).(*models.PaginationInfo), args.Error(2)
}

func (m *MockAuditRepository) CountByAction(ctx context.Context, action string, since time.Time) (int64, error) {
	args := m.Called(ctx, action, since)
	return args.Get(0).(int64), args.Error(1)
}

// ===========================================
// Fixtures
// ===========================================

func testMiddleware(checker PermissionChecker, auditRepo repository.AuditRepository, perUserLimit int) *RBACMiddleware {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return &RBACMiddleware{
		perms:     checker,
		auditRepo: auditRepo,
		limiter:   NewUserRateLimiter(perUserLimit, time.Minute),
		logger:    logger.WithField("component", "rbac_middleware"),
	}
}

// protectedRouter seeds the authenticated user id the way JWTAuth would,
// then guards a single route with the handler under test.
func protectedRouter(userID uuid.UUID, guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(ContextUserID, userID)
		}
		c.Next()
	})
	r.GET("/tickets", guard, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func performRequest(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tickets", nil)
	r.ServeHTTP(w, req)
	return w
}

func captureAudits(auditRepo *MockAuditRepository) *[]*models.PermissionAudit {
	var entries []*models.PermissionAudit
	auditRepo.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			entries = append(entries, args.Get(1).(*models.PermissionAudit))
		}).
		Return(nil)
	return &entries
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// ===========================================
// RequirePermission
// ===========================================

func TestRequirePermission_AllowedPassesWithoutAudit(t *testing.T) {
	userID := uuid.New()
	checker := new(MockPermissionChecker)
	auditRepo := new(MockAuditRepository)

	checker.On("CheckPermission", mock.Anything, userID, "tickets.view_all").
		Return(permissions.PermissionCheck{Allowed: true}, nil)

	mw := testMiddleware(checker, auditRepo, 100)
	w := performRequest(protectedRouter(userID, mw.RequirePermission("tickets.view_all")))

	assert.Equal(t, http.StatusOK, w.Code)
	auditRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRequirePermission_DenialIsGenericAndAudited(t *testing.T) {
	userID := uuid.New()
	checker := new(MockPermissionChecker)
	auditRepo := new(MockAuditRepository)
	entries := captureAudits(auditRepo)

	checker.On("CheckPermission", mock.Anything, userID, "tickets.delete_all").
		Return(permissions.PermissionCheck{}, nil)

	mw := testMiddleware(checker, auditRepo, 100)
	w := performRequest(protectedRouter(userID, mw.RequirePermission("tickets.delete_all")))

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
	assert.Equal(t, "Insufficient permissions", resp.Error.Message)
	// The missing permission is never echoed to the caller
	assert.NotContains(t, w.Body.String(), "tickets.delete_all")

	if assert.Len(t, *entries, 1) {
		entry := (*entries)[0]
		assert.Equal(t, models.AuditUnauthorizedAttempt, entry.Action)
		assert.Equal(t, userID, *entry.UserID)
		assert.Equal(t, "tickets.delete_all", (*entry.NewValues)["permission"])
	}
}

func TestRequirePermission_RateLimitedBeforePermissionCheck(t *testing.T) {
	userID := uuid.New()
	checker := new(MockPermissionChecker)
	auditRepo := new(MockAuditRepository)
	entries := captureAudits(auditRepo)

	checker.On("CheckPermission", mock.Anything, userID, "tickets.view_all").
		Return(permissions.PermissionCheck{Allowed: true}, nil).Once()

	mw := testMiddleware(checker, auditRepo, 1)
	router := protectedRouter(userID, mw.RequirePermission("tickets.view_all"))

	assert.Equal(t, http.StatusOK, performRequest(router).Code)

	w := performRequest(router)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeError(t, w).Error.Code)

	checker.AssertNumberOfCalls(t, "CheckPermission", 1)
	if assert.Len(t, *entries, 1) {
		assert.Equal(t, models.AuditRateLimitExceeded, (*entries)[0].Action)
	}
}

func TestRequirePermission_EmergencyUseAudited(t *testing.T) {
	userID := uuid.New()
	grantID := uuid.New()
	checker := new(MockPermissionChecker)
	auditRepo := new(MockAuditRepository)
	entries := captureAudits(auditRepo)

	checker.On("CheckPermission", mock.Anything, userID, "tickets.view_all").
		Return(permissions.PermissionCheck{Allowed: true, ViaEmergency: true, EmergencyID: &grantID}, nil)

	mw := testMiddleware(checker, auditRepo, 100)
	w := performRequest(protectedRouter(userID, mw.RequirePermission("tickets.view_all")))

	assert.Equal(t, http.StatusOK, w.Code)
	if assert.Len(t, *entries, 1) {
		entry := (*entries)[0]
		assert.Equal(t, models.AuditEmergencyUsed, entry.Action)
		assert.Equal(t, userID, *entry.UserID)
		assert.Equal(t, grantID, *entry.EntityID)
		assert.Equal(t, "tickets.view_all", (*entry.NewValues)["permission"])
	}
}

func TestRequirePermission_CheckFailureReturns500(t *testing.T) {
	userID := uuid.New()
	checker := new(MockPermissionChecker)
	auditRepo := new(MockAuditRepository)

	checker.On("CheckPermission", mock.Anything, userID, "tickets.view_all").
		Return(permissions.PermissionCheck{}, assert.AnError)

	mw := testMiddleware(checker, auditRepo, 100)
	w := performRequest(protectedRouter(userID, mw.RequirePermission("tickets.view_all")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", decodeError(t, w).Error.Code)
	auditRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRequirePermission_MissingUserContext(t *testing.T) {
	checker := new(MockPermissionChecker)
	auditRepo := new(MockAuditRepository)

	mw := testMiddleware(checker, auditRepo, 100)
	w := performRequest(protectedRouter(uuid.Nil, mw.RequirePermission("tickets.view_all")))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	checker.AssertNotCalled(t, "CheckPermission", mock.Anything, mock.Anything, mock.Anything)
}

// ===========================================
// RequireAnyPermission
// ===========================================

func TestRequireAnyPermission_SecondPermissionSatisfies(t *testing.T) {
	userID := uuid.New()
	checker := new(MockPermissionChecker)
	auditRepo := new(MockAuditRepository)

	checker.On("CheckPermission", mock.Anything, userID, "tickets.view_all").
		Return(permissions.PermissionCheck{}, nil)
	checker.On("CheckPermission", mock.Anything, userID, "tickets.view_department").
		Return(permissions.PermissionCheck{Allowed: true}, nil)

	mw := testMiddleware(checker, auditRepo, 100)
	w := performRequest(protectedRouter(userID, mw.RequireAnyPermission("tickets.view_all", "tickets.view_department")))

	assert.Equal(t, http.StatusOK, w.Code)
	auditRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRequireAnyPermission_AllDeniedAudited(t *testing.T) {
	userID := uuid.New()
	checker := new(MockPermissionChecker)
	auditRepo := new(MockAuditRepository)
	entries := captureAudits(auditRepo)

	checker.On("CheckPermission", mock.Anything, userID, mock.Anything).
		Return(permissions.PermissionCheck{}, nil)

	mw := testMiddleware(checker, auditRepo, 100)
	w := performRequest(protectedRouter(userID, mw.RequireAnyPermission("tickets.view_all", "tickets.view_department")))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, w).Error.Code)
	if assert.Len(t, *entries, 1) {
		assert.Equal(t, models.AuditUnauthorizedAttempt, (*entries)[0].Action)
	}
}

func TestRequireAnyPermission_EmergencyUseAudited(t *testing.T) {
	userID := uuid.New()
	grantID := uuid.New()
	checker := new(MockPermissionChecker)
	auditRepo := new(MockAuditRepository)
	entries := captureAudits(auditRepo)

	checker.On("CheckPermission", mock.Anything, userID, "tickets.view_all").
		Return(permissions.PermissionCheck{Allowed: true, ViaEmergency: true, EmergencyID: &grantID}, nil)

	mw := testMiddleware(checker, auditRepo, 100)
	w := performRequest(protectedRouter(userID, mw.RequireAnyPermission("tickets.view_all")))

	assert.Equal(t, http.StatusOK, w.Code)
	if assert.Len(t, *entries, 1) {
		assert.Equal(t, models.AuditEmergencyUsed, (*entries)[0].Action)
		assert.Equal(t, grantID, *(*entries)[0].EntityID)
	}
}
