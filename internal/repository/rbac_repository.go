package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"helpdesk-service/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
)

// ============================================================================
// RBAC REPOSITORY INTERFACE
// ============================================================================

type RBACRepository interface {
	// Users
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// Departments
	GetDepartmentByID(ctx context.Context, id uuid.UUID) (*models.Department, error)

	// Roles
	GetRoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
	ListRoles(ctx context.Context, page, limit int) ([]models.Role, *models.PaginationInfo, error)
	SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID, grantedBy string) error
	FindHierarchyViolations(ctx context.Context) ([]models.Role, error)

	// User-role assignments
	GetUserRoles(ctx context.Context, userID uuid.UUID) ([]models.UserRole, error)
	GetUserMaxHierarchyLevel(ctx context.Context, userID uuid.UUID) (int, error)
	AssignRole(ctx context.Context, assignment *models.UserRole) error
	RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error
	FindExpiredAssignments(ctx context.Context, now time.Time) ([]models.UserRole, error)
	DeactivateAssignment(ctx context.Context, id uuid.UUID) error
	FindExpiringAssignments(ctx context.Context, within time.Duration, now time.Time) ([]models.UserRole, error)

	// Temporal access requests
	CreateTemporalRequest(ctx context.Context, req *models.TemporalAccessRequest) error
	GetTemporalRequestByID(ctx context.Context, id uuid.UUID) (*models.TemporalAccessRequest, error)
	ReviewTemporalRequest(ctx context.Context, id uuid.UUID, status models.TemporalRequestStatus, reviewedBy uuid.UUID, notes *string) error
	ListPendingTemporalRequests(ctx context.Context) ([]models.TemporalAccessRequest, error)
}

type rbacRepository struct {
	db *gorm.DB
}

func NewRBACRepository(db *gorm.DB) RBACRepository {
	return &rbacRepository{db: db}
}

// ============================================================================
// USERS & DEPARTMENTS
// ============================================================================

func (r *rbacRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("Department").
		First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *rbacRepository) GetDepartmentByID(ctx context.Context, id uuid.UUID) (*models.Department, error) {
	var dept models.Department
	err := r.db.WithContext(ctx).First(&dept, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &dept, nil
}

// ============================================================================
// ROLES
// ============================================================================

func (r *rbacRepository) GetRoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	var role models.Role
	err := r.db.WithContext(ctx).
		Preload("Permissions").
		First(&role, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

func (r *rbacRepository) ListRoles(ctx context.Context, page, limit int) ([]models.Role, *models.PaginationInfo, error) {
	var roles []models.Role
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Role{})
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	offset := (page - 1) * limit
	if err := query.Offset(offset).Limit(limit).
		Preload("Permissions").
		Order("hierarchy_level DESC, name ASC").
		Find(&roles).Error; err != nil {
		return nil, nil, err
	}

	// Batch load user counts in one query
	if len(roles) > 0 {
		roleIDs := make([]uuid.UUID, len(roles))
		for i, role := range roles {
			roleIDs[i] = role.ID
		}

		type RoleCount struct {
			RoleID uuid.UUID
			Count  int64
		}
		var counts []RoleCount
		r.db.WithContext(ctx).Model(&models.UserRole{}).
			Select("role_id, COUNT(*) as count").
			Where("role_id IN ? AND is_active = ?", roleIDs, true).
			Group("role_id").
			Scan(&counts)

		countMap := make(map[uuid.UUID]int64)
		for _, c := range counts {
			countMap[c.RoleID] = c.Count
		}
		for i := range roles {
			roles[i].UserCount = countMap[roles[i].ID]
		}
	}

	return roles, buildPagination(page, limit, total), nil
}

func (r *rbacRepository) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID, grantedBy string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", roleID).Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}
		for _, permID := range permissionIDs {
			rp := models.RolePermission{
				RoleID:       roleID,
				PermissionID: permID,
				GrantedAt:    time.Now(),
				GrantedBy:    &grantedBy,
			}
			if err := tx.Create(&rp).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindHierarchyViolations reports roles whose permission set is not a superset
// of some subordinate role's set. Data-integrity expectation only; used by
// health-check tooling, never enforced at runtime.
func (r *rbacRepository) FindHierarchyViolations(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := r.db.WithContext(ctx).
		Preload("Permissions").
		Where("is_active = ?", true).
		Order("hierarchy_level ASC").
		Find(&roles).Error; err != nil {
		return nil, err
	}

	var violations []models.Role
	for i, higher := range roles {
		held := make(map[string]bool, len(higher.Permissions))
		for _, p := range higher.Permissions {
			held[p.Name] = true
		}
		for _, lower := range roles[:i] {
			if lower.HierarchyLevel >= higher.HierarchyLevel {
				continue
			}
			for _, p := range lower.Permissions {
				if !held[p.Name] {
					violations = append(violations, higher)
					break
				}
			}
		}
	}
	return violations, nil
}

// ============================================================================
// USER-ROLE ASSIGNMENTS
// ============================================================================

func (r *rbacRepository) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]models.UserRole, error) {
	var assignments []models.UserRole
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Preload("Role").
		Preload("Role.Permissions").
		Order("assigned_at ASC").
		Find(&assignments).Error
	return assignments, err
}

func (r *rbacRepository) GetUserMaxHierarchyLevel(ctx context.Context, userID uuid.UUID) (int, error) {
	var maxLevel int
	err := r.db.WithContext(ctx).Model(&models.UserRole{}).
		Select("COALESCE(MAX(roles.hierarchy_level), 0)").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ? AND user_roles.is_active = ?", userID, true).
		Where("user_roles.expires_at IS NULL OR user_roles.expires_at > ?", time.Now()).
		Scan(&maxLevel).Error
	return maxLevel, err
}

func (r *rbacRepository) AssignRole(ctx context.Context, assignment *models.UserRole) error {
	assignment.AssignedAt = time.Now()
	assignment.IsActive = true
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *rbacRepository) RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ? AND is_active = ?", userID, roleID, true).
		Delete(&models.UserRole{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *rbacRepository) FindExpiredAssignments(ctx context.Context, now time.Time) ([]models.UserRole, error) {
	var assignments []models.UserRole
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Preload("Role").
		Find(&assignments).Error
	return assignments, err
}

func (r *rbacRepository) DeactivateAssignment(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.UserRole{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (r *rbacRepository) FindExpiringAssignments(ctx context.Context, within time.Duration, now time.Time) ([]models.UserRole, error) {
	var assignments []models.UserRole
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?",
			true, now, now.Add(within)).
		Preload("Role").
		Preload("User").
		Order("expires_at ASC").
		Find(&assignments).Error
	return assignments, err
}

// ============================================================================
// TEMPORAL ACCESS REQUESTS
// ============================================================================

func (r *rbacRepository) CreateTemporalRequest(ctx context.Context, req *models.TemporalAccessRequest) error {
	req.Status = models.TemporalRequestPending
	req.CreatedAt = time.Now()
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *rbacRepository) GetTemporalRequestByID(ctx context.Context, id uuid.UUID) (*models.TemporalAccessRequest, error) {
	var req models.TemporalAccessRequest
	err := r.db.WithContext(ctx).
		Preload("Role").
		First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *rbacRepository) ReviewTemporalRequest(ctx context.Context, id uuid.UUID, status models.TemporalRequestStatus, reviewedBy uuid.UUID, notes *string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.TemporalAccessRequest{}).
		Where("id = ? AND status = ?", id, models.TemporalRequestPending).
		Updates(map[string]interface{}{
			"status":       status,
			"reviewed_by":  reviewedBy,
			"reviewed_at":  now,
			"review_notes": notes,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *rbacRepository) ListPendingTemporalRequests(ctx context.Context) ([]models.TemporalAccessRequest, error) {
	var reqs []models.TemporalAccessRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", models.TemporalRequestPending).
		Preload("User").
		Preload("Role").
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

// ============================================================================
// HELPERS
// ============================================================================

func buildPagination(page, limit int, total int64) *models.PaginationInfo {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &models.PaginationInfo{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}
