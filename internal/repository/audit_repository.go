package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"helpdesk-service/internal/models"
)

// AuditFilters narrows an audit log query
type AuditFilters struct {
	UserID      *uuid.UUID
	PerformedBy *uuid.UUID
	Action      string
	From        *time.Time
	To          *time.Time
}

// AuditRepository persists the append-only permission audit trail.
// Entries are never updated or deleted.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.PermissionAudit) error
	List(ctx context.Context, filters AuditFilters, page, limit int) ([]models.PermissionAudit, *models.PaginationInfo, error)
	CountByAction(ctx context.Context, action string, since time.Time) (int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.PermissionAudit) error {
	entry.CreatedAt = time.Now()
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, filters AuditFilters, page, limit int) ([]models.PermissionAudit, *models.PaginationInfo, error) {
	var entries []models.PermissionAudit
	var total int64

	query := r.db.WithContext(ctx).Model(&models.PermissionAudit{})
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.PerformedBy != nil {
		query = query.Where("performed_by = ?", *filters.PerformedBy)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.From != nil {
		query = query.Where("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		query = query.Where("created_at <= ?", *filters.To)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	offset := (page - 1) * limit
	if err := query.Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	return entries, buildPagination(page, limit, total), nil
}

func (r *auditRepository) CountByAction(ctx context.Context, action string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PermissionAudit{}).
		Where("action = ? AND created_at >= ?", action, since).
		Count(&count).Error
	return count, err
}
