package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"helpdesk-service/internal/models"
)

// EmergencyStats summarizes emergency access activity over a window
type EmergencyStats struct {
	TotalGranted  int64 `json:"totalGranted"`
	TotalUsed     int64 `json:"totalUsed"`
	TotalExpired  int64 `json:"totalExpired"`
	CurrentActive int64 `json:"currentActive"`

	// UnauthorizedAttempts comes from the audit trail, not this repository
	UnauthorizedAttempts int64 `json:"unauthorizedAttempts"`
}

// EmergencyRepository persists emergency access records. Rows are deactivated
// by the cleanup sweep but never deleted, preserving the audit trail.
type EmergencyRepository interface {
	Create(ctx context.Context, record *models.EmergencyAccess) error
	GetActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.EmergencyAccess, error)
	ConsumeByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.EmergencyAccess, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	GetStats(ctx context.Context, since time.Time) (*EmergencyStats, error)
}

type emergencyRepository struct {
	db *gorm.DB
}

func NewEmergencyRepository(db *gorm.DB) EmergencyRepository {
	return &emergencyRepository{db: db}
}

func (r *emergencyRepository) Create(ctx context.Context, record *models.EmergencyAccess) error {
	record.CreatedAt = time.Now()
	record.IsActive = true
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *emergencyRepository) GetActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.EmergencyAccess, error) {
	var record models.EmergencyAccess
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, now).
		Where("access_type = ? OR used_at IS NULL", models.EmergencyAccessSession).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ConsumeByTokenHash atomically marks a break-glass record used. The UPDATE
// predicate guarantees only the first consumption succeeds; replays and
// unknown tokens are indistinguishable to the caller.
func (r *emergencyRepository) ConsumeByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.EmergencyAccess, error) {
	var record models.EmergencyAccess
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.EmergencyAccess{}).
			Where("token_hash = ? AND is_active = ? AND expires_at > ? AND used_at IS NULL", tokenHash, true, now).
			Update("used_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("token_hash = ?", tokenHash).First(&record).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *emergencyRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.EmergencyAccess{}).
		Where("is_active = ? AND (expires_at <= ? OR (access_type = ? AND used_at IS NOT NULL))",
			true, now, models.EmergencyAccessBreakGlass).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

func (r *emergencyRepository) GetStats(ctx context.Context, since time.Time) (*EmergencyStats, error) {
	stats := &EmergencyStats{}
	db := r.db.WithContext(ctx).Model(&models.EmergencyAccess{})

	if err := db.Session(&gorm.Session{}).
		Where("created_at >= ?", since).
		Count(&stats.TotalGranted).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).
		Where("created_at >= ? AND used_at IS NOT NULL", since).
		Count(&stats.TotalUsed).Error; err != nil {
		return nil, err
	}
	now := time.Now()
	if err := db.Session(&gorm.Session{}).
		Where("created_at >= ? AND expires_at <= ?", since, now).
		Count(&stats.TotalExpired).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).
		Where("is_active = ? AND expires_at > ?", true, now).
		Count(&stats.CurrentActive).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
