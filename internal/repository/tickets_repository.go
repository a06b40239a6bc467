package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"helpdesk-service/internal/models"
)

// TicketsRepository handles database operations for tickets
type TicketsRepository interface {
	Create(ctx context.Context, ticket *models.Ticket) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	List(ctx context.Context, page, limit int) ([]models.Ticket, *models.PaginationInfo, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	Assign(ctx context.Context, id, assigneeID uuid.UUID) error

	// Automation queries
	FindActive(ctx context.Context) ([]models.Ticket, error)
	FindOverdue(ctx context.Context, now time.Time) ([]models.Ticket, error)
	FindResolvedBefore(ctx context.Context, cutoff time.Time) ([]models.Ticket, error)
	FindAwaitingReplySince(ctx context.Context, cutoff time.Time) ([]models.Ticket, error)
	CountByStatus(ctx context.Context) (map[models.TicketStatus]int64, error)
}

type ticketsRepository struct {
	db *gorm.DB
}

func NewTicketsRepository(db *gorm.DB) TicketsRepository {
	return &ticketsRepository{db: db}
}

func (r *ticketsRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	if ticket.TicketNumber == "" {
		ticket.TicketNumber = generateTicketNumber()
	}
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Create(ticket).Error
}

func (r *ticketsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.db.WithContext(ctx).
		Preload("Department").
		First(&ticket, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketsRepository) List(ctx context.Context, page, limit int) ([]models.Ticket, *models.PaginationInfo, error) {
	var tickets []models.Ticket
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Ticket{})
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	offset := (page - 1) * limit
	if err := query.Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&tickets).Error; err != nil {
		return nil, nil, err
	}

	return tickets, buildPagination(page, limit, total), nil
}

func (r *ticketsRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketsRepository) Assign(ctx context.Context, id, assigneeID uuid.UUID) error {
	return r.Update(ctx, id, map[string]interface{}{
		"assigned_to": assigneeID,
		"status":      models.TicketStatusInProgress,
	})
}

func (r *ticketsRepository) FindActive(ctx context.Context) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("status NOT IN ?", []models.TicketStatus{models.TicketStatusClosed, models.TicketStatusResolved}).
		Find(&tickets).Error
	return tickets, err
}

func (r *ticketsRepository) FindOverdue(ctx context.Context, now time.Time) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("status NOT IN ?", []models.TicketStatus{
			models.TicketStatusClosed, models.TicketStatusResolved, models.TicketStatusEscalated,
		}).
		Find(&tickets).Error
	return tickets, err
}

func (r *ticketsRepository) FindResolvedBefore(ctx context.Context, cutoff time.Time) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("status = ? AND resolved_at IS NOT NULL AND resolved_at < ?", models.TicketStatusResolved, cutoff).
		Find(&tickets).Error
	return tickets, err
}

func (r *ticketsRepository) FindAwaitingReplySince(ctx context.Context, cutoff time.Time) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.TicketStatus{models.TicketStatusOpen, models.TicketStatusOnHold}).
		Where("last_reply_at IS NOT NULL AND last_reply_at < ?", cutoff).
		Find(&tickets).Error
	return tickets, err
}

func (r *ticketsRepository) CountByStatus(ctx context.Context) (map[models.TicketStatus]int64, error) {
	type statusCount struct {
		Status models.TicketStatus
		Count  int64
	}
	var counts []statusCount
	err := r.db.WithContext(ctx).Model(&models.Ticket{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	result := make(map[models.TicketStatus]int64, len(counts))
	for _, c := range counts {
		result[c.Status] = c.Count
	}
	return result, nil
}

func generateTicketNumber() string {
	return fmt.Sprintf("TKT-%s", uuid.New().String()[:8])
}
