package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRecurringScheduleRepository implements payment.RecurringScheduleRepository using GORM
type GormRecurringScheduleRepository struct {
	db *gorm.DB
}

// NewGormRecurringScheduleRepository creates a new GormRecurringScheduleRepository
func NewGormRecurringScheduleRepository(db *gorm.DB) *GormRecurringScheduleRepository {
	return &GormRecurringScheduleRepository{db: db}
}

// FindByID finds a recurring schedule by ID
func (r *GormRecurringScheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
	var model models.RecurringScheduleModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds recurring schedules matching the filter
func (r *GormRecurringScheduleRepository) FindAll(ctx context.Context, filter shared.Filter) ([]payment.RecurringSchedule, error) {
	var scheduleModels []models.RecurringScheduleModel
	query := r.applyFilters(r.db.WithContext(ctx), filter)

	orderBy := ValidateSortField(filter.OrderBy, ScheduleSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(fmt.Sprintf("%s %s", orderBy, orderDir))

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Find(&scheduleModels).Error; err != nil {
		return nil, err
	}

	schedules := make([]payment.RecurringSchedule, len(scheduleModels))
	for i := range scheduleModels {
		schedules[i] = *scheduleModels[i].ToDomain()
	}
	return schedules, nil
}

func (r *GormRecurringScheduleRepository) applyFilters(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = query.Model(&models.RecurringScheduleModel{})
	if v, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", v)
	}
	if v, ok := filter.Filters["client_ref"]; ok {
		query = query.Where("client_ref = ?", v)
	}
	if v, ok := filter.Filters["frequency"]; ok {
		query = query.Where("frequency = ?", v)
	}
	return query
}

// Count counts recurring schedules matching the filter
func (r *GormRecurringScheduleRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilters(r.db.WithContext(ctx), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindDue returns active schedules whose next due date has arrived, oldest first
func (r *GormRecurringScheduleRepository) FindDue(ctx context.Context, asOf time.Time, limit int) ([]payment.RecurringSchedule, error) {
	var scheduleModels []models.RecurringScheduleModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND next_due_date IS NOT NULL AND next_due_date <= ?", payment.ScheduleActive, asOf).
		Order("next_due_date ASC").
		Limit(limit).
		Find(&scheduleModels).Error; err != nil {
		return nil, err
	}

	schedules := make([]payment.RecurringSchedule, len(scheduleModels))
	for i := range scheduleModels {
		schedules[i] = *scheduleModels[i].ToDomain()
	}
	return schedules, nil
}

// FindByClientRef returns all schedules for a client
func (r *GormRecurringScheduleRepository) FindByClientRef(ctx context.Context, clientRef string) ([]payment.RecurringSchedule, error) {
	var scheduleModels []models.RecurringScheduleModel
	if err := r.db.WithContext(ctx).
		Where("client_ref = ?", clientRef).
		Order("created_at ASC").
		Find(&scheduleModels).Error; err != nil {
		return nil, err
	}

	schedules := make([]payment.RecurringSchedule, len(scheduleModels))
	for i := range scheduleModels {
		schedules[i] = *scheduleModels[i].ToDomain()
	}
	return schedules, nil
}

// Save creates or updates a recurring schedule
func (r *GormRecurringScheduleRepository) Save(ctx context.Context, s *payment.RecurringSchedule) error {
	model := models.RecurringScheduleModelFromDomain(s)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock persists the schedule with optimistic concurrency control
func (r *GormRecurringScheduleRepository) SaveWithLock(ctx context.Context, s *payment.RecurringSchedule) error {
	model := models.RecurringScheduleModelFromDomain(s)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", s.ID, s.Version-1).
		Select("*").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Ensure GormRecurringScheduleRepository implements the interface
var _ payment.RecurringScheduleRepository = (*GormRecurringScheduleRepository)(nil)
