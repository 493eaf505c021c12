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

// GormPaymentRecordRepository implements payment.PaymentRecordRepository using GORM
type GormPaymentRecordRepository struct {
	db *gorm.DB
}

// NewGormPaymentRecordRepository creates a new GormPaymentRecordRepository
func NewGormPaymentRecordRepository(db *gorm.DB) *GormPaymentRecordRepository {
	return &GormPaymentRecordRepository{db: db}
}

// FindByID finds a payment record by ID
func (r *GormPaymentRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.PaymentRecord, error) {
	var model models.PaymentRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTransactionID looks a record up by its idempotency key
func (r *GormPaymentRecordRepository) FindByTransactionID(ctx context.Context, transactionID string) (*payment.PaymentRecord, error) {
	var model models.PaymentRecordModel
	if err := r.db.WithContext(ctx).First(&model, "transaction_id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds payment records matching the filter
func (r *GormPaymentRecordRepository) FindAll(ctx context.Context, filter shared.Filter) ([]payment.PaymentRecord, error) {
	var recordModels []models.PaymentRecordModel
	query := r.applyFilters(r.db.WithContext(ctx), filter)

	orderBy := ValidateSortField(filter.OrderBy, PaymentSortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	query = query.Order(fmt.Sprintf("%s %s", orderBy, orderDir))

	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize)
		if filter.Page > 0 {
			query = query.Offset((filter.Page - 1) * filter.PageSize)
		}
	}

	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]payment.PaymentRecord, len(recordModels))
	for i := range recordModels {
		records[i] = *recordModels[i].ToDomain()
	}
	return records, nil
}

// applyFilters narrows the query by the whitelisted filter keys
func (r *GormPaymentRecordRepository) applyFilters(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = query.Model(&models.PaymentRecordModel{})
	if v, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", v)
	}
	if v, ok := filter.Filters["method"]; ok {
		query = query.Where("method = ?", v)
	}
	if v, ok := filter.Filters["client_ref"]; ok {
		query = query.Where("client_ref = ?", v)
	}
	if v, ok := filter.Filters["schedule_id"]; ok {
		query = query.Where("schedule_id = ?", v)
	}
	if v, ok := filter.Filters["ledger_status"]; ok {
		query = query.Where("ledger_status = ?", v)
	}
	return query
}

// Count counts payment records matching the filter
func (r *GormPaymentRecordRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilters(r.db.WithContext(ctx), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindDue returns pending records whose scheduled date has arrived, oldest first
func (r *GormPaymentRecordRepository) FindDue(ctx context.Context, asOf time.Time, limit int) ([]payment.PaymentRecord, error) {
	var recordModels []models.PaymentRecordModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?", payment.StatusPending, asOf).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make([]payment.PaymentRecord, len(recordModels))
	for i := range recordModels {
		records[i] = *recordModels[i].ToDomain()
	}
	return records, nil
}

// FindReconciliationBacklog returns completed records whose external ledger
// write failed, ordered oldest first
func (r *GormPaymentRecordRepository) FindReconciliationBacklog(ctx context.Context, filter shared.Filter) (shared.Paginated[payment.PaymentRecord], error) {
	query := r.db.WithContext(ctx).
		Model(&models.PaymentRecordModel{}).
		Where("status = ? AND ledger_status = ?", payment.StatusCompleted, payment.LedgerWriteFailed)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return shared.Paginated[payment.PaymentRecord]{}, err
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	var recordModels []models.PaymentRecordModel
	if err := query.
		Order("updated_at ASC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&recordModels).Error; err != nil {
		return shared.Paginated[payment.PaymentRecord]{}, err
	}

	records := make([]payment.PaymentRecord, len(recordModels))
	for i := range recordModels {
		records[i] = *recordModels[i].ToDomain()
	}
	return shared.NewPaginated(records, total, page, pageSize), nil
}

// Save creates or updates a payment record
func (r *GormPaymentRecordRepository) Save(ctx context.Context, p *payment.PaymentRecord) error {
	model := models.PaymentRecordModelFromDomain(p)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveWithLock persists the record with optimistic concurrency control. The
// version check matches the pre-increment version; zero rows affected means a
// concurrent writer got there first.
func (r *GormPaymentRecordRepository) SaveWithLock(ctx context.Context, p *payment.PaymentRecord) error {
	model := models.PaymentRecordModelFromDomain(p)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", p.ID, p.Version-1).
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

// GeneratePaymentNumber produces the next human-readable record number.
// Format: PAY-YYYYMMDD-NNNNN, with the sequence restarting each day.
func (r *GormPaymentRecordRepository) GeneratePaymentNumber(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("PAY-%s-", time.Now().Format("20060102"))

	var maxNumber string
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentRecordModel{}).
		Select("record_number").
		Where("record_number LIKE ?", prefix+"%").
		Order("record_number DESC").
		Limit(1).
		Scan(&maxNumber).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	nextSeq := 1
	if len(maxNumber) >= 5 {
		var seq int
		if _, err := fmt.Sscanf(maxNumber[len(maxNumber)-5:], "%05d", &seq); err == nil {
			nextSeq = seq + 1
		}
	}

	return fmt.Sprintf("%s%05d", prefix, nextSeq), nil
}

// Ensure GormPaymentRecordRepository implements the interface
var _ payment.PaymentRecordRepository = (*GormPaymentRecordRepository)(nil)
