package payment

import (
	"context"
	"time"

	"github.com/payably/backend/internal/domain/shared"
)

// PaymentRecordRepository is the port for the locally-owned payment store
type PaymentRecordRepository interface {
	shared.Repository[PaymentRecord]

	// FindByTransactionID looks a record up by its idempotency key
	FindByTransactionID(ctx context.Context, transactionID string) (*PaymentRecord, error)

	// FindDue returns pending records whose scheduled date has arrived
	FindDue(ctx context.Context, asOf time.Time, limit int) ([]PaymentRecord, error)

	// FindReconciliationBacklog returns completed records whose external
	// ledger write failed, ordered oldest first
	FindReconciliationBacklog(ctx context.Context, filter shared.Filter) (shared.Paginated[PaymentRecord], error)

	// SaveWithLock persists the record with optimistic concurrency control;
	// returns shared.ErrConcurrencyConflict when the version moved underneath
	SaveWithLock(ctx context.Context, p *PaymentRecord) error

	// GeneratePaymentNumber produces the next human-readable record number
	GeneratePaymentNumber(ctx context.Context) (string, error)
}

// RecurringScheduleRepository is the port for recurring schedules
type RecurringScheduleRepository interface {
	shared.Repository[RecurringSchedule]

	// FindDue returns active schedules whose next due date has arrived
	FindDue(ctx context.Context, asOf time.Time, limit int) ([]RecurringSchedule, error)

	// FindByClientRef returns all schedules for a client
	FindByClientRef(ctx context.Context, clientRef string) ([]RecurringSchedule, error)

	// SaveWithLock persists the schedule with optimistic concurrency control
	SaveWithLock(ctx context.Context, s *RecurringSchedule) error
}
