package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Repositories and Ports for Payment Service Tests
// =============================================================================

// MockPaymentRepository is a mock implementation of payment.PaymentRecordRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.PaymentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) FindAll(ctx context.Context, filter shared.Filter) ([]payment.PaymentRecord, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]payment.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) Save(ctx context.Context, p *payment.PaymentRecord) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPaymentRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*payment.PaymentRecord, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) FindDue(ctx context.Context, asOf time.Time, limit int) ([]payment.PaymentRecord, error) {
	args := m.Called(ctx, asOf, limit)
	return args.Get(0).([]payment.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) FindReconciliationBacklog(ctx context.Context, filter shared.Filter) (shared.Paginated[payment.PaymentRecord], error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(shared.Paginated[payment.PaymentRecord]), args.Error(1)
}

func (m *MockPaymentRepository) SaveWithLock(ctx context.Context, p *payment.PaymentRecord) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPaymentRepository) GeneratePaymentNumber(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockScheduleRepository is a mock implementation of payment.RecurringScheduleRepository
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.RecurringSchedule), args.Error(1)
}

func (m *MockScheduleRepository) FindAll(ctx context.Context, filter shared.Filter) ([]payment.RecurringSchedule, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]payment.RecurringSchedule), args.Error(1)
}

func (m *MockScheduleRepository) Save(ctx context.Context, s *payment.RecurringSchedule) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockScheduleRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockScheduleRepository) FindDue(ctx context.Context, asOf time.Time, limit int) ([]payment.RecurringSchedule, error) {
	args := m.Called(ctx, asOf, limit)
	return args.Get(0).([]payment.RecurringSchedule), args.Error(1)
}

func (m *MockScheduleRepository) FindByClientRef(ctx context.Context, clientRef string) ([]payment.RecurringSchedule, error) {
	args := m.Called(ctx, clientRef)
	return args.Get(0).([]payment.RecurringSchedule), args.Error(1)
}

func (m *MockScheduleRepository) SaveWithLock(ctx context.Context, s *payment.RecurringSchedule) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

// MockSettlementGateway is a mock implementation of payment.SettlementGateway
type MockSettlementGateway struct {
	mock.Mock
}

func (m *MockSettlementGateway) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payment.ChargeResult), args.Error(1)
}

func (m *MockSettlementGateway) Void(ctx context.Context, req payment.ReversalRequest) (payment.ReversalResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payment.ReversalResult), args.Error(1)
}

func (m *MockSettlementGateway) Refund(ctx context.Context, req payment.ReversalRequest) (payment.ReversalResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payment.ReversalResult), args.Error(1)
}

// MockLedgerWriter is a mock implementation of payment.LedgerWriter
type MockLedgerWriter struct {
	mock.Mock
}

func (m *MockLedgerWriter) Write(ctx context.Context, p *payment.PaymentRecord) (payment.LedgerWriteResult, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(payment.LedgerWriteResult), args.Error(1)
}

// MockInvoiceSource is a mock implementation of payment.OpenInvoiceSource
type MockInvoiceSource struct {
	mock.Mock
}

func (m *MockInvoiceSource) GetOpenInvoices(ctx context.Context, clientRef string) ([]payment.OpenInvoiceRef, error) {
	args := m.Called(ctx, clientRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.OpenInvoiceRef), args.Error(1)
}

// MockNotificationSink is a mock implementation of payment.NotificationSink
type MockNotificationSink struct {
	mock.Mock
}

func (m *MockNotificationSink) NotifyFailure(ctx context.Context, p *payment.PaymentRecord, reason string) error {
	args := m.Called(ctx, p, reason)
	return args.Error(0)
}

// MockIdempotencyStore is a mock implementation of shared.IdempotencyStore
type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
