package payment

import (
	"github.com/payably/backend/internal/domain/shared"
)

// Event types emitted by the payment aggregates
const (
	EventTypePaymentCharged    = "payment.charged"
	EventTypePaymentSettled    = "payment.settled"
	EventTypePaymentFailed     = "payment.failed"
	EventTypePaymentReversed   = "payment.reversed"
	EventTypeLedgerWriteFailed = "payment.ledger_write_failed"
	EventTypeScheduleCompleted = "schedule.completed"
)

const aggregateTypePayment = "PaymentRecord"

// PaymentChargedEvent is emitted when a gateway charge succeeds
type PaymentChargedEvent struct {
	shared.BaseDomainEvent
	TransactionID string        `json:"transaction_id"`
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	TotalCents    int64         `json:"total_cents"`
}

// NewPaymentChargedEvent creates a charged event from the record
func NewPaymentChargedEvent(p *PaymentRecord) *PaymentChargedEvent {
	return &PaymentChargedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentCharged, aggregateTypePayment, p.ID),
		TransactionID:   p.TransactionID,
		Method:          p.Method,
		Status:          p.Status,
		TotalCents:      p.TotalAmount.Cents(),
	}
}

// PaymentSettledEvent is emitted when an ACH payment clears
type PaymentSettledEvent struct {
	shared.BaseDomainEvent
	TransactionID string `json:"transaction_id"`
}

// NewPaymentSettledEvent creates a settled event from the record
func NewPaymentSettledEvent(p *PaymentRecord) *PaymentSettledEvent {
	return &PaymentSettledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentSettled, aggregateTypePayment, p.ID),
		TransactionID:   p.TransactionID,
	}
}

// PaymentFailedEvent is emitted on a terminal charge failure or ACH return
type PaymentFailedEvent struct {
	shared.BaseDomainEvent
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
	AttemptCount  int    `json:"attempt_count"`
}

// NewPaymentFailedEvent creates a failed event from the record
func NewPaymentFailedEvent(p *PaymentRecord, reason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentFailed, aggregateTypePayment, p.ID),
		TransactionID:   p.TransactionID,
		Reason:          reason,
		AttemptCount:    p.AttemptCount,
	}
}

// PaymentReversedEvent is emitted when a completed payment is voided or refunded
type PaymentReversedEvent struct {
	shared.BaseDomainEvent
	TransactionID string       `json:"transaction_id"`
	Reversal      PaymentEvent `json:"reversal"`
}

// NewPaymentReversedEvent creates a reversal event from the record
func NewPaymentReversedEvent(p *PaymentRecord, reversal PaymentEvent) *PaymentReversedEvent {
	return &PaymentReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentReversed, aggregateTypePayment, p.ID),
		TransactionID:   p.TransactionID,
		Reversal:        reversal,
	}
}

// LedgerWriteFailedEvent flags a settled payment whose external ledger mirror
// is missing and needs manual reconciliation
type LedgerWriteFailedEvent struct {
	shared.BaseDomainEvent
	TransactionID string `json:"transaction_id"`
	TotalCents    int64  `json:"total_cents"`
}

// NewLedgerWriteFailedEvent creates a ledger-write-failed event from the record
func NewLedgerWriteFailedEvent(p *PaymentRecord) *LedgerWriteFailedEvent {
	return &LedgerWriteFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLedgerWriteFailed, aggregateTypePayment, p.ID),
		TransactionID:   p.TransactionID,
		TotalCents:      p.TotalAmount.Cents(),
	}
}

// ScheduleCompletedEvent is emitted when a recurring schedule exhausts its
// occurrences or reaches its end date
type ScheduleCompletedEvent struct {
	shared.BaseDomainEvent
	OccurrencesCompleted int `json:"occurrences_completed"`
}

// NewScheduleCompletedEvent creates a completion event from the schedule
func NewScheduleCompletedEvent(s *RecurringSchedule) *ScheduleCompletedEvent {
	return &ScheduleCompletedEvent{
		BaseDomainEvent:      shared.NewBaseDomainEvent(EventTypeScheduleCompleted, "RecurringSchedule", s.ID),
		OccurrencesCompleted: s.OccurrencesCompleted,
	}
}
