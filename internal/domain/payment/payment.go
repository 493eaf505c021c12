package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/domain/shared/valueobject"
)

// PaymentMethod identifies how a payment settles
type PaymentMethod string

const (
	MethodCard PaymentMethod = "card" // settles synchronously
	MethodACH  PaymentMethod = "ach"  // settles asynchronously over 2-3 days
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	return m == MethodCard || m == MethodACH
}

// PaymentStatus represents the lifecycle state of a payment record
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusCompleted  PaymentStatus = "completed"
	StatusFailed     PaymentStatus = "failed"
	StatusRefunded   PaymentStatus = "refunded"
	StatusReturned   PaymentStatus = "returned"
	StatusVoided     PaymentStatus = "voided"
	StatusSkipped    PaymentStatus = "skipped"
)

// IsValid checks if the status is a valid payment status
func (s PaymentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed,
		StatusRefunded, StatusReturned, StatusVoided, StatusSkipped:
		return true
	}
	return false
}

// IsTerminal returns true when no further settlement activity is possible.
// processing is non-terminal: the external settlement event resolves it.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusFailed, StatusRefunded, StatusReturned, StatusVoided, StatusSkipped:
		return true
	}
	return false
}

// CanCharge returns true when a gateway charge may still be attempted
// under this record's transaction id
func (s PaymentStatus) CanCharge() bool {
	return s == StatusPending
}

// LedgerWriteStatus tracks the external-ledger mirror independently of the
// settlement status, because a charge and its ledger write are not atomic
type LedgerWriteStatus string

const (
	LedgerWriteNotAttempted LedgerWriteStatus = "not_attempted"
	LedgerWriteSucceeded    LedgerWriteStatus = "succeeded"
	LedgerWriteFailed       LedgerWriteStatus = "failed"
)

// PaymentEvent is an input to the payment state machine
type PaymentEvent string

const (
	EventChargeSucceeded     PaymentEvent = "charge_succeeded"
	EventChargeFailed        PaymentEvent = "charge_failed"
	EventSettlementConfirmed PaymentEvent = "settlement_confirmed"
	EventReturned            PaymentEvent = "returned"
	EventVoided              PaymentEvent = "voided"
	EventRefunded            PaymentEvent = "refunded"
	EventSkipped             PaymentEvent = "skipped"
)

// Transition is the pure payment state machine. It maps the current status
// and an event to the next status without touching any datastore. A charge
// success lands in completed for card and processing for ACH, since ACH
// acceptance only means "queued for settlement".
func Transition(current PaymentStatus, event PaymentEvent, method PaymentMethod) (PaymentStatus, error) {
	switch event {
	case EventChargeSucceeded:
		if current != StatusPending {
			return current, transitionError(current, event)
		}
		if method == MethodACH {
			return StatusProcessing, nil
		}
		return StatusCompleted, nil
	case EventChargeFailed:
		if current != StatusPending {
			return current, transitionError(current, event)
		}
		return StatusFailed, nil
	case EventSettlementConfirmed:
		if current != StatusProcessing {
			return current, transitionError(current, event)
		}
		return StatusCompleted, nil
	case EventReturned:
		if current != StatusProcessing {
			return current, transitionError(current, event)
		}
		return StatusReturned, nil
	case EventVoided:
		// voids are accepted pre-settlement too: an accepted ACH charge can
		// still be cancelled before it clears
		if current != StatusCompleted && current != StatusProcessing {
			return current, transitionError(current, event)
		}
		return StatusVoided, nil
	case EventRefunded:
		if current != StatusCompleted {
			return current, transitionError(current, event)
		}
		return StatusRefunded, nil
	case EventSkipped:
		if current != StatusPending {
			return current, transitionError(current, event)
		}
		return StatusSkipped, nil
	default:
		return current, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("unknown payment event: %s", event))
	}
}

func transitionError(current PaymentStatus, event PaymentEvent) error {
	return shared.NewDomainError("INVALID_STATE",
		fmt.Sprintf("event %s is not allowed in status %s", event, current))
}

// PaymentRecord is the unit of settlement. Records are append-only audit
// history: reversals change the status of the same record, never its amounts,
// and records are never deleted.
type PaymentRecord struct {
	shared.BaseAggregateRoot
	RecordNumber  string
	TransactionID string // client-generated idempotency key, assigned once
	ClientRef     string
	ScheduleID    *uuid.UUID
	Method        PaymentMethod
	Status        PaymentStatus

	BaseAmount  valueobject.Money
	Fee         valueobject.Money
	TotalAmount valueobject.Money

	Allocations     Allocations
	UnappliedAmount valueobject.Money // remainder kept as standing credit
	CreditOnly      bool              // caller asked for no invoice application

	VendorTransactionID *string
	LedgerWriteStatus   LedgerWriteStatus
	LedgerEntryID       *string

	FailureReason *string
	AttemptCount  int
	ScheduledFor  *time.Time
}

// NewPaymentRecord creates a pending payment record. total is derived, never
// supplied: total = base + fee. ACH records must carry a zero fee.
func NewPaymentRecord(transactionID, clientRef string, method PaymentMethod, base, fee valueobject.Money, scheduledFor *time.Time) (*PaymentRecord, error) {
	if transactionID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "transaction id is required")
	}
	if clientRef == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "client reference is required")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid payment method: %s", method))
	}
	if !base.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "base amount must be positive")
	}
	if fee.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "fee cannot be negative")
	}
	if method == MethodACH && !fee.IsZero() {
		return nil, shared.NewDomainError("INVALID_INPUT", "ach payments do not carry a fee")
	}

	total, err := base.Add(fee)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	p := &PaymentRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TransactionID:     transactionID,
		ClientRef:         clientRef,
		Method:            method,
		Status:            StatusPending,
		BaseAmount:        base,
		Fee:               fee,
		TotalAmount:       total,
		Allocations:       Allocations{},
		UnappliedAmount:   valueobject.Zero(base.Currency()),
		LedgerWriteStatus: LedgerWriteNotAttempted,
		ScheduledFor:      scheduledFor,
	}
	return p, nil
}

// AttachSchedule links the record to the recurring schedule that produced it
func (p *PaymentRecord) AttachSchedule(scheduleID uuid.UUID) {
	p.ScheduleID = &scheduleID
}

// ApplyAllocationPlan records the waterfall result on the record. Only valid
// before the charge is attempted.
func (p *PaymentRecord) ApplyAllocationPlan(plan AllocationResult) error {
	if !p.Status.CanCharge() {
		return shared.NewDomainError("INVALID_STATE", "allocations can only be set on a pending payment")
	}
	allocated := plan.AllocatedTotal()
	lte, err := allocated.LessThanOrEqual(p.BaseAmount)
	if err != nil {
		return shared.NewDomainError("INVALID_INPUT", err.Error())
	}
	if !lte {
		return shared.NewDomainError("INVALID_INPUT", "allocated amount exceeds base amount")
	}
	p.Allocations = plan.Allocations
	p.UnappliedAmount = plan.Remaining
	p.CreditOnly = plan.CreditOnly
	p.Touch()
	return nil
}

// RecordAttempt counts a settlement attempt against the record. The version
// bump makes the attempt persistable through SaveWithLock like every other
// mutation, so callers can claim the attempt before charging.
func (p *PaymentRecord) RecordAttempt() {
	p.AttemptCount++
	p.Touch()
	p.IncrementVersion()
}

// MarkChargeSucceeded applies a successful gateway charge. Card charges are
// final; ACH charges are accepted for processing only.
func (p *PaymentRecord) MarkChargeSucceeded(vendorTransactionID string) error {
	next, err := Transition(p.Status, EventChargeSucceeded, p.Method)
	if err != nil {
		return err
	}
	p.Status = next
	p.VendorTransactionID = &vendorTransactionID
	p.FailureReason = nil
	p.Touch()
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentChargedEvent(p))
	return nil
}

// MarkChargeFailed records a terminal charge failure with a human-readable reason
func (p *PaymentRecord) MarkChargeFailed(reason string) error {
	next, err := Transition(p.Status, EventChargeFailed, p.Method)
	if err != nil {
		return err
	}
	p.Status = next
	p.FailureReason = &reason
	p.Touch()
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentFailedEvent(p, reason))
	return nil
}

// ConfirmSettlement resolves an ACH payment that has cleared
func (p *PaymentRecord) ConfirmSettlement() error {
	next, err := Transition(p.Status, EventSettlementConfirmed, p.Method)
	if err != nil {
		return err
	}
	p.Status = next
	p.Touch()
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentSettledEvent(p))
	return nil
}

// MarkReturned resolves an ACH payment that bounced after acceptance
func (p *PaymentRecord) MarkReturned(reason string) error {
	next, err := Transition(p.Status, EventReturned, p.Method)
	if err != nil {
		return err
	}
	p.Status = next
	p.FailureReason = &reason
	p.Touch()
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentFailedEvent(p, reason))
	return nil
}

// Void reverses a completed payment pre-settlement. The charged amounts are
// immutable audit history; only the status changes.
func (p *PaymentRecord) Void() error {
	next, err := Transition(p.Status, EventVoided, p.Method)
	if err != nil {
		return err
	}
	p.Status = next
	p.Touch()
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentReversedEvent(p, EventVoided))
	return nil
}

// Refund reverses a completed payment post-settlement
func (p *PaymentRecord) Refund() error {
	next, err := Transition(p.Status, EventRefunded, p.Method)
	if err != nil {
		return err
	}
	p.Status = next
	p.Touch()
	p.IncrementVersion()
	p.AddDomainEvent(NewPaymentReversedEvent(p, EventRefunded))
	return nil
}

// Skip marks a pending obligation as intentionally not charged this cycle
func (p *PaymentRecord) Skip() error {
	next, err := Transition(p.Status, EventSkipped, p.Method)
	if err != nil {
		return err
	}
	p.Status = next
	p.Touch()
	p.IncrementVersion()
	return nil
}

// MarkLedgerWriteSucceeded records the external ledger entry backing this payment
func (p *PaymentRecord) MarkLedgerWriteSucceeded(entryID string) {
	p.LedgerWriteStatus = LedgerWriteSucceeded
	p.LedgerEntryID = &entryID
	p.Touch()
	p.IncrementVersion()
}

// MarkLedgerWriteFailed flags the record for manual reconciliation. The charge
// itself is never undone here: money has already moved.
func (p *PaymentRecord) MarkLedgerWriteFailed() {
	p.LedgerWriteStatus = LedgerWriteFailed
	p.Touch()
	p.IncrementVersion()
	p.AddDomainEvent(NewLedgerWriteFailedEvent(p))
}

// NeedsReconciliation reports whether the payment settled but its ledger
// mirror is missing
func (p *PaymentRecord) NeedsReconciliation() bool {
	return p.Status == StatusCompleted && p.LedgerWriteStatus == LedgerWriteFailed
}
