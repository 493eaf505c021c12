package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/domain/shared/valueobject"
	"github.com/payably/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PaymentService drives the one-shot settlement flow: fee computation,
// invoice allocation, the gateway charge and the external ledger mirror.
// The local record always commits before the ledger write is attempted: the
// charge is an irrevocable external side effect by then and must survive a
// crash mid-write.
type PaymentService struct {
	paymentRepo   payment.PaymentRecordRepository
	scheduleRepo  payment.RecurringScheduleRepository
	gateway       payment.SettlementGateway
	ledgerWriter  payment.LedgerWriter
	invoiceSource payment.OpenInvoiceSource
	notifier      payment.NotificationSink
	feeCalc       *payment.FeeCalculator
	idempotency   shared.IdempotencyStore
	idemCfg       shared.IdempotencyConfig
	chargeTimeout time.Duration
	logger        *zap.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	paymentRepo payment.PaymentRecordRepository,
	scheduleRepo payment.RecurringScheduleRepository,
	gateway payment.SettlementGateway,
	ledgerWriter payment.LedgerWriter,
	invoiceSource payment.OpenInvoiceSource,
	notifier payment.NotificationSink,
	feeCalc *payment.FeeCalculator,
	idempotency shared.IdempotencyStore,
	chargeTimeout time.Duration,
	logger *zap.Logger,
) *PaymentService {
	if chargeTimeout <= 0 {
		chargeTimeout = 30 * time.Second
	}
	return &PaymentService{
		paymentRepo:   paymentRepo,
		scheduleRepo:  scheduleRepo,
		gateway:       gateway,
		ledgerWriter:  ledgerWriter,
		invoiceSource: invoiceSource,
		notifier:      notifier,
		feeCalc:       feeCalc,
		idempotency:   idempotency,
		idemCfg:       shared.DefaultIdempotencyConfig(),
		chargeTimeout: chargeTimeout,
		logger:        logger,
	}
}

// PayNowRequest is a one-shot payment intent. The transaction id is the
// client-generated idempotency key; it is assigned once and never regenerated.
type PayNowRequest struct {
	TransactionID     string
	ClientRef         string
	Method            payment.PaymentMethod
	MethodToken       string
	Amount            valueobject.Money
	AmountIncludesFee bool
	InvoiceKeys       []string
	Unapplied         bool
}

// SettlementResult is the outcome of a settlement call
type SettlementResult struct {
	Payment *payment.PaymentRecord
	Charged bool // false when the idempotency guard short-circuited
}

// PayNow processes an interactive payment end to end. Submitting the same
// transaction id again returns the existing record without a second charge.
func (s *PaymentService) PayNow(ctx context.Context, req PayNowRequest) (*SettlementResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "pay_now")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrTransactionID, req.TransactionID,
		telemetry.SpanAttrClientRef, req.ClientRef,
		telemetry.SpanAttrMethod, string(req.Method),
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	if req.TransactionID == "" {
		err := shared.NewDomainError("INVALID_INPUT", "transaction id is required")
		telemetry.RecordError(span, err)
		return nil, err
	}

	// Fast duplicate-submission guard; the unique transaction_id column is
	// the durable second line of defense
	if s.idempotency != nil && s.idemCfg.Enabled {
		seen, err := s.idempotency.IsProcessed(ctx, req.TransactionID)
		if err != nil {
			s.logger.Warn("idempotency store unavailable, falling through to store check",
				zap.String("transaction_id", req.TransactionID), zap.Error(err))
		} else if seen {
			return s.existingResult(ctx, req.TransactionID)
		}
	}

	existing, err := s.paymentRepo.FindByTransactionID(ctx, req.TransactionID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to look up transaction: %w", err)
	}
	if existing != nil {
		if !existing.Status.CanCharge() {
			// settled, failed or reversed: a repeat submission is a no-op
			return &SettlementResult{Payment: existing, Charged: false}, nil
		}
		return s.settlePending(ctx, existing, req.MethodToken, true)
	}

	record, err := s.buildRecord(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.paymentRepo.Save(ctx, record); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save payment record: %w", err)
	}

	// Mark the key only once the record is durable: a request rejected during
	// validation must not poison its transaction id for a corrected retry
	if s.idempotency != nil && s.idemCfg.Enabled {
		if _, err := s.idempotency.MarkProcessed(ctx, req.TransactionID, s.idemCfg.TTL); err != nil {
			s.logger.Warn("failed to mark idempotency key",
				zap.String("transaction_id", req.TransactionID), zap.Error(err))
		}
	}

	return s.settlePending(ctx, record, req.MethodToken, true)
}

// existingResult resolves a duplicate submission to the record it refers to
func (s *PaymentService) existingResult(ctx context.Context, transactionID string) (*SettlementResult, error) {
	existing, err := s.paymentRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("duplicate transaction id %s: %w", transactionID, shared.ErrDuplicateTransaction)
	}
	return &SettlementResult{Payment: existing, Charged: false}, nil
}

// buildRecord computes fees and the allocation plan and assembles a pending record
func (s *PaymentService) buildRecord(ctx context.Context, req PayNowRequest) (*payment.PaymentRecord, error) {
	var fees payment.FeeBreakdown
	var err error
	if req.AmountIncludesFee {
		fees, err = s.feeCalc.Backward(req.Amount, req.Method)
	} else {
		fees, err = s.feeCalc.Forward(req.Amount, req.Method)
	}
	if err != nil {
		return nil, err
	}

	plan, err := s.buildAllocationPlan(ctx, req.ClientRef, fees.Base, req.InvoiceKeys, req.Unapplied)
	if err != nil {
		return nil, err
	}

	record, err := payment.NewPaymentRecord(req.TransactionID, req.ClientRef, req.Method, fees.Base, fees.Fee, nil)
	if err != nil {
		return nil, err
	}
	if err := record.ApplyAllocationPlan(plan); err != nil {
		return nil, err
	}

	number, err := s.paymentRepo.GeneratePaymentNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate payment number: %w", err)
	}
	record.RecordNumber = number
	return record, nil
}

// buildAllocationPlan snapshots the selected open invoices and runs the waterfall
func (s *PaymentService) buildAllocationPlan(ctx context.Context, clientRef string, base valueobject.Money, invoiceKeys []string, unapplied bool) (payment.AllocationResult, error) {
	if unapplied {
		return payment.AllocateUnapplied(base)
	}

	open, err := s.invoiceSource.GetOpenInvoices(ctx, clientRef)
	if err != nil {
		return payment.AllocationResult{}, fmt.Errorf("failed to read open invoices: %w", err)
	}

	selected := open
	if len(invoiceKeys) > 0 {
		keys := make(map[string]bool, len(invoiceKeys))
		for _, k := range invoiceKeys {
			keys[k] = true
		}
		selected = selected[:0:0]
		for _, inv := range open {
			if keys[inv.Key] {
				selected = append(selected, inv)
			}
		}
	}

	return payment.Allocate(base, selected)
}

// settlePending runs one gateway attempt against a pending record and, on
// success, mirrors the payment into the external ledger. When interactive is
// true any failure marks the record failed immediately; background retries
// instead leave the record pending so the next attempt can pick it up.
func (s *PaymentService) settlePending(ctx context.Context, record *payment.PaymentRecord, methodToken string, interactive bool) (*SettlementResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "settle")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, record.ID.String(),
		telemetry.SpanAttrTransactionID, record.TransactionID,
		telemetry.SpanAttrAmount, record.TotalAmount.String(),
	)

	// Idempotency guard: prove the record is still pending immediately before
	// charging. A concurrent or earlier attempt may already have settled it.
	if !record.Status.CanCharge() {
		return &SettlementResult{Payment: record, Charged: false}, nil
	}

	// Claim the attempt before charging: the persisted version bump fences
	// out a concurrent worker racing on the same record, and the attempt
	// count survives even when the charge itself fails
	record.RecordAttempt()
	if err := s.paymentRepo.SaveWithLock(ctx, record); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to claim settlement attempt: %w", err)
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()

	result, err := s.gateway.Charge(chargeCtx, payment.ChargeRequest{
		TransactionID: record.TransactionID,
		Amount:        record.TotalAmount,
		Method:        record.Method,
		MethodToken:   methodToken,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if interactive {
			if markErr := s.failTerminally(ctx, record, err.Error(), false); markErr != nil {
				s.logger.Error("failed to record charge failure",
					zap.String("payment_id", record.ID.String()), zap.Error(markErr))
			}
		}
		// background retries leave the record pending; the attempt count was
		// already persisted by the claim above
		return &SettlementResult{Payment: record, Charged: false}, err
	}

	if err := record.MarkChargeSucceeded(result.VendorTransactionID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	// Commit locally before touching the external ledger: the charge already
	// happened and must not be lost if the process dies mid-write
	if err := s.paymentRepo.SaveWithLock(ctx, record); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save settled payment: %w", err)
	}

	s.writeLedger(ctx, record)

	s.logger.Info("payment settled",
		zap.String("payment_id", record.ID.String()),
		zap.String("transaction_id", record.TransactionID),
		zap.String("status", string(record.Status)),
		zap.String("ledger_write_status", string(record.LedgerWriteStatus)),
	)

	return &SettlementResult{Payment: record, Charged: true}, nil
}

// writeLedger mirrors the settled payment into the external ledger. A failure
// here flags the record for reconciliation and nothing more: a successful
// charge is never undone because of a downstream ledger-write failure.
func (s *PaymentService) writeLedger(ctx context.Context, record *payment.PaymentRecord) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "ledger_write")
	defer span.End()

	result, err := s.ledgerWriter.Write(ctx, record)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("ledger write failed",
			zap.String("payment_id", record.ID.String()),
			zap.String("transaction_id", record.TransactionID),
			zap.String("amount", record.TotalAmount.String()),
			zap.Error(err),
		)
		record.MarkLedgerWriteFailed()
	} else {
		record.MarkLedgerWriteSucceeded(result.ExternalEntryID)
	}

	if err := s.paymentRepo.SaveWithLock(ctx, record); err != nil {
		s.logger.Error("failed to persist ledger write status",
			zap.String("payment_id", record.ID.String()), zap.Error(err))
	}
}

// failTerminally marks the record failed with a reason and, when notify is
// set, reports it to the notification sink. Sink errors are logged and
// swallowed: best-effort delivery must never affect payment state.
func (s *PaymentService) failTerminally(ctx context.Context, record *payment.PaymentRecord, reason string, notify bool) error {
	if err := record.MarkChargeFailed(reason); err != nil {
		return err
	}
	if err := s.paymentRepo.SaveWithLock(ctx, record); err != nil {
		return fmt.Errorf("failed to save failed payment: %w", err)
	}
	if notify && s.notifier != nil {
		if err := s.notifier.NotifyFailure(ctx, record, reason); err != nil {
			s.logger.Warn("failure notification not delivered",
				zap.String("payment_id", record.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// ApplySettlementEvent accepts the external collaborator's terminal update for
// an ACH payment in processing: confirmation or return.
func (s *PaymentService) ApplySettlementEvent(ctx context.Context, transactionID string, confirmed bool, reason string) (*payment.PaymentRecord, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "apply_settlement_event")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrTransactionID, transactionID,
		"confirmed", confirmed,
	)

	record, err := s.paymentRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if confirmed {
		err = record.ConfirmSettlement()
	} else {
		err = record.MarkReturned(reason)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.paymentRepo.SaveWithLock(ctx, record); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save settlement event: %w", err)
	}
	return record, nil
}

// VoidPayment cancels an accepted ACH payment before it settles
func (s *PaymentService) VoidPayment(ctx context.Context, paymentID uuid.UUID) (*payment.PaymentRecord, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "void")
	defer span.End()

	record, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if record.Method != payment.MethodACH {
		err := shared.NewDomainError("INVALID_STATE", "void is only valid for ach payments before settlement")
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.reverse(ctx, record, payment.EventVoided); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return record, nil
}

// RefundPayment reverses a settled card payment
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID uuid.UUID) (*payment.PaymentRecord, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "refund")
	defer span.End()

	record, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if record.Method != payment.MethodCard {
		err := shared.NewDomainError("INVALID_STATE", "refund is only valid for settled card payments")
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.reverse(ctx, record, payment.EventRefunded); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return record, nil
}

// reverse calls the gateway reversal path and applies the matching transition
// on the same record; amounts never change
func (s *PaymentService) reverse(ctx context.Context, record *payment.PaymentRecord, event payment.PaymentEvent) error {
	if record.VendorTransactionID == nil {
		return shared.NewDomainError("INVALID_STATE", "payment has no gateway reference to reverse")
	}

	req := payment.ReversalRequest{
		TransactionID:       record.TransactionID,
		VendorTransactionID: *record.VendorTransactionID,
		Amount:              record.TotalAmount,
		Method:              record.Method,
	}

	reverseCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()

	var err error
	switch event {
	case payment.EventVoided:
		_, err = s.gateway.Void(reverseCtx, req)
	case payment.EventRefunded:
		_, err = s.gateway.Refund(reverseCtx, req)
	default:
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("unsupported reversal event: %s", event))
	}
	if err != nil {
		return fmt.Errorf("gateway reversal failed: %w", err)
	}

	switch event {
	case payment.EventVoided:
		err = record.Void()
	case payment.EventRefunded:
		err = record.Refund()
	}
	if err != nil {
		return err
	}

	if err := s.paymentRepo.SaveWithLock(ctx, record); err != nil {
		return fmt.Errorf("failed to save reversal: %w", err)
	}
	return nil
}

// GetPayment loads one payment record
func (s *PaymentService) GetPayment(ctx context.Context, paymentID uuid.UUID) (*payment.PaymentRecord, error) {
	return s.paymentRepo.FindByID(ctx, paymentID)
}

// GetPaymentByTransactionID loads one payment record by its idempotency key
func (s *PaymentService) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*payment.PaymentRecord, error) {
	return s.paymentRepo.FindByTransactionID(ctx, transactionID)
}

// ListPayments returns payment records matching the filter
func (s *PaymentService) ListPayments(ctx context.Context, filter shared.Filter) ([]payment.PaymentRecord, int64, error) {
	items, err := s.paymentRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.paymentRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
