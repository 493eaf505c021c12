package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReconciliationService surfaces settled payments whose external ledger
// mirror failed, and lets an operator re-drive the write. The backlog is the
// compensation side of the deliberately missing two-phase commit: the charge
// stands, the mirror is retried by hand.
type ReconciliationService struct {
	payments     payment.PaymentRecordRepository
	ledgerWriter payment.LedgerWriter
	logger       *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	payments payment.PaymentRecordRepository,
	ledgerWriter payment.LedgerWriter,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		payments:     payments,
		ledgerWriter: ledgerWriter,
		logger:       logger,
	}
}

// Backlog returns settled payments still waiting for their ledger mirror,
// oldest first
func (s *ReconciliationService) Backlog(ctx context.Context, filter shared.Filter) (shared.Paginated[payment.PaymentRecord], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "backlog")
	defer span.End()

	page, err := s.payments.FindReconciliationBacklog(ctx, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return shared.Paginated[payment.PaymentRecord]{}, err
	}
	telemetry.SetAttribute(span, "backlog_total", page.Total)
	return page, nil
}

// RetryLedgerWrite re-attempts the external mirror for one backlog record.
// This is an operator action, never automatic: the write already failed once
// and blind retries would just churn the external system.
func (s *ReconciliationService) RetryLedgerWrite(ctx context.Context, paymentID uuid.UUID) (*payment.PaymentRecord, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "retry_ledger_write")
	defer span.End()

	telemetry.SetAttribute(span, telemetry.SpanAttrPaymentID, paymentID.String())

	record, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if !record.NeedsReconciliation() {
		err := shared.NewDomainError("INVALID_STATE", "payment is not in the reconciliation backlog")
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := s.ledgerWriter.Write(ctx, record)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("manual ledger write failed",
			zap.String("payment_id", record.ID.String()),
			zap.String("transaction_id", record.TransactionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("ledger write failed: %w", err)
	}

	record.MarkLedgerWriteSucceeded(result.ExternalEntryID)
	if err := s.payments.SaveWithLock(ctx, record); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save reconciled payment: %w", err)
	}

	s.logger.Info("payment reconciled",
		zap.String("payment_id", record.ID.String()),
		zap.String("ledger_entry_id", result.ExternalEntryID),
	)
	return record, nil
}
