package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/infrastructure/scheduler"
	"github.com/payably/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ScheduledPaymentProcessor settles due obligations in the background. It is
// both the scheduler's job executor and its obligation source: each poll
// cycle materializes pending records for due recurring schedules and feeds
// them, with any directly scheduled records, into the worker pool.
//
// Two workers racing on the same obligation are harmless: every attempt
// re-reads the record and aborts unless it is still pending, and the gateway
// rejects a duplicate idempotency token as a second line of defense.
type ScheduledPaymentProcessor struct {
	payments  payment.PaymentRecordRepository
	schedules payment.RecurringScheduleRepository
	service   *PaymentService
	feeCalc   *payment.FeeCalculator
	logger    *zap.Logger
}

// NewScheduledPaymentProcessor creates a new processor
func NewScheduledPaymentProcessor(
	payments payment.PaymentRecordRepository,
	schedules payment.RecurringScheduleRepository,
	service *PaymentService,
	feeCalc *payment.FeeCalculator,
	logger *zap.Logger,
) *ScheduledPaymentProcessor {
	return &ScheduledPaymentProcessor{
		payments:  payments,
		schedules: schedules,
		service:   service,
		feeCalc:   feeCalc,
		logger:    logger,
	}
}

var _ scheduler.JobExecutor = (*ScheduledPaymentProcessor)(nil)
var _ scheduler.ObligationSource = (*ScheduledPaymentProcessor)(nil)

// Execute runs one settlement attempt for the job's payment record.
// Structural failures (no method on file, unknown record owner) terminate
// immediately without consuming the retry budget; transient gateway failures
// ride the scheduler's backoff until the budget runs out.
func (p *ScheduledPaymentProcessor) Execute(ctx context.Context, job *scheduler.Job) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "scheduled_payment", "execute")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, job.PaymentID.String(),
		"attempt", job.Attempt+1,
		"max_attempts", job.MaxAttempts,
	)

	record, err := p.payments.FindByID(ctx, job.PaymentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("payment %s not found: %w", job.PaymentID, scheduler.ErrNoRetry)
		}
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to load payment: %w", err)
	}

	// Re-read guard: a concurrent worker or an earlier attempt may already
	// have resolved this obligation
	if !record.Status.CanCharge() {
		p.logger.Debug("obligation no longer pending, skipping",
			zap.String("payment_id", record.ID.String()),
			zap.String("status", string(record.Status)),
		)
		return nil
	}

	token, structuralErr := p.methodTokenFor(ctx, record)
	if structuralErr != nil {
		telemetry.RecordError(span, structuralErr)
		if err := p.finishTerminally(ctx, record, structuralErr.Error()); err != nil {
			return err
		}
		return fmt.Errorf("%s: %w", structuralErr.Error(), scheduler.ErrNoRetry)
	}

	result, err := p.service.settlePending(ctx, record, token, false)
	if err != nil {
		telemetry.RecordError(span, err)

		if payment.IsStructural(err) {
			if finishErr := p.finishTerminally(ctx, record, err.Error()); finishErr != nil {
				return finishErr
			}
			return fmt.Errorf("%s: %w", err.Error(), scheduler.ErrNoRetry)
		}

		if job.IsFinalAttempt() {
			reason := fmt.Sprintf("%s (after %d attempts)", err.Error(), record.AttemptCount)
			if finishErr := p.finishTerminally(ctx, record, reason); finishErr != nil {
				return finishErr
			}
		}
		return err
	}

	if result.Charged && record.ScheduleID != nil {
		p.recordScheduleSuccess(ctx, *record.ScheduleID)
	}
	return nil
}

// methodTokenFor resolves the vaulted payment method for a scheduled record.
// A missing method is a structural failure: retrying cannot conjure one up.
func (p *ScheduledPaymentProcessor) methodTokenFor(ctx context.Context, record *payment.PaymentRecord) (string, error) {
	if record.ScheduleID == nil {
		return "", payment.NewStructuralError("NO_PAYMENT_METHOD", "no payment method on file for scheduled payment")
	}
	schedule, err := p.schedules.FindByID(ctx, *record.ScheduleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", payment.NewStructuralError("SCHEDULE_NOT_FOUND", "owning schedule no longer exists")
		}
		return "", err
	}
	if schedule.MethodToken == "" {
		return "", payment.NewStructuralError("NO_PAYMENT_METHOD", "schedule has no payment method on file")
	}
	return schedule.MethodToken, nil
}

// finishTerminally records the terminal failure on the payment, notifies the
// sink and counts the failure on the owning schedule. The schedule's due date
// does not advance: the obligation stays visible for operator follow-up.
func (p *ScheduledPaymentProcessor) finishTerminally(ctx context.Context, record *payment.PaymentRecord, reason string) error {
	if err := p.service.failTerminally(ctx, record, reason, true); err != nil {
		return err
	}

	if record.ScheduleID != nil {
		schedule, err := p.schedules.FindByID(ctx, *record.ScheduleID)
		if err != nil {
			p.logger.Warn("failed to load schedule for failure accounting",
				zap.String("schedule_id", record.ScheduleID.String()), zap.Error(err))
			return nil
		}
		if err := schedule.RecordFailure(); err != nil {
			p.logger.Warn("failed to count schedule failure",
				zap.String("schedule_id", schedule.ID.String()), zap.Error(err))
			return nil
		}
		if err := p.schedules.SaveWithLock(ctx, schedule); err != nil {
			p.logger.Warn("failed to save schedule failure count",
				zap.String("schedule_id", schedule.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// recordScheduleSuccess consumes the occurrence that just settled
func (p *ScheduledPaymentProcessor) recordScheduleSuccess(ctx context.Context, scheduleID uuid.UUID) {
	schedule, err := p.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		p.logger.Error("failed to load schedule after settlement",
			zap.String("schedule_id", scheduleID.String()), zap.Error(err))
		return
	}
	if err := schedule.RecordSuccess(); err != nil {
		p.logger.Error("failed to advance schedule",
			zap.String("schedule_id", scheduleID.String()), zap.Error(err))
		return
	}
	if err := p.schedules.SaveWithLock(ctx, schedule); err != nil {
		p.logger.Error("failed to save advanced schedule",
			zap.String("schedule_id", scheduleID.String()), zap.Error(err))
	}
}

// CollectDue gathers the settlement work for one poll cycle: directly
// scheduled pending records plus freshly materialized records for recurring
// schedules whose due date has arrived.
func (p *ScheduledPaymentProcessor) CollectDue(ctx context.Context, asOf time.Time, limit int) ([]uuid.UUID, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "scheduled_payment", "collect_due")
	defer span.End()

	due, err := p.payments.FindDue(ctx, asOf, limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to scan due payments: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(due))
	for _, record := range due {
		ids = append(ids, record.ID)
	}

	if len(ids) >= limit {
		return ids, nil
	}

	schedules, err := p.schedules.FindDue(ctx, asOf, limit-len(ids))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to scan due schedules: %w", err)
	}

	for i := range schedules {
		id, err := p.materializeOccurrence(ctx, &schedules[i])
		if err != nil {
			p.logger.Error("failed to materialize scheduled payment",
				zap.String("schedule_id", schedules[i].ID.String()), zap.Error(err))
			continue
		}
		if id != uuid.Nil {
			ids = append(ids, id)
		}
	}

	telemetry.SetAttribute(span, "due_count", len(ids))
	return ids, nil
}

// materializeOccurrence creates the pending record for a schedule's current
// due date. The transaction id is derived from the schedule and the due date,
// so a crashed or repeated poll cycle lands on the same record instead of
// creating a double charge.
func (p *ScheduledPaymentProcessor) materializeOccurrence(ctx context.Context, schedule *payment.RecurringSchedule) (uuid.UUID, error) {
	if schedule.NextDueDate == nil {
		return uuid.Nil, nil
	}

	transactionID := fmt.Sprintf("sch-%s-%s", schedule.ID, schedule.NextDueDate.Format("2006-01-02"))

	existing, err := p.payments.FindByTransactionID(ctx, transactionID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return uuid.Nil, err
	}
	if existing != nil {
		if existing.Status.CanCharge() {
			return existing.ID, nil
		}
		// this occurrence already resolved; nothing to enqueue
		return uuid.Nil, nil
	}

	fees, err := p.feeCalc.Forward(schedule.BaseAmount, schedule.Method)
	if err != nil {
		return uuid.Nil, err
	}

	record, err := schedule.NewPaymentForOccurrence(transactionID, fees)
	if err != nil {
		return uuid.Nil, err
	}

	plan, err := p.service.buildAllocationPlan(ctx, schedule.ClientRef, fees.Base, nil, false)
	if err != nil {
		return uuid.Nil, err
	}
	if err := record.ApplyAllocationPlan(plan); err != nil {
		return uuid.Nil, err
	}

	number, err := p.payments.GeneratePaymentNumber(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	record.RecordNumber = number

	if err := p.payments.Save(ctx, record); err != nil {
		return uuid.Nil, err
	}

	p.logger.Info("materialized scheduled payment",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("payment_id", record.ID.String()),
		zap.String("transaction_id", transactionID),
	)
	return record.ID, nil
}
