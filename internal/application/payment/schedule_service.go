package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/domain/shared/valueobject"
	"github.com/payably/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ScheduleService manages recurring payment schedules
type ScheduleService struct {
	schedules payment.RecurringScheduleRepository
	logger    *zap.Logger
}

// NewScheduleService creates a new ScheduleService
func NewScheduleService(schedules payment.RecurringScheduleRepository, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{schedules: schedules, logger: logger}
}

// CreateScheduleRequest describes a new recurring schedule
type CreateScheduleRequest struct {
	ClientRef      string
	Method         payment.PaymentMethod
	MethodToken    string
	BaseAmount     valueobject.Money
	Frequency      payment.Frequency
	FirstDueDate   time.Time
	MaxOccurrences int
	EndDate        *time.Time
}

// CreateSchedule creates a recurring schedule
func (s *ScheduleService) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*payment.RecurringSchedule, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "schedule", "create")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrClientRef, req.ClientRef,
		telemetry.SpanAttrMethod, string(req.Method),
		"frequency", string(req.Frequency),
	)

	schedule, err := payment.NewRecurringSchedule(
		req.ClientRef, req.Method, req.MethodToken, req.BaseAmount,
		req.Frequency, req.FirstDueDate, req.MaxOccurrences, req.EndDate,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := s.schedules.Save(ctx, schedule); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("schedule created",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("client_ref", schedule.ClientRef),
		zap.String("frequency", string(schedule.Frequency)),
	)
	return schedule, nil
}

// GetSchedule loads one schedule
func (s *ScheduleService) GetSchedule(ctx context.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
	return s.schedules.FindByID(ctx, id)
}

// ListSchedules returns schedules matching the filter
func (s *ScheduleService) ListSchedules(ctx context.Context, filter shared.Filter) ([]payment.RecurringSchedule, int64, error) {
	items, err := s.schedules.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.schedules.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// mutate loads a schedule, applies fn and saves it under optimistic locking
func (s *ScheduleService) mutate(ctx context.Context, id uuid.UUID, operation string, fn func(*payment.RecurringSchedule) error) (*payment.RecurringSchedule, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "schedule", operation)
	defer span.End()

	telemetry.SetAttribute(span, telemetry.SpanAttrScheduleID, id.String())

	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := fn(schedule); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.schedules.SaveWithLock(ctx, schedule); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return schedule, nil
}

// PauseSchedule suspends charging without losing the schedule position
func (s *ScheduleService) PauseSchedule(ctx context.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
	return s.mutate(ctx, id, "pause", (*payment.RecurringSchedule).Pause)
}

// ResumeSchedule reactivates a paused schedule
func (s *ScheduleService) ResumeSchedule(ctx context.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
	return s.mutate(ctx, id, "resume", (*payment.RecurringSchedule).Resume)
}

// CancelSchedule terminates a schedule permanently
func (s *ScheduleService) CancelSchedule(ctx context.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
	return s.mutate(ctx, id, "cancel", (*payment.RecurringSchedule).Cancel)
}

// SkipOccurrence advances the schedule past its current due date without charging
func (s *ScheduleService) SkipOccurrence(ctx context.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
	return s.mutate(ctx, id, "skip", (*payment.RecurringSchedule).Skip)
}

// AdjustNextDate moves the next due date to a future date
func (s *ScheduleService) AdjustNextDate(ctx context.Context, id uuid.UUID, newDate time.Time) (*payment.RecurringSchedule, error) {
	return s.mutate(ctx, id, "adjust_next_date", func(schedule *payment.RecurringSchedule) error {
		return schedule.AdjustNextDate(newDate)
	})
}

// SetPaymentMethod attaches a vaulted payment method to the schedule
func (s *ScheduleService) SetPaymentMethod(ctx context.Context, id uuid.UUID, method payment.PaymentMethod, token string) (*payment.RecurringSchedule, error) {
	return s.mutate(ctx, id, "set_payment_method", func(schedule *payment.RecurringSchedule) error {
		return schedule.SetPaymentMethod(method, token)
	})
}
