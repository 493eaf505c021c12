package payment

import (
	"fmt"
	"time"

	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/domain/shared/valueobject"
)

// Frequency is the recurrence interval of a schedule
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// IsValid checks if the frequency is valid
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// ScheduleStatus represents the lifecycle state of a recurring schedule
type ScheduleStatus string

const (
	ScheduleActive        ScheduleStatus = "active"
	SchedulePaused        ScheduleStatus = "paused"
	ScheduleCancelled     ScheduleStatus = "cancelled"
	ScheduleCompleted     ScheduleStatus = "completed"
	SchedulePendingMethod ScheduleStatus = "pending_method"
)

// IsValid checks if the status is a valid schedule status
func (s ScheduleStatus) IsValid() bool {
	switch s {
	case ScheduleActive, SchedulePaused, ScheduleCancelled, ScheduleCompleted, SchedulePendingMethod:
		return true
	}
	return false
}

// IsTerminal returns true when the schedule will never produce another payment
func (s ScheduleStatus) IsTerminal() bool {
	return s == ScheduleCancelled || s == ScheduleCompleted
}

// NextDate computes the due date that follows from for the given frequency.
// Month-based frequencies clamp to the last day of a shorter target month
// (Jan 31 + 1 month = Feb 28/29), so a schedule anchored late in the month
// never drifts into the following month.
func NextDate(from time.Time, frequency Frequency) (time.Time, error) {
	switch frequency {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7), nil
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14), nil
	case FrequencyMonthly:
		return addMonthsClamped(from, 1), nil
	case FrequencyQuarterly:
		return addMonthsClamped(from, 3), nil
	case FrequencyYearly:
		return addMonthsClamped(from, 12), nil
	default:
		return time.Time{}, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid frequency: %s", frequency))
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	shifted := first.AddDate(0, months, 0)
	last := daysInMonth(shifted.Year(), shifted.Month())
	if day > last {
		day = last
	}
	return time.Date(shifted.Year(), shifted.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RecurringSchedule owns the payment records it produces over time.
// Invariant: NextDueDate is nil iff the status is completed or cancelled.
type RecurringSchedule struct {
	shared.BaseAggregateRoot
	ClientRef   string
	Method      PaymentMethod
	MethodToken string
	BaseAmount  valueobject.Money
	Frequency   Frequency
	Status      ScheduleStatus

	NextDueDate          *time.Time
	OccurrencesCompleted int
	MaxOccurrences       int // 0 means unlimited
	EndDate              *time.Time
	FailureCount         int
}

// NewRecurringSchedule creates a schedule starting at firstDueDate. A schedule
// created without a payment method on file waits in pending_method until one
// is attached.
func NewRecurringSchedule(clientRef string, method PaymentMethod, methodToken string, baseAmount valueobject.Money, frequency Frequency, firstDueDate time.Time, maxOccurrences int, endDate *time.Time) (*RecurringSchedule, error) {
	if clientRef == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "client reference is required")
	}
	if method != "" && !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid payment method: %s", method))
	}
	if !baseAmount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_INPUT", "base amount must be positive")
	}
	if !frequency.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid frequency: %s", frequency))
	}
	if maxOccurrences < 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "max occurrences cannot be negative")
	}
	if endDate != nil && !firstDueDate.Before(*endDate) {
		return nil, shared.NewDomainError("INVALID_INPUT", "first due date must fall before the end date")
	}

	status := ScheduleActive
	if method == "" || methodToken == "" {
		status = SchedulePendingMethod
	}

	due := firstDueDate
	return &RecurringSchedule{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ClientRef:         clientRef,
		Method:            method,
		MethodToken:       methodToken,
		BaseAmount:        baseAmount,
		Frequency:         frequency,
		Status:            status,
		NextDueDate:       &due,
		MaxOccurrences:    maxOccurrences,
		EndDate:           endDate,
	}, nil
}

// IsDue reports whether the schedule should produce a payment as of asOf
func (s *RecurringSchedule) IsDue(asOf time.Time) bool {
	return s.Status == ScheduleActive && s.NextDueDate != nil && !s.NextDueDate.After(asOf)
}

// nextAfterOccurrence computes the due date following the occurrence that was
// just consumed, or nil when the schedule has run its course: the occurrence
// budget is spent, or the next candidate would land at/after the end date.
func (s *RecurringSchedule) nextAfterOccurrence() (*time.Time, error) {
	if s.MaxOccurrences > 0 && s.OccurrencesCompleted >= s.MaxOccurrences {
		return nil, nil
	}
	if s.NextDueDate == nil {
		return nil, shared.NewDomainError("INVALID_STATE", "schedule has no due date to advance from")
	}
	next, err := NextDate(*s.NextDueDate, s.Frequency)
	if err != nil {
		return nil, err
	}
	if s.EndDate != nil && !next.Before(*s.EndDate) {
		return nil, nil
	}
	return &next, nil
}

// advance moves the schedule past one consumed occurrence, completing it when
// no further date exists
func (s *RecurringSchedule) advance() error {
	next, err := s.nextAfterOccurrence()
	if err != nil {
		return err
	}
	if next == nil {
		s.Status = ScheduleCompleted
		s.NextDueDate = nil
		s.AddDomainEvent(NewScheduleCompletedEvent(s))
	} else {
		s.NextDueDate = next
	}
	return nil
}

// RecordSuccess consumes one occurrence after a successful payment: the
// failure streak resets and the due date advances, or the schedule completes
func (s *RecurringSchedule) RecordSuccess() error {
	if s.Status != ScheduleActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot record success on a %s schedule", s.Status))
	}
	s.OccurrencesCompleted++
	s.FailureCount = 0
	if err := s.advance(); err != nil {
		return err
	}
	s.Touch()
	s.IncrementVersion()
	return nil
}

// RecordFailure counts a failed attempt. The due date does not move: the next
// scheduler pass retries the same obligation rather than skipping it forward.
func (s *RecurringSchedule) RecordFailure() error {
	if s.Status != ScheduleActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot record failure on a %s schedule", s.Status))
	}
	s.FailureCount++
	s.Touch()
	s.IncrementVersion()
	return nil
}

// Skip advances the due date without charging. A skip still consumes one of
// the plan's occurrence slots.
func (s *RecurringSchedule) Skip() error {
	if s.Status != ScheduleActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot skip a %s schedule", s.Status))
	}
	s.OccurrencesCompleted++
	if err := s.advance(); err != nil {
		return err
	}
	s.Touch()
	s.IncrementVersion()
	return nil
}

// AdjustNextDate moves the next due date to a future date chosen by the operator
func (s *RecurringSchedule) AdjustNextDate(newDate time.Time) error {
	if s.Status != ScheduleActive && s.Status != SchedulePaused {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot adjust a %s schedule", s.Status))
	}
	// Compare calendar dates on a common clock; Truncate works on absolute
	// time and would shift the day boundary for non-UTC inputs
	if !startOfDayUTC(newDate).After(startOfDayUTC(time.Now())) {
		return shared.NewDomainError("INVALID_INPUT", "new due date must be in the future")
	}
	if s.EndDate != nil && !newDate.Before(*s.EndDate) {
		return shared.NewDomainError("INVALID_INPUT", "new due date must fall before the end date")
	}
	s.NextDueDate = &newDate
	s.Touch()
	s.IncrementVersion()
	return nil
}

// startOfDayUTC maps an instant to the start of its UTC calendar day
func startOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SetPaymentMethod attaches a vaulted payment method token, activating a
// schedule that was waiting for one
func (s *RecurringSchedule) SetPaymentMethod(method PaymentMethod, token string) error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot update method on a %s schedule", s.Status))
	}
	if !method.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("invalid payment method: %s", method))
	}
	if token == "" {
		return shared.NewDomainError("INVALID_INPUT", "method token is required")
	}
	s.Method = method
	s.MethodToken = token
	if s.Status == SchedulePendingMethod {
		s.Status = ScheduleActive
	}
	s.Touch()
	s.IncrementVersion()
	return nil
}

// Pause suspends charging without losing the schedule position
func (s *RecurringSchedule) Pause() error {
	if s.Status != ScheduleActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot pause a %s schedule", s.Status))
	}
	s.Status = SchedulePaused
	s.Touch()
	s.IncrementVersion()
	return nil
}

// Resume reactivates a paused schedule
func (s *RecurringSchedule) Resume() error {
	if s.Status != SchedulePaused {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot resume a %s schedule", s.Status))
	}
	s.Status = ScheduleActive
	s.Touch()
	s.IncrementVersion()
	return nil
}

// Cancel terminates the schedule permanently
func (s *RecurringSchedule) Cancel() error {
	if s.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot cancel a %s schedule", s.Status))
	}
	s.Status = ScheduleCancelled
	s.NextDueDate = nil
	s.Touch()
	s.IncrementVersion()
	return nil
}

// NewPaymentForOccurrence materializes the due obligation as a pending payment
// record carrying the supplied idempotency key and fee breakdown
func (s *RecurringSchedule) NewPaymentForOccurrence(transactionID string, fees FeeBreakdown) (*PaymentRecord, error) {
	if s.Status != ScheduleActive {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("cannot create a payment from a %s schedule", s.Status))
	}
	if s.NextDueDate == nil {
		return nil, shared.NewDomainError("INVALID_STATE", "schedule has no due date")
	}
	due := *s.NextDueDate
	p, err := NewPaymentRecord(transactionID, s.ClientRef, s.Method, fees.Base, fees.Fee, &due)
	if err != nil {
		return nil, err
	}
	p.AttachSchedule(s.ID)
	return p, nil
}
