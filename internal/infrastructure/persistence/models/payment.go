package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared/valueobject"
)

// PaymentRecordModel is the persistence model for the PaymentRecord aggregate root.
// The transaction id carries a unique index: it is the durable idempotency
// guard against double submission.
type PaymentRecordModel struct {
	AggregateModel
	RecordNumber  string                    `gorm:"type:varchar(50);not null;uniqueIndex"`
	TransactionID string                    `gorm:"type:varchar(100);not null;uniqueIndex"`
	ClientRef     string                    `gorm:"type:varchar(100);not null;index"`
	ScheduleID    *uuid.UUID                `gorm:"type:uuid;index"`
	Method        payment.PaymentMethod     `gorm:"type:varchar(10);not null"`
	Status        payment.PaymentStatus     `gorm:"type:varchar(20);not null;index"`
	BaseAmount    valueobject.Money         `gorm:"type:decimal(18,4);not null"`
	Fee           valueobject.Money         `gorm:"type:decimal(18,4);not null"`
	TotalAmount   valueobject.Money         `gorm:"type:decimal(18,4);not null"`
	Allocations   payment.Allocations       `gorm:"type:jsonb;default:'[]'"`
	Unapplied     valueobject.Money         `gorm:"type:decimal(18,4);not null"`
	CreditOnly    bool                      `gorm:"not null;default:false"`
	VendorTxnID   *string                   `gorm:"type:varchar(100)"`
	LedgerStatus  payment.LedgerWriteStatus `gorm:"type:varchar(20);not null;default:'not_attempted';index"`
	LedgerEntryID *string                   `gorm:"type:varchar(100)"`
	FailureReason *string                   `gorm:"type:varchar(500)"`
	AttemptCount  int                       `gorm:"not null;default:0"`
	ScheduledFor  *time.Time                `gorm:"index"`
}

// TableName returns the table name for GORM
func (PaymentRecordModel) TableName() string {
	return "payment_records"
}

// ToDomain converts the persistence model to a domain PaymentRecord.
func (m *PaymentRecordModel) ToDomain() *payment.PaymentRecord {
	p := &payment.PaymentRecord{
		RecordNumber:        m.RecordNumber,
		TransactionID:       m.TransactionID,
		ClientRef:           m.ClientRef,
		ScheduleID:          m.ScheduleID,
		Method:              m.Method,
		Status:              m.Status,
		BaseAmount:          m.BaseAmount,
		Fee:                 m.Fee,
		TotalAmount:         m.TotalAmount,
		Allocations:         m.Allocations,
		UnappliedAmount:     m.Unapplied,
		CreditOnly:          m.CreditOnly,
		VendorTransactionID: m.VendorTxnID,
		LedgerWriteStatus:   m.LedgerStatus,
		LedgerEntryID:       m.LedgerEntryID,
		FailureReason:       m.FailureReason,
		AttemptCount:        m.AttemptCount,
		ScheduledFor:        m.ScheduledFor,
	}
	m.PopulateAggregateRoot(&p.BaseAggregateRoot)
	return p
}

// FromDomain populates the persistence model from a domain PaymentRecord.
func (m *PaymentRecordModel) FromDomain(p *payment.PaymentRecord) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.RecordNumber = p.RecordNumber
	m.TransactionID = p.TransactionID
	m.ClientRef = p.ClientRef
	m.ScheduleID = p.ScheduleID
	m.Method = p.Method
	m.Status = p.Status
	m.BaseAmount = p.BaseAmount
	m.Fee = p.Fee
	m.TotalAmount = p.TotalAmount
	m.Allocations = p.Allocations
	m.Unapplied = p.UnappliedAmount
	m.CreditOnly = p.CreditOnly
	m.VendorTxnID = p.VendorTransactionID
	m.LedgerStatus = p.LedgerWriteStatus
	m.LedgerEntryID = p.LedgerEntryID
	m.FailureReason = p.FailureReason
	m.AttemptCount = p.AttemptCount
	m.ScheduledFor = p.ScheduledFor
}

// PaymentRecordModelFromDomain creates a new persistence model from a domain PaymentRecord.
func PaymentRecordModelFromDomain(p *payment.PaymentRecord) *PaymentRecordModel {
	m := &PaymentRecordModel{}
	m.FromDomain(p)
	return m
}

// RecurringScheduleModel is the persistence model for the RecurringSchedule aggregate root.
type RecurringScheduleModel struct {
	AggregateModel
	ClientRef            string                 `gorm:"type:varchar(100);not null;index"`
	Method               payment.PaymentMethod  `gorm:"type:varchar(10);not null"`
	MethodToken          string                 `gorm:"type:varchar(100)"`
	BaseAmount           valueobject.Money      `gorm:"type:decimal(18,4);not null"`
	Frequency            payment.Frequency      `gorm:"type:varchar(20);not null"`
	Status               payment.ScheduleStatus `gorm:"type:varchar(20);not null;index"`
	NextDueDate          *time.Time             `gorm:"index"`
	OccurrencesCompleted int                    `gorm:"not null;default:0"`
	MaxOccurrences       int                    `gorm:"not null;default:0"`
	EndDate              *time.Time
	FailureCount         int `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (RecurringScheduleModel) TableName() string {
	return "recurring_schedules"
}

// ToDomain converts the persistence model to a domain RecurringSchedule.
func (m *RecurringScheduleModel) ToDomain() *payment.RecurringSchedule {
	s := &payment.RecurringSchedule{
		ClientRef:            m.ClientRef,
		Method:               m.Method,
		MethodToken:          m.MethodToken,
		BaseAmount:           m.BaseAmount,
		Frequency:            m.Frequency,
		Status:               m.Status,
		NextDueDate:          m.NextDueDate,
		OccurrencesCompleted: m.OccurrencesCompleted,
		MaxOccurrences:       m.MaxOccurrences,
		EndDate:              m.EndDate,
		FailureCount:         m.FailureCount,
	}
	m.PopulateAggregateRoot(&s.BaseAggregateRoot)
	return s
}

// FromDomain populates the persistence model from a domain RecurringSchedule.
func (m *RecurringScheduleModel) FromDomain(s *payment.RecurringSchedule) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.ClientRef = s.ClientRef
	m.Method = s.Method
	m.MethodToken = s.MethodToken
	m.BaseAmount = s.BaseAmount
	m.Frequency = s.Frequency
	m.Status = s.Status
	m.NextDueDate = s.NextDueDate
	m.OccurrencesCompleted = s.OccurrencesCompleted
	m.MaxOccurrences = s.MaxOccurrences
	m.EndDate = s.EndDate
	m.FailureCount = s.FailureCount
}

// RecurringScheduleModelFromDomain creates a new persistence model from a domain RecurringSchedule.
func RecurringScheduleModelFromDomain(s *payment.RecurringSchedule) *RecurringScheduleModel {
	m := &RecurringScheduleModel{}
	m.FromDomain(s)
	return m
}
