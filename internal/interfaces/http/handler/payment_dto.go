package handler

import (
	"time"

	"github.com/payably/backend/internal/domain/payment"
)

// AllocationResponse represents one invoice application of a payment
// @Description A portion of a payment applied to a single open invoice
type AllocationResponse struct {
	InvoiceKey   string `json:"invoice_key" example:"INV-001"`
	AppliedCents int64  `json:"applied_cents" example:"6000"`
}

// PaymentResponse represents a payment record in API responses
// @Description Full payment record including settlement and ledger-mirror state
type PaymentResponse struct {
	ID                  string               `json:"id" example:"8f14e45f-ceea-467f-a0f9-d7c51f2b1a11"`
	RecordNumber        string               `json:"record_number" example:"PAY-20260831-00001"`
	TransactionID       string               `json:"transaction_id" example:"txn-a1b2c3"`
	ClientRef           string               `json:"client_ref" example:"CUST-001"`
	ScheduleID          *string              `json:"schedule_id,omitempty"`
	Method              string               `json:"method" example:"card"`
	Status              string               `json:"status" example:"completed"`
	BaseAmountCents     int64                `json:"base_amount_cents" example:"10000"`
	FeeCents            int64                `json:"fee_cents" example:"290"`
	TotalAmountCents    int64                `json:"total_amount_cents" example:"10290"`
	Currency            string               `json:"currency" example:"USD"`
	Allocations         []AllocationResponse `json:"allocations"`
	UnappliedCents      int64                `json:"unapplied_cents" example:"0"`
	CreditOnly          bool                 `json:"credit_only" example:"false"`
	VendorTransactionID *string              `json:"vendor_transaction_id,omitempty"`
	LedgerWriteStatus   string               `json:"ledger_write_status" example:"succeeded"`
	LedgerEntryID       *string              `json:"ledger_entry_id,omitempty"`
	FailureReason       *string              `json:"failure_reason,omitempty"`
	AttemptCount        int                  `json:"attempt_count" example:"1"`
	ScheduledFor        *time.Time           `json:"scheduled_for,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// toPaymentResponse converts a domain payment record to its API representation
func toPaymentResponse(p *payment.PaymentRecord) PaymentResponse {
	allocations := make([]AllocationResponse, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		allocations = append(allocations, AllocationResponse{
			InvoiceKey:   a.InvoiceKey,
			AppliedCents: a.AppliedAmount.Cents(),
		})
	}

	resp := PaymentResponse{
		ID:                  p.ID.String(),
		RecordNumber:        p.RecordNumber,
		TransactionID:       p.TransactionID,
		ClientRef:           p.ClientRef,
		Method:              string(p.Method),
		Status:              string(p.Status),
		BaseAmountCents:     p.BaseAmount.Cents(),
		FeeCents:            p.Fee.Cents(),
		TotalAmountCents:    p.TotalAmount.Cents(),
		Currency:            string(p.TotalAmount.Currency()),
		Allocations:         allocations,
		UnappliedCents:      p.UnappliedAmount.Cents(),
		CreditOnly:          p.CreditOnly,
		VendorTransactionID: p.VendorTransactionID,
		LedgerWriteStatus:   string(p.LedgerWriteStatus),
		LedgerEntryID:       p.LedgerEntryID,
		FailureReason:       p.FailureReason,
		AttemptCount:        p.AttemptCount,
		ScheduledFor:        p.ScheduledFor,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	if p.ScheduleID != nil {
		id := p.ScheduleID.String()
		resp.ScheduleID = &id
	}
	return resp
}

// toPaymentResponses converts a slice of domain records
func toPaymentResponses(records []payment.PaymentRecord) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(records))
	for i := range records {
		out = append(out, toPaymentResponse(&records[i]))
	}
	return out
}

// ScheduleResponse represents a recurring schedule in API responses
// @Description Recurring payment schedule state
type ScheduleResponse struct {
	ID                   string     `json:"id" example:"b2c3d4e5-f607-4819-a2b3-c4d5e6f70819"`
	ClientRef            string     `json:"client_ref" example:"CUST-001"`
	Method               string     `json:"method" example:"card"`
	MethodToken          string     `json:"method_token,omitempty" example:"tok_visa"`
	BaseAmountCents      int64      `json:"base_amount_cents" example:"5000"`
	Currency             string     `json:"currency" example:"USD"`
	Frequency            string     `json:"frequency" example:"monthly"`
	Status               string     `json:"status" example:"active"`
	NextDueDate          *time.Time `json:"next_due_date,omitempty"`
	OccurrencesCompleted int        `json:"occurrences_completed" example:"3"`
	MaxOccurrences       int        `json:"max_occurrences" example:"12"`
	EndDate              *time.Time `json:"end_date,omitempty"`
	FailureCount         int        `json:"failure_count" example:"0"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// toScheduleResponse converts a domain schedule to its API representation
func toScheduleResponse(s *payment.RecurringSchedule) ScheduleResponse {
	return ScheduleResponse{
		ID:                   s.ID.String(),
		ClientRef:            s.ClientRef,
		Method:               string(s.Method),
		MethodToken:          s.MethodToken,
		BaseAmountCents:      s.BaseAmount.Cents(),
		Currency:             string(s.BaseAmount.Currency()),
		Frequency:            string(s.Frequency),
		Status:               string(s.Status),
		NextDueDate:          s.NextDueDate,
		OccurrencesCompleted: s.OccurrencesCompleted,
		MaxOccurrences:       s.MaxOccurrences,
		EndDate:              s.EndDate,
		FailureCount:         s.FailureCount,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

// toScheduleResponses converts a slice of domain schedules
func toScheduleResponses(schedules []payment.RecurringSchedule) []ScheduleResponse {
	out := make([]ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		out = append(out, toScheduleResponse(&schedules[i]))
	}
	return out
}
