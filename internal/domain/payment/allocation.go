package payment

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/domain/shared/valueobject"
)

// OpenInvoiceRef is a read-only snapshot of an external-system receivable.
// It is immutable for the duration of one payment operation; no lock is held
// across systems, so the external balance may move before the ledger write.
type OpenInvoiceRef struct {
	Key        string            `json:"key"`
	OpenAmount valueobject.Money `json:"open_amount"`
	DueDate    time.Time         `json:"due_date"`
}

// Allocation is the portion of a payment's base amount applied against one invoice
type Allocation struct {
	InvoiceKey    string            `json:"invoice_key"`
	AppliedAmount valueobject.Money `json:"applied_amount"`
}

// Allocations is an ordered list of allocations stored as a JSONB column
type Allocations []Allocation

// Value implements driver.Valuer for JSONB storage
func (a Allocations) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSONB retrieval
func (a *Allocations) Scan(value any) error {
	if value == nil {
		*a = Allocations{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Allocations", value)
	}
	return json.Unmarshal(data, a)
}

// AllocationResult is the outcome of running the waterfall: the ordered
// allocations, plus whatever could not be applied. Remaining is an explicit
// overpayment/credit, never silently dropped.
type AllocationResult struct {
	Allocations Allocations
	Remaining   valueobject.Money
	CreditOnly  bool
}

// AllocatedTotal returns the sum of all applied amounts
func (r AllocationResult) AllocatedTotal() valueobject.Money {
	total := valueobject.Zero(r.Remaining.Currency())
	for _, a := range r.Allocations {
		total = total.MustAdd(a.AppliedAmount)
	}
	return total
}

// HasOverpayment reports whether part of the base amount found no invoice to land on
func (r AllocationResult) HasOverpayment() bool {
	return !r.CreditOnly && r.Remaining.IsPositive()
}

// Allocate runs the greedy waterfall: invoices are sorted by key for a stable,
// reproducible order, then consumed front to back until the base amount runs
// out. Identical inputs always produce identical allocations.
func Allocate(baseAmount valueobject.Money, invoices []OpenInvoiceRef) (AllocationResult, error) {
	if baseAmount.IsNegative() {
		return AllocationResult{}, shared.NewDomainError("INVALID_INPUT", "base amount cannot be negative")
	}

	sorted := make([]OpenInvoiceRef, len(invoices))
	copy(sorted, invoices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})

	remaining := baseAmount
	allocations := Allocations{}
	for _, inv := range sorted {
		if remaining.IsZero() {
			break
		}
		if !inv.OpenAmount.IsPositive() {
			continue
		}
		apply, err := remaining.Min(inv.OpenAmount)
		if err != nil {
			return AllocationResult{}, shared.NewDomainError("INVALID_INPUT", err.Error())
		}
		if !apply.IsPositive() {
			continue
		}
		allocations = append(allocations, Allocation{
			InvoiceKey:    inv.Key,
			AppliedAmount: apply,
		})
		remaining = remaining.MustSubtract(apply)
	}

	return AllocationResult{
		Allocations: allocations,
		Remaining:   remaining,
	}, nil
}

// AllocateUnapplied skips the waterfall entirely: the whole amount becomes an
// explicit standing credit because the caller asked for it, not because the
// invoices ran out.
func AllocateUnapplied(baseAmount valueobject.Money) (AllocationResult, error) {
	if baseAmount.IsNegative() {
		return AllocationResult{}, shared.NewDomainError("INVALID_INPUT", "base amount cannot be negative")
	}
	return AllocationResult{
		Allocations: Allocations{},
		Remaining:   baseAmount,
		CreditOnly:  true,
	}, nil
}
