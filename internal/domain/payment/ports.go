package payment

import (
	"context"
	"errors"
)

// Ledger-side errors
var (
	// ErrLedgerUnavailable indicates the external ledger could not be reached
	ErrLedgerUnavailable = errors.New("external ledger unavailable")
	// ErrLedgerWriteFailed indicates the external transaction was rolled back
	ErrLedgerWriteFailed = errors.New("external ledger write failed")
)

// LedgerWriteResult reports a successful external write
type LedgerWriteResult struct {
	ExternalEntryID string
}

// LedgerWriter mirrors a settled payment into the external accounting system
// as one atomic external transaction: a negative entry for the total amount
// plus one application row per allocation. On any mid-write failure the
// external transaction is rolled back, so the ledger never observes a partial
// payment. A failure here never unwinds the charge or the local record; the
// record is flagged for reconciliation instead.
type LedgerWriter interface {
	Write(ctx context.Context, p *PaymentRecord) (LedgerWriteResult, error)
}

// OpenInvoiceSource provides read-only snapshots of a client's open
// receivables from the external system
type OpenInvoiceSource interface {
	GetOpenInvoices(ctx context.Context, clientRef string) ([]OpenInvoiceRef, error)
}

// NotificationSink receives terminal-failure notifications. Delivery is
// best-effort: sink errors must never affect payment state.
type NotificationSink interface {
	NotifyFailure(ctx context.Context, p *PaymentRecord, reason string) error
}
