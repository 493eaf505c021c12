package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/payably/backend/internal/domain/payment"
	"gorm.io/gorm"
)

// GormLedgerWriter implements payment.LedgerWriter against the external
// accounting database. The ledger lives in a separate database, so the
// writer holds its own connection and never participates in the local
// payment transaction.
type GormLedgerWriter struct {
	db *gorm.DB
}

// NewGormLedgerWriter creates a new GormLedgerWriter
func NewGormLedgerWriter(db *gorm.DB) *GormLedgerWriter {
	return &GormLedgerWriter{db: db}
}

// Write mirrors a settled payment into the ledger as one external
// transaction: a negative entry for the total amount plus one application
// row per allocation. Any mid-write failure rolls the whole entry back, so
// the ledger never observes a partial payment. The unapplied remainder is
// not written as an application row; it stays on the entry as open credit.
func (w *GormLedgerWriter) Write(ctx context.Context, p *payment.PaymentRecord) (payment.LedgerWriteResult, error) {
	entryID := fmt.Sprintf("LE-%s", uuid.New().String())

	tx := w.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return payment.LedgerWriteResult{}, fmt.Errorf("%w: %v", payment.ErrLedgerUnavailable, tx.Error)
	}

	entryAmount := p.TotalAmount.Negate()
	if err := tx.Exec(
		`INSERT INTO ledger_entries (entry_id, client_ref, payment_number, amount, currency, entry_date) VALUES (?, ?, ?, ?, ?, ?)`,
		entryID, p.ClientRef, p.RecordNumber, entryAmount.Amount(), string(entryAmount.Currency()), time.Now().UTC(),
	).Error; err != nil {
		tx.Rollback()
		return payment.LedgerWriteResult{}, fmt.Errorf("%w: entry insert: %v", payment.ErrLedgerWriteFailed, err)
	}

	for _, a := range p.Allocations {
		if err := tx.Exec(
			`INSERT INTO ledger_entry_applications (entry_id, invoice_key, applied_amount, currency) VALUES (?, ?, ?, ?)`,
			entryID, a.InvoiceKey, a.AppliedAmount.Amount(), string(a.AppliedAmount.Currency()),
		).Error; err != nil {
			tx.Rollback()
			return payment.LedgerWriteResult{}, fmt.Errorf("%w: application insert for %s: %v", payment.ErrLedgerWriteFailed, a.InvoiceKey, err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return payment.LedgerWriteResult{}, fmt.Errorf("%w: commit: %v", payment.ErrLedgerWriteFailed, err)
	}

	return payment.LedgerWriteResult{ExternalEntryID: entryID}, nil
}

// Ensure GormLedgerWriter implements the interface
var _ payment.LedgerWriter = (*GormLedgerWriter)(nil)
