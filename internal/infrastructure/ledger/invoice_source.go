package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared/valueobject"
	"gorm.io/gorm"
)

// GormInvoiceSource implements payment.OpenInvoiceSource by reading the
// ledger's open receivables. Reads are snapshots; no lock is held across
// systems, so balances may move between the read and the ledger write.
type GormInvoiceSource struct {
	db *gorm.DB
}

// NewGormInvoiceSource creates a new GormInvoiceSource
func NewGormInvoiceSource(db *gorm.DB) *GormInvoiceSource {
	return &GormInvoiceSource{db: db}
}

type openInvoiceRow struct {
	InvoiceKey string            `gorm:"column:invoice_key"`
	OpenAmount valueobject.Money `gorm:"column:open_amount"`
	DueDate    time.Time         `gorm:"column:due_date"`
}

// GetOpenInvoices returns the client's open receivables with a positive
// balance, ordered by invoice key
func (s *GormInvoiceSource) GetOpenInvoices(ctx context.Context, clientRef string) ([]payment.OpenInvoiceRef, error) {
	var rows []openInvoiceRow
	if err := s.db.WithContext(ctx).
		Raw(
			`SELECT invoice_key, open_amount, due_date FROM open_invoices WHERE client_ref = ? AND open_amount > 0 ORDER BY invoice_key ASC`,
			clientRef,
		).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: open invoice query: %v", payment.ErrLedgerUnavailable, err)
	}

	invoices := make([]payment.OpenInvoiceRef, len(rows))
	for i, row := range rows {
		invoices[i] = payment.OpenInvoiceRef{
			Key:        row.InvoiceKey,
			OpenAmount: row.OpenAmount,
			DueDate:    row.DueDate,
		}
	}
	return invoices, nil
}

// Ensure GormInvoiceSource implements the interface
var _ payment.OpenInvoiceSource = (*GormInvoiceSource)(nil)
