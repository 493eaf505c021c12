package payment

import (
	"context"
	"testing"
	"time"

	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type serviceMocks struct {
	payments  *MockPaymentRepository
	schedules *MockScheduleRepository
	gateway   *MockSettlementGateway
	ledger    *MockLedgerWriter
	invoices  *MockInvoiceSource
	notifier  *MockNotificationSink
}

func newTestService(t *testing.T) (*PaymentService, *serviceMocks) {
	t.Helper()

	feeCalc, err := payment.NewFeeCalculator(decimal.NewFromFloat(0.029))
	require.NoError(t, err)

	m := &serviceMocks{
		payments:  new(MockPaymentRepository),
		schedules: new(MockScheduleRepository),
		gateway:   new(MockSettlementGateway),
		ledger:    new(MockLedgerWriter),
		invoices:  new(MockInvoiceSource),
		notifier:  new(MockNotificationSink),
	}

	svc := NewPaymentService(
		m.payments, m.schedules, m.gateway, m.ledger, m.invoices, m.notifier,
		feeCalc, nil, 5*time.Second, zap.NewNop(),
	)
	return svc, m
}

func usd(cents int64) valueobject.Money {
	return valueobject.NewMoneyFromCents(cents, valueobject.USD)
}

func TestPayNow_CardSuccess(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	m.payments.On("FindByTransactionID", mock.Anything, "txn-1").Return(nil, shared.ErrNotFound)
	m.invoices.On("GetOpenInvoices", mock.Anything, "CUST-1").Return([]payment.OpenInvoiceRef{
		{Key: "INV-001", OpenAmount: usd(6000)},
	}, nil)
	m.payments.On("GeneratePaymentNumber", mock.Anything).Return("PAY-20260831-00001", nil)
	m.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	m.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req payment.ChargeRequest) bool {
		return req.TransactionID == "txn-1" && req.Amount.Cents() == 10290 && req.MethodToken == "tok_visa"
	})).Return(payment.ChargeResult{Success: true, VendorTransactionID: "ch_123"}, nil)
	m.payments.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	m.ledger.On("Write", mock.Anything, mock.Anything).Return(payment.LedgerWriteResult{ExternalEntryID: "LE-42"}, nil)

	result, err := svc.PayNow(ctx, PayNowRequest{
		TransactionID: "txn-1",
		ClientRef:     "CUST-1",
		Method:        payment.MethodCard,
		MethodToken:   "tok_visa",
		Amount:        usd(10000),
	})

	require.NoError(t, err)
	assert.True(t, result.Charged)

	record := result.Payment
	assert.Equal(t, payment.StatusCompleted, record.Status)
	assert.Equal(t, "PAY-20260831-00001", record.RecordNumber)
	assert.Equal(t, int64(10000), record.BaseAmount.Cents())
	assert.Equal(t, int64(290), record.Fee.Cents())
	assert.Equal(t, int64(10290), record.TotalAmount.Cents())

	// $60 applied to the open invoice, $40 kept as standing credit
	require.Len(t, record.Allocations, 1)
	assert.Equal(t, int64(6000), record.Allocations[0].AppliedAmount.Cents())
	assert.Equal(t, int64(4000), record.UnappliedAmount.Cents())

	assert.Equal(t, payment.LedgerWriteSucceeded, record.LedgerWriteStatus)
	require.NotNil(t, record.LedgerEntryID)
	assert.Equal(t, "LE-42", *record.LedgerEntryID)
	require.NotNil(t, record.VendorTransactionID)
	assert.Equal(t, "ch_123", *record.VendorTransactionID)
}

func TestPayNow_ACHAcceptedForProcessing(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	m.payments.On("FindByTransactionID", mock.Anything, "txn-2").Return(nil, shared.ErrNotFound)
	m.invoices.On("GetOpenInvoices", mock.Anything, "CUST-2").Return([]payment.OpenInvoiceRef{}, nil)
	m.payments.On("GeneratePaymentNumber", mock.Anything).Return("PAY-20260831-00002", nil)
	m.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	m.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{Success: true, VendorTransactionID: "ach_9", Pending: true}, nil)
	m.payments.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	m.ledger.On("Write", mock.Anything, mock.Anything).Return(payment.LedgerWriteResult{ExternalEntryID: "LE-43"}, nil)

	result, err := svc.PayNow(ctx, PayNowRequest{
		TransactionID: "txn-2",
		ClientRef:     "CUST-2",
		Method:        payment.MethodACH,
		MethodToken:   "bank_1",
		Amount:        usd(5000),
	})

	require.NoError(t, err)
	record := result.Payment

	// ACH acceptance is not settlement
	assert.Equal(t, payment.StatusProcessing, record.Status)
	assert.True(t, record.Fee.IsZero())
	assert.Equal(t, int64(5000), record.TotalAmount.Cents())
	assert.Equal(t, int64(5000), record.UnappliedAmount.Cents())
}

func TestPayNow_DuplicateTransactionIDIsNoOp(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	existing, err := payment.NewPaymentRecord("txn-dup", "CUST-1", payment.MethodCard, usd(10000), usd(290), nil)
	require.NoError(t, err)
	require.NoError(t, existing.MarkChargeSucceeded("ch_prev"))

	m.payments.On("FindByTransactionID", mock.Anything, "txn-dup").Return(existing, nil)

	result, err := svc.PayNow(ctx, PayNowRequest{
		TransactionID: "txn-dup",
		ClientRef:     "CUST-1",
		Method:        payment.MethodCard,
		MethodToken:   "tok_visa",
		Amount:        usd(10000),
	})

	require.NoError(t, err)
	assert.False(t, result.Charged)
	assert.Equal(t, existing, result.Payment)
	m.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestPayNow_ResumesPendingRecord(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	// An earlier submission crashed after persisting the record but before the
	// charge: resubmitting the same transaction id must settle it, not build a
	// second record
	pending, err := payment.NewPaymentRecord("txn-resume", "CUST-1", payment.MethodCard, usd(10000), usd(290), nil)
	require.NoError(t, err)

	m.payments.On("FindByTransactionID", mock.Anything, "txn-resume").Return(pending, nil)
	m.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{Success: true, VendorTransactionID: "ch_2"}, nil)
	m.payments.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	m.ledger.On("Write", mock.Anything, mock.Anything).Return(payment.LedgerWriteResult{ExternalEntryID: "LE-44"}, nil)

	result, err := svc.PayNow(ctx, PayNowRequest{
		TransactionID: "txn-resume",
		ClientRef:     "CUST-1",
		Method:        payment.MethodCard,
		MethodToken:   "tok_visa",
		Amount:        usd(10000),
	})

	require.NoError(t, err)
	assert.True(t, result.Charged)
	assert.Equal(t, payment.StatusCompleted, result.Payment.Status)
	m.payments.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestPayNow_IdempotencyStoreShortCircuits(t *testing.T) {
	feeCalc, err := payment.NewFeeCalculator(decimal.NewFromFloat(0.029))
	require.NoError(t, err)

	payments := new(MockPaymentRepository)
	gateway := new(MockSettlementGateway)
	store := new(MockIdempotencyStore)

	svc := NewPaymentService(
		payments, new(MockScheduleRepository), gateway, new(MockLedgerWriter),
		new(MockInvoiceSource), new(MockNotificationSink),
		feeCalc, store, 5*time.Second, zap.NewNop(),
	)

	existing, err := payment.NewPaymentRecord("txn-seen", "CUST-1", payment.MethodCard, usd(10000), usd(290), nil)
	require.NoError(t, err)
	require.NoError(t, existing.MarkChargeSucceeded("ch_prev"))

	store.On("IsProcessed", mock.Anything, "txn-seen").Return(true, nil)
	payments.On("FindByTransactionID", mock.Anything, "txn-seen").Return(existing, nil)

	result, err := svc.PayNow(context.Background(), PayNowRequest{
		TransactionID: "txn-seen",
		ClientRef:     "CUST-1",
		Method:        payment.MethodCard,
		MethodToken:   "tok_visa",
		Amount:        usd(10000),
	})

	require.NoError(t, err)
	assert.False(t, result.Charged)
	gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestPayNow_RejectedRequestDoesNotConsumeTransactionID(t *testing.T) {
	feeCalc, err := payment.NewFeeCalculator(decimal.NewFromFloat(0.029))
	require.NoError(t, err)

	payments := new(MockPaymentRepository)
	gateway := new(MockSettlementGateway)
	invoices := new(MockInvoiceSource)
	store := new(MockIdempotencyStore)
	ledger := new(MockLedgerWriter)

	svc := NewPaymentService(
		payments, new(MockScheduleRepository), gateway, ledger,
		invoices, new(MockNotificationSink),
		feeCalc, store, 5*time.Second, zap.NewNop(),
	)

	store.On("IsProcessed", mock.Anything, "txn-retry").Return(false, nil)
	payments.On("FindByTransactionID", mock.Anything, "txn-retry").Return(nil, shared.ErrNotFound)

	// A negative amount never makes it past fee computation
	_, err = svc.PayNow(context.Background(), PayNowRequest{
		TransactionID: "txn-retry",
		ClientRef:     "CUST-1",
		Method:        payment.MethodCard,
		MethodToken:   "tok_visa",
		Amount:        usd(-10000),
	})
	require.Error(t, err)

	// The rejected submission must not claim the key: a corrected retry with
	// the same transaction id has to go through as a fresh payment
	store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)

	invoices.On("GetOpenInvoices", mock.Anything, "CUST-1").Return([]payment.OpenInvoiceRef{}, nil)
	payments.On("GeneratePaymentNumber", mock.Anything).Return("PAY-20260831-00009", nil)
	payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	payments.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{Success: true, VendorTransactionID: "ch_9"}, nil)
	ledger.On("Write", mock.Anything, mock.Anything).Return(payment.LedgerWriteResult{ExternalEntryID: "LE-49"}, nil)
	store.On("MarkProcessed", mock.Anything, "txn-retry", mock.Anything).Return(true, nil)

	result, err := svc.PayNow(context.Background(), PayNowRequest{
		TransactionID: "txn-retry",
		ClientRef:     "CUST-1",
		Method:        payment.MethodCard,
		MethodToken:   "tok_visa",
		Amount:        usd(10000),
	})

	require.NoError(t, err)
	assert.True(t, result.Charged)
	store.AssertCalled(t, "MarkProcessed", mock.Anything, "txn-retry", mock.Anything)
}

func TestPayNow_GatewayDeclineMarksFailed(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	m.payments.On("FindByTransactionID", mock.Anything, "txn-3").Return(nil, shared.ErrNotFound)
	m.invoices.On("GetOpenInvoices", mock.Anything, "CUST-3").Return([]payment.OpenInvoiceRef{}, nil)
	m.payments.On("GeneratePaymentNumber", mock.Anything).Return("PAY-20260831-00003", nil)
	m.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	m.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{}, payment.NewTransientError("CARD_DECLINED", "card declined"))
	m.payments.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.PayNow(ctx, PayNowRequest{
		TransactionID: "txn-3",
		ClientRef:     "CUST-3",
		Method:        payment.MethodCard,
		MethodToken:   "tok_visa",
		Amount:        usd(10000),
	})

	require.Error(t, err)
	assert.Equal(t, payment.StatusFailed, result.Payment.Status)
	require.NotNil(t, result.Payment.FailureReason)
	assert.Equal(t, "card declined", *result.Payment.FailureReason)
	assert.Equal(t, 1, result.Payment.AttemptCount)

	// Interactive failures report to the caller, not the notification sink
	m.notifier.AssertNotCalled(t, "NotifyFailure", mock.Anything, mock.Anything, mock.Anything)
	m.ledger.AssertNotCalled(t, "Write", mock.Anything, mock.Anything)
}

func TestPayNow_LedgerWriteFailureKeepsCharge(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	m.payments.On("FindByTransactionID", mock.Anything, "txn-4").Return(nil, shared.ErrNotFound)
	m.invoices.On("GetOpenInvoices", mock.Anything, "CUST-4").Return([]payment.OpenInvoiceRef{}, nil)
	m.payments.On("GeneratePaymentNumber", mock.Anything).Return("PAY-20260831-00004", nil)
	m.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	m.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{Success: true, VendorTransactionID: "ch_4"}, nil)
	m.payments.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	m.ledger.On("Write", mock.Anything, mock.Anything).
		Return(payment.LedgerWriteResult{}, payment.ErrLedgerUnavailable)

	result, err := svc.PayNow(ctx, PayNowRequest{
		TransactionID: "txn-4",
		ClientRef:     "CUST-4",
		Method:        payment.MethodCard,
		MethodToken:   "tok_visa",
		Amount:        usd(10000),
	})

	// The charge stands: the ledger failure only flags the record
	require.NoError(t, err)
	assert.True(t, result.Charged)
	assert.Equal(t, payment.StatusCompleted, result.Payment.Status)
	assert.Equal(t, payment.LedgerWriteFailed, result.Payment.LedgerWriteStatus)
	assert.True(t, result.Payment.NeedsReconciliation())
}

func TestPayNow_RequiresTransactionID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.PayNow(context.Background(), PayNowRequest{
		ClientRef:   "CUST-1",
		Method:      payment.MethodCard,
		MethodToken: "tok_visa",
		Amount:      usd(10000),
	})

	require.Error(t, err)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_INPUT", domainErr.Code)
}

func TestPayNow_UnappliedSkipsInvoiceLookup(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	m.payments.On("FindByTransactionID", mock.Anything, "txn-5").Return(nil, shared.ErrNotFound)
	m.payments.On("GeneratePaymentNumber", mock.Anything).Return("PAY-20260831-00005", nil)
	m.payments.On("Save", mock.Anything, mock.Anything).Return(nil)
	m.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{Success: true, VendorTransactionID: "ch_5"}, nil)
	m.payments.On("SaveWithLock", mock.Anything, mock.Anything).Return(nil)
	m.ledger.On("Write", mock.Anything, mock.Anything).Return(payment.LedgerWriteResult{ExternalEntryID: "LE-45"}, nil)

	result, err := svc.PayNow(ctx, PayNowRequest{
		TransactionID: "txn-5",
		ClientRef:     "CUST-5",
		Method:        payment.MethodCard,
		MethodToken:   "tok_visa",
		Amount:        usd(10000),
		Unapplied:     true,
	})

	require.NoError(t, err)
	assert.True(t, result.Payment.CreditOnly)
	assert.Empty(t, result.Payment.Allocations)
	assert.Equal(t, int64(10000), result.Payment.UnappliedAmount.Cents())
	m.invoices.AssertNotCalled(t, "GetOpenInvoices", mock.Anything, mock.Anything)
}

func TestApplySettlementEvent(t *testing.T) {
	newProcessingACH := func(t *testing.T, txnID string) *payment.PaymentRecord {
		t.Helper()
		record, err := payment.NewPaymentRecord(txnID, "CUST-1", payment.MethodACH, usd(5000), usd(0), nil)
		require.NoError(t, err)
		require.NoError(t, record.MarkChargeSucceeded("ach_1"))
		require.Equal(t, payment.StatusProcessing, record.Status)
		return record
	}

	t.Run("confirmation completes the payment", func(t *testing.T) {
		svc, m := newTestService(t)
		record := newProcessingACH(t, "txn-ach-1")

		m.payments.On("FindByTransactionID", mock.Anything, "txn-ach-1").Return(record, nil)
		m.payments.On("SaveWithLock", mock.Anything, record).Return(nil)

		updated, err := svc.ApplySettlementEvent(context.Background(), "txn-ach-1", true, "")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusCompleted, updated.Status)
	})

	t.Run("return marks the payment returned with a reason", func(t *testing.T) {
		svc, m := newTestService(t)
		record := newProcessingACH(t, "txn-ach-2")

		m.payments.On("FindByTransactionID", mock.Anything, "txn-ach-2").Return(record, nil)
		m.payments.On("SaveWithLock", mock.Anything, record).Return(nil)

		updated, err := svc.ApplySettlementEvent(context.Background(), "txn-ach-2", false, "R01 insufficient funds")
		require.NoError(t, err)
		assert.Equal(t, payment.StatusReturned, updated.Status)
		require.NotNil(t, updated.FailureReason)
		assert.Equal(t, "R01 insufficient funds", *updated.FailureReason)
	})

	t.Run("events for completed payments are rejected", func(t *testing.T) {
		svc, m := newTestService(t)
		record := newProcessingACH(t, "txn-ach-3")
		require.NoError(t, record.ConfirmSettlement())

		m.payments.On("FindByTransactionID", mock.Anything, "txn-ach-3").Return(record, nil)

		_, err := svc.ApplySettlementEvent(context.Background(), "txn-ach-3", true, "")
		require.Error(t, err)
	})
}

func TestVoidPayment(t *testing.T) {
	t.Run("voids an accepted ach payment", func(t *testing.T) {
		svc, m := newTestService(t)

		record, err := payment.NewPaymentRecord("txn-v1", "CUST-1", payment.MethodACH, usd(5000), usd(0), nil)
		require.NoError(t, err)
		require.NoError(t, record.MarkChargeSucceeded("ach_1"))

		m.payments.On("FindByID", mock.Anything, record.ID).Return(record, nil)
		m.gateway.On("Void", mock.Anything, mock.MatchedBy(func(req payment.ReversalRequest) bool {
			return req.VendorTransactionID == "ach_1" && req.Amount.Cents() == 5000
		})).Return(payment.ReversalResult{Success: true}, nil)
		m.payments.On("SaveWithLock", mock.Anything, record).Return(nil)

		updated, err := svc.VoidPayment(context.Background(), record.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusVoided, updated.Status)
		// reversals never touch the charged amounts
		assert.Equal(t, int64(5000), updated.TotalAmount.Cents())
	})

	t.Run("rejects void for card payments", func(t *testing.T) {
		svc, m := newTestService(t)

		record, err := payment.NewPaymentRecord("txn-v2", "CUST-1", payment.MethodCard, usd(10000), usd(290), nil)
		require.NoError(t, err)
		require.NoError(t, record.MarkChargeSucceeded("ch_1"))

		m.payments.On("FindByID", mock.Anything, record.ID).Return(record, nil)

		_, err = svc.VoidPayment(context.Background(), record.ID)
		require.Error(t, err)
		m.gateway.AssertNotCalled(t, "Void", mock.Anything, mock.Anything)
	})
}

func TestRefundPayment(t *testing.T) {
	t.Run("refunds a settled card payment", func(t *testing.T) {
		svc, m := newTestService(t)

		record, err := payment.NewPaymentRecord("txn-r1", "CUST-1", payment.MethodCard, usd(10000), usd(290), nil)
		require.NoError(t, err)
		require.NoError(t, record.MarkChargeSucceeded("ch_1"))

		m.payments.On("FindByID", mock.Anything, record.ID).Return(record, nil)
		m.gateway.On("Refund", mock.Anything, mock.Anything).Return(payment.ReversalResult{Success: true}, nil)
		m.payments.On("SaveWithLock", mock.Anything, record).Return(nil)

		updated, err := svc.RefundPayment(context.Background(), record.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusRefunded, updated.Status)
	})

	t.Run("rejects refund for ach payments", func(t *testing.T) {
		svc, m := newTestService(t)

		record, err := payment.NewPaymentRecord("txn-r2", "CUST-1", payment.MethodACH, usd(5000), usd(0), nil)
		require.NoError(t, err)
		require.NoError(t, record.MarkChargeSucceeded("ach_1"))

		m.payments.On("FindByID", mock.Anything, record.ID).Return(record, nil)

		_, err = svc.RefundPayment(context.Background(), record.ID)
		require.Error(t, err)
		m.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	})

	t.Run("rejects refund without a gateway reference", func(t *testing.T) {
		svc, m := newTestService(t)

		record, err := payment.NewPaymentRecord("txn-r3", "CUST-1", payment.MethodCard, usd(10000), usd(290), nil)
		require.NoError(t, err)

		m.payments.On("FindByID", mock.Anything, record.ID).Return(record, nil)

		_, err = svc.RefundPayment(context.Background(), record.ID)
		require.Error(t, err)
	})
}
