package notify

import (
	"context"

	"github.com/payably/backend/internal/domain/payment"
	"go.uber.org/zap"
)

// LogNotificationSink implements payment.NotificationSink by logging the
// failure. Used when no webhook URL is configured, so terminal failures are
// still visible somewhere.
type LogNotificationSink struct {
	logger *zap.Logger
}

// NewLogNotificationSink creates a new log-backed notification sink
func NewLogNotificationSink(logger *zap.Logger) *LogNotificationSink {
	return &LogNotificationSink{logger: logger}
}

// NotifyFailure logs one terminal-failure notification
func (s *LogNotificationSink) NotifyFailure(ctx context.Context, p *payment.PaymentRecord, reason string) error {
	s.logger.Warn("payment terminally failed",
		zap.String("payment_id", p.ID.String()),
		zap.String("record_number", p.RecordNumber),
		zap.String("transaction_id", p.TransactionID),
		zap.String("client_ref", p.ClientRef),
		zap.String("method", string(p.Method)),
		zap.Int64("amount_cents", p.TotalAmount.Cents()),
		zap.Int("attempt_count", p.AttemptCount),
		zap.String("reason", reason),
	)
	return nil
}

// Ensure LogNotificationSink implements the interface
var _ payment.NotificationSink = (*LogNotificationSink)(nil)
