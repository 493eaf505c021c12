package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/payably/backend/internal/domain/payment"
)

// WebhookConfig contains settings for the failure webhook
type WebhookConfig struct {
	// URL receives a POST per terminally failed payment
	URL string
	// Secret is sent as a bearer token so the receiver can authenticate us
	Secret string
	// Timeout bounds each delivery attempt
	Timeout time.Duration
}

// ErrWebhookMissingURL indicates the webhook sink was built without a target
var ErrWebhookMissingURL = errors.New("notify: missing webhook URL")

const defaultWebhookTimeout = 10 * time.Second

// Validate validates the configuration and applies the default timeout
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return ErrWebhookMissingURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultWebhookTimeout
	}
	return nil
}

// failurePayload is the wire format of a terminal-failure notification
type failurePayload struct {
	PaymentID     string `json:"payment_id"`
	RecordNumber  string `json:"record_number"`
	TransactionID string `json:"transaction_id"`
	ClientRef     string `json:"client_ref"`
	Method        string `json:"method"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason"`
	AttemptCount  int    `json:"attempt_count"`
	FailedAt      string `json:"failed_at"`
}

// WebhookNotificationSink implements payment.NotificationSink by POSTing a
// JSON payload per terminal failure. Delivery is best-effort; the caller is
// expected to log and move on when it errors.
type WebhookNotificationSink struct {
	config     *WebhookConfig
	httpClient *http.Client
}

// NewWebhookNotificationSink creates a new webhook notification sink
func NewWebhookNotificationSink(config *WebhookConfig) (*WebhookNotificationSink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &WebhookNotificationSink{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// NotifyFailure delivers one terminal-failure notification
func (s *WebhookNotificationSink) NotifyFailure(ctx context.Context, p *payment.PaymentRecord, reason string) error {
	payload := failurePayload{
		PaymentID:     p.ID.String(),
		RecordNumber:  p.RecordNumber,
		TransactionID: p.TransactionID,
		ClientRef:     p.ClientRef,
		Method:        string(p.Method),
		AmountCents:   p.TotalAmount.Cents(),
		Currency:      string(p.TotalAmount.Currency()),
		Reason:        reason,
		AttemptCount:  p.AttemptCount,
		FailedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("notify: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.config.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Secret)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notify: receiver returned HTTP %d", resp.StatusCode)
	}

	return nil
}

// Ensure WebhookNotificationSink implements the interface
var _ payment.NotificationSink = (*WebhookNotificationSink)(nil)
