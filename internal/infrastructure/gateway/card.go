package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/payably/backend/internal/domain/payment"
)

const (
	cardChargePath = "/v1/charges"
	cardRefundPath = "/v1/charges/%s/refund"
)

// CardGatewayAdapter implements payment.SettlementGateway for card payments.
// Card charges settle synchronously: the result of Charge is final.
type CardGatewayAdapter struct {
	config     *Config
	httpClient *http.Client
}

// NewCardGatewayAdapter creates a new card gateway adapter
func NewCardGatewayAdapter(config *Config) (*CardGatewayAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &CardGatewayAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Charge submits a card charge. The transaction id travels as the
// Idempotency-Key header so a repeated submission cannot double-charge.
func (a *CardGatewayAdapter) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	if err := req.Validate(); err != nil {
		return payment.ChargeResult{}, payment.NewStructuralError("INVALID_CHARGE_REQUEST", err.Error())
	}

	body := chargeRequestBody{
		TransactionID: req.TransactionID,
		AmountCents:   req.Amount.Cents(),
		Currency:      string(req.Amount.Currency()),
		MethodToken:   req.MethodToken,
		Metadata:      req.Metadata,
	}

	respBody, err := a.doRequest(ctx, http.MethodPost, cardChargePath, req.TransactionID, body)
	if err != nil {
		return payment.ChargeResult{}, err
	}

	var respData chargeResponseBody
	if err := json.Unmarshal(respBody, &respData); err != nil {
		return payment.ChargeResult{}, fmt.Errorf("card gateway: failed to parse response: %w", err)
	}

	if respData.Status == chargeStatusDeclined {
		return payment.ChargeResult{}, payment.NewTransientError("CARD_DECLINED", "card charge declined")
	}

	return payment.ChargeResult{
		Success:             true,
		VendorTransactionID: respData.ChargeID,
	}, nil
}

// Void is not supported for card: a settled card charge is reversed by refund
func (a *CardGatewayAdapter) Void(ctx context.Context, req payment.ReversalRequest) (payment.ReversalResult, error) {
	return payment.ReversalResult{}, fmt.Errorf("%w: card charges settle immediately, use refund", payment.ErrReversalNotSupported)
}

// Refund reverses a settled card charge
func (a *CardGatewayAdapter) Refund(ctx context.Context, req payment.ReversalRequest) (payment.ReversalResult, error) {
	if err := req.Validate(); err != nil {
		return payment.ReversalResult{}, payment.NewStructuralError("INVALID_REVERSAL_REQUEST", err.Error())
	}

	body := reversalRequestBody{
		TransactionID: req.TransactionID,
		AmountCents:   req.Amount.Cents(),
		Currency:      string(req.Amount.Currency()),
	}

	path := fmt.Sprintf(cardRefundPath, req.VendorTransactionID)
	respBody, err := a.doRequest(ctx, http.MethodPost, path, req.TransactionID, body)
	if err != nil {
		return payment.ReversalResult{}, err
	}

	var respData reversalResponseBody
	if err := json.Unmarshal(respBody, &respData); err != nil {
		return payment.ReversalResult{}, fmt.Errorf("card gateway: failed to parse response: %w", err)
	}

	return payment.ReversalResult{
		Success: true,
		Amount:  req.Amount,
	}, nil
}

// doRequest performs an HTTP request to the card gateway
func (a *CardGatewayAdapter) doRequest(ctx context.Context, method, path, idempotencyKey string, body any) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("card gateway: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("card gateway: failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("card gateway: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, classifyErrorResponse(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// Ensure CardGatewayAdapter implements the interface
var _ payment.SettlementGateway = (*CardGatewayAdapter)(nil)
