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
	achDebitPath  = "/v1/debits"
	achCancelPath = "/v1/debits/%s/cancel"
)

// ACHGatewayAdapter implements payment.SettlementGateway for ACH payments.
// An accepted debit is not settled: the network confirms or returns it days
// later through a settlement event.
type ACHGatewayAdapter struct {
	config     *Config
	httpClient *http.Client
}

// NewACHGatewayAdapter creates a new ACH gateway adapter
func NewACHGatewayAdapter(config *Config) (*ACHGatewayAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &ACHGatewayAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Charge submits an ACH debit. Success means accepted for processing, so the
// result always carries Pending.
func (a *ACHGatewayAdapter) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
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

	respBody, err := a.doRequest(ctx, http.MethodPost, achDebitPath, req.TransactionID, body)
	if err != nil {
		return payment.ChargeResult{}, err
	}

	var respData chargeResponseBody
	if err := json.Unmarshal(respBody, &respData); err != nil {
		return payment.ChargeResult{}, fmt.Errorf("ach gateway: failed to parse response: %w", err)
	}

	if respData.Status == chargeStatusDeclined {
		return payment.ChargeResult{}, payment.NewTransientError("ACH_REJECTED", "ach debit rejected")
	}

	return payment.ChargeResult{
		Success:             true,
		VendorTransactionID: respData.ChargeID,
		Pending:             true,
	}, nil
}

// Void cancels an ACH debit that has not settled yet
func (a *ACHGatewayAdapter) Void(ctx context.Context, req payment.ReversalRequest) (payment.ReversalResult, error) {
	if err := req.Validate(); err != nil {
		return payment.ReversalResult{}, payment.NewStructuralError("INVALID_REVERSAL_REQUEST", err.Error())
	}

	body := reversalRequestBody{
		TransactionID: req.TransactionID,
		AmountCents:   req.Amount.Cents(),
		Currency:      string(req.Amount.Currency()),
	}

	path := fmt.Sprintf(achCancelPath, req.VendorTransactionID)
	respBody, err := a.doRequest(ctx, http.MethodPost, path, req.TransactionID, body)
	if err != nil {
		return payment.ReversalResult{}, err
	}

	var respData reversalResponseBody
	if err := json.Unmarshal(respBody, &respData); err != nil {
		return payment.ReversalResult{}, fmt.Errorf("ach gateway: failed to parse response: %w", err)
	}

	return payment.ReversalResult{
		Success: true,
		Amount:  req.Amount,
	}, nil
}

// Refund is not supported for ACH: an unsettled debit is voided, and a
// settled one comes back through the return flow
func (a *ACHGatewayAdapter) Refund(ctx context.Context, req payment.ReversalRequest) (payment.ReversalResult, error) {
	return payment.ReversalResult{}, fmt.Errorf("%w: ach debits are voided pre-settlement or returned by the network", payment.ErrReversalNotSupported)
}

// doRequest performs an HTTP request to the ACH gateway
func (a *ACHGatewayAdapter) doRequest(ctx context.Context, method, path, idempotencyKey string, body any) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ach gateway: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("ach gateway: failed to create request: %w", err)
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
		return nil, fmt.Errorf("ach gateway: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, classifyErrorResponse(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// Ensure ACHGatewayAdapter implements the interface
var _ payment.SettlementGateway = (*ACHGatewayAdapter)(nil)
