package gateway

// chargeRequestBody is the wire format for submitting a charge
type chargeRequestBody struct {
	TransactionID string            `json:"transaction_id"`
	AmountCents   int64             `json:"amount_cents"`
	Currency      string            `json:"currency"`
	MethodToken   string            `json:"method_token"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// chargeResponseBody is the wire format of a successful charge response
type chargeResponseBody struct {
	ChargeID string `json:"charge_id"`
	Status   string `json:"status"`
}

// reversalRequestBody is the wire format for voids and refunds
type reversalRequestBody struct {
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
}

// reversalResponseBody is the wire format of a successful reversal response
type reversalResponseBody struct {
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
}

// gatewayErrorBody is the wire format of a gateway error response
type gatewayErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Charge response statuses
const (
	chargeStatusSucceeded = "succeeded"
	chargeStatusAccepted  = "accepted"
	chargeStatusDeclined  = "declined"
)
