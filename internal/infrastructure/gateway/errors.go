package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/payably/backend/internal/domain/payment"
)

// classifyTransportError maps a transport-level failure to a domain error.
// Both outcomes are unclassified sentinels, so the retry engine treats them
// as transient.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", payment.ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", payment.ErrGatewayUnavailable, err)
}

// classifyErrorResponse maps a gateway error response to a domain error.
// 409 means the idempotency token was already consumed; 422 means a missing
// prerequisite that no retry can fix; everything else may clear on a later
// attempt.
func classifyErrorResponse(statusCode int, body []byte) error {
	var errBody gatewayErrorBody
	code := fmt.Sprintf("HTTP_%d", statusCode)
	message := fmt.Sprintf("gateway returned HTTP %d", statusCode)
	if err := json.Unmarshal(body, &errBody); err == nil && errBody.Code != "" {
		code = errBody.Code
		message = errBody.Message
	}

	switch {
	case statusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", payment.ErrDuplicateCharge, message)
	case statusCode == http.StatusUnprocessableEntity:
		return payment.NewStructuralError(code, message)
	case statusCode == http.StatusPaymentRequired:
		return payment.NewTransientError(code, message)
	default:
		return payment.NewTransientError(code, message)
	}
}
