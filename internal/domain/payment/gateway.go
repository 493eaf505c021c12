package payment

import (
	"context"
	"errors"

	"github.com/payably/backend/internal/domain/shared/valueobject"
)

// Gateway-level errors
var (
	// ErrGatewayUnavailable indicates the gateway could not be reached
	ErrGatewayUnavailable = errors.New("settlement gateway unavailable")
	// ErrGatewayTimeout indicates the gateway call exceeded its deadline
	ErrGatewayTimeout = errors.New("settlement gateway timed out")
	// ErrDuplicateCharge indicates the gateway rejected a repeated idempotency token
	ErrDuplicateCharge = errors.New("gateway rejected duplicate charge")
	// ErrReversalNotSupported indicates the method does not allow this reversal
	ErrReversalNotSupported = errors.New("reversal not supported for payment method")
)

// FailureKind classifies a settlement failure for the retry engine
type FailureKind string

const (
	// FailureStructural means a missing prerequisite (no payment method on
	// file, unknown customer). Retrying cannot help; fail fast.
	FailureStructural FailureKind = "structural"
	// FailureTransient means a gateway-side or network condition (decline,
	// timeout, 5xx) that may clear on a later attempt.
	FailureTransient FailureKind = "transient"
)

// SettlementError is a classified failure from the settlement gateway
type SettlementError struct {
	Kind    FailureKind
	Code    string
	Message string
}

// Error implements the error interface
func (e *SettlementError) Error() string {
	return e.Message
}

// NewStructuralError creates a terminal, non-retriable settlement error
func NewStructuralError(code, message string) *SettlementError {
	return &SettlementError{Kind: FailureStructural, Code: code, Message: message}
}

// NewTransientError creates a retriable settlement error
func NewTransientError(code, message string) *SettlementError {
	return &SettlementError{Kind: FailureTransient, Code: code, Message: message}
}

// IsStructural reports whether err is a structural settlement failure.
// Anything unclassified is treated as transient so the attempt budget, not a
// misjudged fast-fail, bounds the damage of an unknown error.
func IsStructural(err error) bool {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.Kind == FailureStructural
	}
	return false
}

// ChargeRequest asks the gateway to move money. The transaction id doubles as
// the caller-supplied idempotency token: the gateway is expected to reject a
// second charge bearing the same token.
type ChargeRequest struct {
	TransactionID string
	Amount        valueobject.Money
	Method        PaymentMethod
	MethodToken   string
	Metadata      map[string]string
}

// Validate checks the charge request
func (r ChargeRequest) Validate() error {
	if r.TransactionID == "" {
		return errors.New("transaction id is required")
	}
	if !r.Amount.IsPositive() {
		return errors.New("charge amount must be positive")
	}
	if !r.Method.IsValid() {
		return errors.New("invalid payment method")
	}
	if r.MethodToken == "" {
		return errors.New("method token is required")
	}
	return nil
}

// ChargeResult is the normalized outcome of a charge call. For card the result
// is final; for ACH success means accepted for processing, not settled.
type ChargeResult struct {
	Success             bool
	VendorTransactionID string
	Pending             bool // ACH: accepted, settlement still outstanding
}

// ReversalRequest asks the gateway to void or refund a prior charge
type ReversalRequest struct {
	TransactionID       string
	VendorTransactionID string
	Amount              valueobject.Money
	Method              PaymentMethod
}

// Validate checks the reversal request
func (r ReversalRequest) Validate() error {
	if r.VendorTransactionID == "" {
		return errors.New("vendor transaction id is required")
	}
	if !r.Amount.IsPositive() {
		return errors.New("reversal amount must be positive")
	}
	return nil
}

// ReversalResult is the normalized outcome of a void or refund call
type ReversalResult struct {
	Success bool
	Amount  valueobject.Money
}

// SettlementGateway is the port to the system that actually moves money.
// Implementations must bound every call with the context deadline; a timeout
// is a transient failure, never a success.
type SettlementGateway interface {
	// Charge attempts settlement. Card settles synchronously; ACH returns
	// accepted-for-processing and settles 2-3 days later via an external event.
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)

	// Void cancels a charge pre-settlement (ACH only)
	Void(ctx context.Context, req ReversalRequest) (ReversalResult, error)

	// Refund reverses a charge post-settlement (card only)
	Refund(ctx context.Context, req ReversalRequest) (ReversalResult, error)
}
