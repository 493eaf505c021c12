package gateway

import (
	"context"
	"fmt"

	"github.com/payably/backend/internal/domain/payment"
)

// MethodRoutingGateway dispatches each call to the adapter for the request's
// payment method. The application layer sees one gateway regardless of how
// many processors sit behind it.
type MethodRoutingGateway struct {
	card payment.SettlementGateway
	ach  payment.SettlementGateway
}

// NewMethodRoutingGateway creates a gateway routing between card and ACH adapters
func NewMethodRoutingGateway(card, ach payment.SettlementGateway) *MethodRoutingGateway {
	return &MethodRoutingGateway{card: card, ach: ach}
}

func (g *MethodRoutingGateway) adapterFor(method payment.PaymentMethod) (payment.SettlementGateway, error) {
	switch method {
	case payment.MethodCard:
		return g.card, nil
	case payment.MethodACH:
		return g.ach, nil
	default:
		return nil, payment.NewStructuralError("UNSUPPORTED_METHOD", fmt.Sprintf("no gateway adapter for method %q", method))
	}
}

// Charge routes the charge to the method's adapter
func (g *MethodRoutingGateway) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	adapter, err := g.adapterFor(req.Method)
	if err != nil {
		return payment.ChargeResult{}, err
	}
	return adapter.Charge(ctx, req)
}

// Void routes the void to the method's adapter
func (g *MethodRoutingGateway) Void(ctx context.Context, req payment.ReversalRequest) (payment.ReversalResult, error) {
	adapter, err := g.adapterFor(req.Method)
	if err != nil {
		return payment.ReversalResult{}, err
	}
	return adapter.Void(ctx, req)
}

// Refund routes the refund to the method's adapter
func (g *MethodRoutingGateway) Refund(ctx context.Context, req payment.ReversalRequest) (payment.ReversalResult, error) {
	adapter, err := g.adapterFor(req.Method)
	if err != nil {
		return payment.ReversalResult{}, err
	}
	return adapter.Refund(ctx, req)
}

// Ensure MethodRoutingGateway implements the interface
var _ payment.SettlementGateway = (*MethodRoutingGateway)(nil)
