package payment

import (
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// FeeCalculator computes the card surcharge in both directions. All work
// happens in integer cents: amounts are promoted before rounding so repeated
// operations cannot accumulate drift.
type FeeCalculator struct {
	rate decimal.Decimal
}

// NewFeeCalculator creates a calculator for the given surcharge rate,
// e.g. 0.029 for 2.9%. The rate must lie in [0, 1).
func NewFeeCalculator(rate decimal.Decimal) (*FeeCalculator, error) {
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, shared.NewDomainError("INVALID_INPUT", "fee rate must be in [0, 1)")
	}
	return &FeeCalculator{rate: rate}, nil
}

// Rate returns the configured surcharge rate
func (c *FeeCalculator) Rate() decimal.Decimal {
	return c.rate
}

// FeeBreakdown is a fee computation result: total = base + fee always holds
type FeeBreakdown struct {
	Base  valueobject.Money
	Fee   valueobject.Money
	Total valueobject.Money
}

// Forward computes the fee on top of a base amount:
// fee = round(base_cents * rate), total = base + fee.
// Non-card methods never carry a fee.
func (c *FeeCalculator) Forward(base valueobject.Money, method PaymentMethod) (FeeBreakdown, error) {
	if base.IsNegative() {
		return FeeBreakdown{}, shared.NewDomainError("INVALID_INPUT", "base amount cannot be negative")
	}
	if method != MethodCard {
		return FeeBreakdown{
			Base:  base,
			Fee:   valueobject.Zero(base.Currency()),
			Total: base,
		}, nil
	}

	feeCents := decimal.NewFromInt(base.Cents()).Mul(c.rate).Round(0).IntPart()
	fee := valueobject.NewMoneyFromCents(feeCents, base.Currency())
	total, err := base.Add(fee)
	if err != nil {
		return FeeBreakdown{}, err
	}
	return FeeBreakdown{Base: base, Fee: fee, Total: total}, nil
}

// Backward splits a fee-inclusive total back into base and fee, used when the
// operator enters a single "amount to charge" that already includes the
// surcharge: base_cents = round(total_cents / (1 + rate)), fee = total - base.
// Forward and Backward agree within one cent of rounding tolerance.
func (c *FeeCalculator) Backward(total valueobject.Money, method PaymentMethod) (FeeBreakdown, error) {
	if total.IsNegative() {
		return FeeBreakdown{}, shared.NewDomainError("INVALID_INPUT", "total amount cannot be negative")
	}
	if method != MethodCard {
		return FeeBreakdown{
			Base:  total,
			Fee:   valueobject.Zero(total.Currency()),
			Total: total,
		}, nil
	}

	divisor := decimal.NewFromInt(1).Add(c.rate)
	baseCents := decimal.NewFromInt(total.Cents()).Div(divisor).Round(0).IntPart()
	base := valueobject.NewMoneyFromCents(baseCents, total.Currency())
	fee, err := total.Subtract(base)
	if err != nil {
		return FeeBreakdown{}, err
	}
	return FeeBreakdown{Base: base, Fee: fee, Total: total}, nil
}
