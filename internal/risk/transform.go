// Package risk computes a subscriber's copy quantity for a source trade.
package risk

import (
	"copyflow/internal/domain"
	"copyflow/internal/rules"

	"github.com/shopspring/decimal"
)

// CopyQuantity scales the source quantity by the subscriber's risk
// multiplier, clamps it against the subscriber's notional cap, then quantizes
// it under the symbol rule. Quantization only ever rounds down, so the result
// never exceeds the risk-adjusted ceiling.
//
// ok is false when the pair must be skipped: zero multiplier, a quantity that
// quantizes to nothing, or a notional below the rule's minimum. A skip is not
// an error and must not produce a ledger write.
func CopyQuantity(sourceQty, price float64, sub domain.Subscriber, rule rules.Rule) (finalQty, notionalUSD float64, ok bool) {
	if sourceQty <= 0 || price <= 0 || sub.RiskMultiplier <= 0 {
		return 0, 0, false
	}

	px := decimal.NewFromFloat(price)
	desired := decimal.NewFromFloat(sourceQty).Mul(decimal.NewFromFloat(sub.RiskMultiplier))

	if sub.MaxNotionalUSD > 0 {
		maxNotional := decimal.NewFromFloat(sub.MaxNotionalUSD)
		if desired.Mul(px).GreaterThan(maxNotional) {
			desired = maxNotional.Div(px)
		}
	}

	qty := quantize(desired, rule)
	if !qty.IsPositive() {
		return 0, 0, false
	}

	notional := qty.Mul(px)
	if notional.LessThanOrEqual(decimal.Zero) {
		return 0, 0, false
	}
	if rule.MinNotional > 0 && notional.LessThan(decimal.NewFromFloat(rule.MinNotional)) {
		return 0, 0, false
	}

	finalQty, _ = qty.Float64()
	notionalUSD, _ = notional.Float64()
	return finalQty, notionalUSD, true
}

// quantize floors qty to the nearest step multiple, then drops digits beyond
// the rule's precision. Both operations shrink, never grow.
func quantize(qty decimal.Decimal, rule rules.Rule) decimal.Decimal {
	step := decimal.NewFromFloat(rule.StepSize)
	if step.IsPositive() {
		qty = qty.Div(step).Floor().Mul(step)
	}
	return qty.RoundFloor(int32(rule.Precision))
}
