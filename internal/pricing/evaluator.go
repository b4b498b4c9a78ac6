package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/rules"
)

var oneHundred = decimal.New(100, 0)

// Result carries the outcome of a tier evaluation. When no tier matched,
// UnitPrice equals BasePrice and Rule/Tier are nil.
type Result struct {
	UnitPrice decimal.Decimal
	BasePrice decimal.Decimal
	Rule      *rules.Rule
	Tier      *rules.Tier
}

// Applied reports whether a tier produced the unit price.
func (r Result) Applied() bool {
	return r.Rule != nil && r.Tier != nil
}

// Evaluate walks the rules in resolver order and, within each rule, the tiers
// in their given order, computing the unit price from the first matching
// tier.
//
// First-match-wins is a strict contract, not an optimization: when tiers from
// independent sources overlap, the earliest source in precedence order
// decides the price, even if a later source would discount more. Callers must
// clamp quantity to at least 1 before calling; the evaluator does not clamp.
func Evaluate(ruleList []rules.Rule, qty int, basePrice decimal.Decimal) Result {
	for i := range ruleList {
		for j := range ruleList[i].Tiers {
			tier := ruleList[i].Tiers[j]
			if !tier.Matches(qty) {
				continue
			}
			return Result{
				UnitPrice: unitPrice(tier, basePrice),
				BasePrice: basePrice,
				Rule:      &ruleList[i],
				Tier:      &ruleList[i].Tiers[j],
			}
		}
	}
	return Result{UnitPrice: basePrice, BasePrice: basePrice}
}

func unitPrice(tier rules.Tier, basePrice decimal.Decimal) decimal.Decimal {
	switch tier.Kind {
	case rules.KindPercentageOff:
		off := basePrice.Mul(tier.Amount).Div(oneHundred)
		return basePrice.Sub(off)
	case rules.KindFixedPrice:
		return tier.Amount
	default:
		// Unrecognized kinds with a declared amount degrade to fixed price.
		return tier.Amount
	}
}

// BasePrice picks the effective base: the sale price when one is set and
// lower than the regular price, else the regular price.
func BasePrice(regular decimal.Decimal, sale *decimal.Decimal) decimal.Decimal {
	if sale != nil && sale.LessThan(regular) {
		return *sale
	}
	return regular
}
