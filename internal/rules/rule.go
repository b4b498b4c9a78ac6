package rules

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source identifies which rule container a rule was normalized from.
type Source string

const (
	// SourceProductMeta holds rules attached directly to a product.
	SourceProductMeta Source = "product_meta"
	// SourceAdvancedProduct holds global advanced rules targeting specific products.
	SourceAdvancedProduct Source = "advanced_product"
	// SourceAdvancedCategory holds global advanced rules targeting categories.
	SourceAdvancedCategory Source = "advanced_category"
	// SourceSimpleBulk holds simple bulk rule sets targeting specific products.
	SourceSimpleBulk Source = "simple_bulk"
	// SourceGlobalManager holds catch-all rules applying to every product.
	SourceGlobalManager Source = "global_manager"
)

// TierKind selects how a matching tier computes the unit price.
type TierKind string

const (
	// KindFixedPrice sets the unit price to the tier amount.
	KindFixedPrice TierKind = "fixed"
	// KindPercentageOff discounts the base price by the tier amount percent.
	KindPercentageOff TierKind = "percentage"
	// KindRawAmount is the fallback for tiers that declare an amount without a
	// recognized kind; it behaves like a fixed price.
	KindRawAmount TierKind = "raw"
)

// Tier maps an inclusive quantity range to a pricing outcome. A nil ToQty
// means the range is unbounded above.
type Tier struct {
	FromQty int
	ToQty   *int
	Kind    TierKind
	Amount  decimal.Decimal
}

// Matches reports whether the quantity falls inside the tier range.
func (t Tier) Matches(qty int) bool {
	if qty < t.FromQty {
		return false
	}
	return t.ToQty == nil || qty <= *t.ToQty
}

// Valid reports whether the tier carries the fields required to price it.
// Tiers failing this check are skipped during normalization.
func (t Tier) Valid() bool {
	if t.FromQty < 0 {
		return false
	}
	if t.ToQty != nil && *t.ToQty < t.FromQty {
		return false
	}
	return !t.Amount.IsNegative()
}

// Rule is an ordered collection of tiers plus its originating source and
// optional target scope. Rules are immutable once resolved for a request.
type Rule struct {
	ID      uuid.UUID
	Source  Source
	Tiers   []Tier
	Targets []uuid.UUID
}

// RuleSet is the raw container shape shared by the non-product-scoped
// sources: a tier list plus the product or category ids it targets. An empty
// target list means the set applies everywhere its source applies.
type RuleSet struct {
	ID      uuid.UUID
	Targets []uuid.UUID
	Tiers   []Tier
}

// TargetsContain reports whether any of the candidate ids is targeted.
func (rs RuleSet) TargetsContain(ids ...uuid.UUID) bool {
	if len(rs.Targets) == 0 {
		return true
	}
	for _, target := range rs.Targets {
		for _, id := range ids {
			if target == id {
				return true
			}
		}
	}
	return false
}

// validTiers filters out malformed tiers, preserving order.
func validTiers(tiers []Tier) []Tier {
	out := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.Valid() {
			out = append(out, t)
		}
	}
	return out
}

// UpTo is a convenience for building bounded tiers.
func UpTo(qty int) *int {
	return &qty
}
