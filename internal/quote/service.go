package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/obs"
	"github.com/noah-isme/pricing-api/internal/pricing"
	"github.com/noah-isme/pricing-api/internal/rules"
)

// ErrProductNotFound indicates the product id could not be resolved.
var ErrProductNotFound = errors.New("quote: product not found")

// Price holds a product's catalog prices. The effective base price is the
// sale price when set and lower than the regular price.
type Price struct {
	Regular decimal.Decimal
	Sale    *decimal.Decimal
}

// Base returns the effective base price.
func (p Price) Base() decimal.Decimal {
	return pricing.BasePrice(p.Regular, p.Sale)
}

// Catalog resolves product prices. Backed by the Postgres repository in
// production and by fakes in tests.
type Catalog interface {
	ProductPrice(ctx context.Context, productID uuid.UUID) (Price, error)
}

// AppliedRule describes the rule and tier a quote was priced by.
type AppliedRule struct {
	Source  rules.Source `json:"source"`
	FromQty int          `json:"fromQty"`
	ToQty   *int         `json:"toQty,omitempty"`
	Kind    rules.TierKind `json:"kind"`
}

// Quote is the price lookup result returned to AJAX callers.
type Quote struct {
	ProductID  uuid.UUID       `json:"productId"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	BasePrice  decimal.Decimal `json:"basePrice"`
	Rule       *AppliedRule    `json:"ruleApplied,omitempty"`
}

// Service resolves tiered quantity prices.
type Service struct {
	Resolver *rules.Resolver
	Catalog  Catalog
	Log      zerolog.Logger
}

// Lookup prices the product at the requested quantity. Quantities below one
// are clamped to one before evaluation. When no rule source is available the
// base price is returned, never an error.
func (s *Service) Lookup(ctx context.Context, productID uuid.UUID, qty int) (Quote, error) {
	if s == nil || s.Catalog == nil {
		return Quote{}, errors.New("quote: service not configured")
	}
	if productID == uuid.Nil {
		obs.ObservePriceLookup("invalid_product")
		return Quote{}, ErrProductNotFound
	}
	if qty < 1 {
		qty = 1
	}

	price, err := s.Catalog.ProductPrice(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			obs.ObservePriceLookup("invalid_product")
			return Quote{}, err
		}
		obs.ObservePriceLookup("catalog_error")
		return Quote{}, fmt.Errorf("quote: catalog lookup: %w", err)
	}
	base := price.Base()

	resolved := s.Resolver.Resolve(ctx, productID)
	result := pricing.Evaluate(resolved, qty, base)

	quote := Quote{
		ProductID:  productID,
		Quantity:   qty,
		UnitPrice:  result.UnitPrice,
		TotalPrice: result.UnitPrice.Mul(decimal.New(int64(qty), 0)),
		BasePrice:  base,
	}
	if result.Applied() {
		quote.Rule = &AppliedRule{
			Source:  result.Rule.Source,
			FromQty: result.Tier.FromQty,
			ToQty:   result.Tier.ToQty,
			Kind:    result.Tier.Kind,
		}
		obs.ObservePriceLookup("tiered")
		obs.ObserveRuleApplied(string(result.Rule.Source))
	} else {
		obs.ObservePriceLookup("base_price")
	}
	return quote, nil
}
