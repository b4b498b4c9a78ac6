package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/rules"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return d
}

func fixedTier(from int, to *int, amount string) rules.Tier {
	return rules.Tier{FromQty: from, ToQty: to, Kind: rules.KindFixedPrice, Amount: decimal.RequireFromString(amount)}
}

func TestEvaluateTierSelection(t *testing.T) {
	rule := rules.Rule{Source: rules.SourceProductMeta, Tiers: []rules.Tier{
		fixedTier(1, rules.UpTo(4), "10"),
		fixedTier(5, rules.UpTo(9), "8"),
		fixedTier(10, nil, "6"),
	}}
	base := dec(t, "12.50")

	cases := []struct {
		qty  int
		want string
	}{
		{3, "10"},
		{7, "8"},
		{50, "6"},
	}
	for _, tc := range cases {
		res := Evaluate([]rules.Rule{rule}, tc.qty, base)
		if !res.Applied() {
			t.Fatalf("qty %d: expected a tier to apply", tc.qty)
		}
		if !res.UnitPrice.Equal(dec(t, tc.want)) {
			t.Fatalf("qty %d: expected unit price %s, got %s", tc.qty, tc.want, res.UnitPrice)
		}
	}
}

func TestEvaluatePercentageExact(t *testing.T) {
	rule := rules.Rule{Source: rules.SourceGlobalManager, Tiers: []rules.Tier{
		{FromQty: 10, Kind: rules.KindPercentageOff, Amount: dec(t, "15")},
	}}
	res := Evaluate([]rules.Rule{rule}, 10, dec(t, "100.00"))
	if !res.UnitPrice.Equal(dec(t, "85.00")) {
		t.Fatalf("expected exactly 85.00, got %s", res.UnitPrice)
	}
}

func TestEvaluateFirstMatchWinsAcrossRules(t *testing.T) {
	higher := rules.Rule{Source: rules.SourceProductMeta, Tiers: []rules.Tier{
		fixedTier(1, nil, "9"),
	}}
	lower := rules.Rule{Source: rules.SourceGlobalManager, Tiers: []rules.Tier{
		fixedTier(1, nil, "5"),
	}}
	res := Evaluate([]rules.Rule{higher, lower}, 3, dec(t, "10"))
	if res.Rule == nil || res.Rule.Source != rules.SourceProductMeta {
		t.Fatalf("expected the higher precedence rule to win, got %+v", res.Rule)
	}
	if !res.UnitPrice.Equal(dec(t, "9")) {
		t.Fatalf("expected 9 even though a later rule discounts more, got %s", res.UnitPrice)
	}
}

func TestEvaluateFallsThroughNonMatchingRule(t *testing.T) {
	noMatch := rules.Rule{Source: rules.SourceProductMeta, Tiers: []rules.Tier{
		fixedTier(10, nil, "6"),
	}}
	match := rules.Rule{Source: rules.SourceSimpleBulk, Tiers: []rules.Tier{
		fixedTier(2, nil, "8"),
	}}
	res := Evaluate([]rules.Rule{noMatch, match}, 3, dec(t, "10"))
	if res.Rule == nil || res.Rule.Source != rules.SourceSimpleBulk {
		t.Fatalf("expected the lower precedence rule to apply, got %+v", res.Rule)
	}
}

func TestEvaluateNoRulesReturnsBase(t *testing.T) {
	base := dec(t, "24.99")
	res := Evaluate(nil, 5, base)
	if res.Applied() {
		t.Fatalf("expected no rule applied")
	}
	if !res.UnitPrice.Equal(base) {
		t.Fatalf("expected base price %s, got %s", base, res.UnitPrice)
	}
}

func TestEvaluateRawAmountFallback(t *testing.T) {
	rule := rules.Rule{Source: rules.SourceSimpleBulk, Tiers: []rules.Tier{
		{FromQty: 1, Kind: rules.TierKind("mystery"), Amount: dec(t, "7.25")},
	}}
	res := Evaluate([]rules.Rule{rule}, 2, dec(t, "10"))
	if !res.UnitPrice.Equal(dec(t, "7.25")) {
		t.Fatalf("expected raw amount to act as fixed price, got %s", res.UnitPrice)
	}
}

func TestBasePrice(t *testing.T) {
	regular := dec(t, "20.00")
	sale := dec(t, "15.00")
	if got := BasePrice(regular, &sale); !got.Equal(sale) {
		t.Fatalf("expected sale price, got %s", got)
	}
	higherSale := dec(t, "25.00")
	if got := BasePrice(regular, &higherSale); !got.Equal(regular) {
		t.Fatalf("expected regular price when sale is higher, got %s", got)
	}
	if got := BasePrice(regular, nil); !got.Equal(regular) {
		t.Fatalf("expected regular price without sale, got %s", got)
	}
}
