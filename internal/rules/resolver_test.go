package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type staticCategories struct {
	ids map[uuid.UUID][]uuid.UUID
	err error
}

func (s staticCategories) CategoryIDs(_ context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ids[productID], nil
}

func tier(from int, amount string) Tier {
	return Tier{FromQty: from, Kind: KindFixedPrice, Amount: decimal.RequireFromString(amount)}
}

func testContainer(productID, categoryID uuid.UUID) *Container {
	return &Container{
		Active: true,
		ProductTiers: map[uuid.UUID][]Tier{
			productID: {tier(1, "10")},
		},
		AdvancedProduct: []RuleSet{
			{Targets: []uuid.UUID{productID}, Tiers: []Tier{tier(5, "9")}},
			{Targets: []uuid.UUID{uuid.New()}, Tiers: []Tier{tier(1, "1")}},
		},
		AdvancedCategory: []RuleSet{
			{Targets: []uuid.UUID{categoryID}, Tiers: []Tier{tier(10, "8")}},
		},
		SimpleBulk: []RuleSet{
			{Targets: []uuid.UUID{productID}, Tiers: []Tier{tier(20, "7")}},
		},
		Global: []RuleSet{
			{Tiers: []Tier{tier(50, "6")}},
		},
	}
}

func TestResolvePrecedenceOrder(t *testing.T) {
	productID := uuid.New()
	categoryID := uuid.New()
	container := testContainer(productID, categoryID)
	cats := staticCategories{ids: map[uuid.UUID][]uuid.UUID{productID: {categoryID}}}
	resolver := NewResolver(func() *Container { return container }, cats, zerolog.Nop())

	resolved := resolver.Resolve(context.Background(), productID)
	want := []Source{SourceProductMeta, SourceAdvancedProduct, SourceAdvancedCategory, SourceSimpleBulk, SourceGlobalManager}
	if len(resolved) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(resolved))
	}
	for i, src := range want {
		if resolved[i].Source != src {
			t.Fatalf("position %d: expected source %s, got %s", i, src, resolved[i].Source)
		}
	}
}

func TestResolveInactiveExtensionShortCircuits(t *testing.T) {
	productID := uuid.New()
	container := testContainer(productID, uuid.New())
	container.Active = false
	resolver := NewResolver(func() *Container { return container }, staticCategories{}, zerolog.Nop())

	if resolved := resolver.Resolve(context.Background(), productID); resolved != nil {
		t.Fatalf("expected no rules when extension inactive, got %d", len(resolved))
	}
}

func TestResolveCategoryLookupFailureYieldsNoCategoryRules(t *testing.T) {
	productID := uuid.New()
	categoryID := uuid.New()
	container := testContainer(productID, categoryID)
	resolver := NewResolver(func() *Container { return container }, staticCategories{err: errors.New("lookup down")}, zerolog.Nop())

	resolved := resolver.Resolve(context.Background(), productID)
	for _, rule := range resolved {
		if rule.Source == SourceAdvancedCategory {
			t.Fatalf("expected no category rules when lookup fails")
		}
	}
	if len(resolved) == 0 {
		t.Fatalf("expected remaining sources to still resolve")
	}
}

type failingSource struct{}

func (failingSource) Source() Source  { return SourceSimpleBulk }
func (failingSource) Available() bool { return true }
func (failingSource) Fetch(context.Context, uuid.UUID) ([]Rule, error) {
	return nil, errors.New("container corrupt")
}

func TestResolveIsolatesSourceFailures(t *testing.T) {
	productID := uuid.New()
	container := &Container{
		Active:       true,
		ProductTiers: map[uuid.UUID][]Tier{productID: {tier(1, "10")}},
	}
	provider := func() *Container { return container }
	resolver := &Resolver{
		Sources: []SourceAdapter{failingSource{}, ProductMetaSource{Rules: provider}},
		Log:     zerolog.Nop(),
	}

	resolved := resolver.Resolve(context.Background(), productID)
	if len(resolved) != 1 || resolved[0].Source != SourceProductMeta {
		t.Fatalf("expected the healthy source to survive a failing one, got %+v", resolved)
	}
}

func TestResolveUnknownProduct(t *testing.T) {
	container := testContainer(uuid.New(), uuid.New())
	resolver := NewResolver(func() *Container { return container }, staticCategories{}, zerolog.Nop())
	if resolved := resolver.Resolve(context.Background(), uuid.Nil); resolved != nil {
		t.Fatalf("expected nil for the zero product id")
	}
}

func TestMalformedTiersSkipped(t *testing.T) {
	productID := uuid.New()
	bad := Tier{FromQty: 5, ToQty: UpTo(2), Kind: KindFixedPrice, Amount: decimal.RequireFromString("4")}
	negative := Tier{FromQty: 1, Kind: KindFixedPrice, Amount: decimal.RequireFromString("-3")}
	container := &Container{
		Active: true,
		ProductTiers: map[uuid.UUID][]Tier{
			productID: {bad, negative, tier(1, "10")},
		},
	}
	resolver := NewResolver(func() *Container { return container }, staticCategories{}, zerolog.Nop())

	resolved := resolver.Resolve(context.Background(), productID)
	if len(resolved) != 1 {
		t.Fatalf("expected one rule, got %d", len(resolved))
	}
	if len(resolved[0].Tiers) != 1 {
		t.Fatalf("expected malformed tiers to be skipped, got %d tiers", len(resolved[0].Tiers))
	}
}
