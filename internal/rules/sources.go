package rules

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrSourceUnavailable signals that a source's backing container is absent or
// inactive. Resolution treats it as "no rules", never as a failure.
var ErrSourceUnavailable = errors.New("rules: source unavailable")

// Container holds the already-materialized rule data the host supplies before
// resolution. The core never performs I/O of its own; a repository (or the
// host framework) fills this in up front.
type Container struct {
	// Active mirrors the pricing extension toggle. When false every source
	// reports unavailable and resolution short-circuits.
	Active bool

	ProductTiers     map[uuid.UUID][]Tier
	AdvancedProduct  []RuleSet
	AdvancedCategory []RuleSet
	SimpleBulk       []RuleSet
	Global           []RuleSet
}

// Provider yields the current container. Indirection allows the host to swap
// in refreshed rule data without rebuilding adapters.
type Provider func() *Container

// CategoryLookup resolves the category ids a product belongs to. A failed
// lookup yields no category-scoped rules rather than failing resolution.
type CategoryLookup interface {
	CategoryIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error)
}

// SourceAdapter normalizes one rule container into the common rule shape.
// Implementations return an empty slice, never an error, when the backing
// source is absent or its data is malformed.
type SourceAdapter interface {
	Source() Source
	Available() bool
	Fetch(ctx context.Context, productID uuid.UUID) ([]Rule, error)
}

// NewSources builds the five adapters in resolver precedence order.
func NewSources(p Provider, categories CategoryLookup) []SourceAdapter {
	return []SourceAdapter{
		ProductMetaSource{Rules: p},
		AdvancedProductSource{Rules: p},
		AdvancedCategorySource{Rules: p, Categories: categories},
		SimpleBulkSource{Rules: p},
		GlobalManagerSource{Rules: p},
	}
}

func containerOf(p Provider) *Container {
	if p == nil {
		return nil
	}
	return p()
}

// ProductMetaSource adapts per-product tier lists attached to the product
// itself. Highest precedence.
type ProductMetaSource struct {
	Rules Provider
}

func (s ProductMetaSource) Source() Source { return SourceProductMeta }

func (s ProductMetaSource) Available() bool {
	c := containerOf(s.Rules)
	return c != nil && c.Active && len(c.ProductTiers) > 0
}

func (s ProductMetaSource) Fetch(_ context.Context, productID uuid.UUID) ([]Rule, error) {
	c := containerOf(s.Rules)
	if c == nil || !c.Active || productID == uuid.Nil {
		return nil, nil
	}
	tiers := validTiers(c.ProductTiers[productID])
	if len(tiers) == 0 {
		return nil, nil
	}
	return []Rule{{Source: SourceProductMeta, Tiers: tiers}}, nil
}

// AdvancedProductSource adapts global advanced rule sets filtered by target
// product id.
type AdvancedProductSource struct {
	Rules Provider
}

func (s AdvancedProductSource) Source() Source { return SourceAdvancedProduct }

func (s AdvancedProductSource) Available() bool {
	c := containerOf(s.Rules)
	return c != nil && c.Active && len(c.AdvancedProduct) > 0
}

func (s AdvancedProductSource) Fetch(_ context.Context, productID uuid.UUID) ([]Rule, error) {
	c := containerOf(s.Rules)
	if c == nil || !c.Active || productID == uuid.Nil {
		return nil, nil
	}
	return fromRuleSets(c.AdvancedProduct, SourceAdvancedProduct, productID), nil
}

// AdvancedCategorySource adapts global advanced rule sets filtered by the
// product's category ids.
type AdvancedCategorySource struct {
	Rules      Provider
	Categories CategoryLookup
}

func (s AdvancedCategorySource) Source() Source { return SourceAdvancedCategory }

func (s AdvancedCategorySource) Available() bool {
	c := containerOf(s.Rules)
	return c != nil && c.Active && len(c.AdvancedCategory) > 0 && s.Categories != nil
}

func (s AdvancedCategorySource) Fetch(ctx context.Context, productID uuid.UUID) ([]Rule, error) {
	c := containerOf(s.Rules)
	if c == nil || !c.Active || productID == uuid.Nil || s.Categories == nil {
		return nil, nil
	}
	categoryIDs, err := s.Categories.CategoryIDs(ctx, productID)
	if err != nil {
		// A failed category lookup yields no rules, not a failed resolution.
		return nil, nil
	}
	if len(categoryIDs) == 0 {
		return nil, nil
	}
	return fromRuleSets(c.AdvancedCategory, SourceAdvancedCategory, categoryIDs...), nil
}

// SimpleBulkSource adapts simple bulk rule sets filtered by target product id.
type SimpleBulkSource struct {
	Rules Provider
}

func (s SimpleBulkSource) Source() Source { return SourceSimpleBulk }

func (s SimpleBulkSource) Available() bool {
	c := containerOf(s.Rules)
	return c != nil && c.Active && len(c.SimpleBulk) > 0
}

func (s SimpleBulkSource) Fetch(_ context.Context, productID uuid.UUID) ([]Rule, error) {
	c := containerOf(s.Rules)
	if c == nil || !c.Active || productID == uuid.Nil {
		return nil, nil
	}
	return fromRuleSets(c.SimpleBulk, SourceSimpleBulk, productID), nil
}

// GlobalManagerSource adapts the catch-all manager rules. Lowest precedence;
// target lists are ignored because these rules apply to every product.
type GlobalManagerSource struct {
	Rules Provider
}

func (s GlobalManagerSource) Source() Source { return SourceGlobalManager }

func (s GlobalManagerSource) Available() bool {
	c := containerOf(s.Rules)
	return c != nil && c.Active && len(c.Global) > 0
}

func (s GlobalManagerSource) Fetch(_ context.Context, productID uuid.UUID) ([]Rule, error) {
	c := containerOf(s.Rules)
	if c == nil || !c.Active || productID == uuid.Nil {
		return nil, nil
	}
	out := make([]Rule, 0, len(c.Global))
	for _, set := range c.Global {
		tiers := validTiers(set.Tiers)
		if len(tiers) == 0 {
			continue
		}
		out = append(out, Rule{ID: set.ID, Source: SourceGlobalManager, Tiers: tiers})
	}
	return out, nil
}

func fromRuleSets(sets []RuleSet, source Source, targetIDs ...uuid.UUID) []Rule {
	var out []Rule
	for _, set := range sets {
		if !set.TargetsContain(targetIDs...) {
			continue
		}
		tiers := validTiers(set.Tiers)
		if len(tiers) == 0 {
			continue
		}
		out = append(out, Rule{ID: set.ID, Source: source, Tiers: tiers, Targets: set.Targets})
	}
	return out
}
