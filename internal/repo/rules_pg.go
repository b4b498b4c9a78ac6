package repo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/quote"
	"github.com/noah-isme/pricing-api/internal/rules"
)

// ErrStoreUnavailable is returned when the store has no usable pool.
var ErrStoreUnavailable = errors.New("repo: store unavailable")

// Store loads pricing rules, product prices and category memberships from
// Postgres. It backs both the rule container provider and the quote catalog.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger

	mu      sync.Mutex
	cached  *rules.Container
	expires time.Time
}

func NewStore(pool *pgxpool.Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, log: log.With().Str("component", "repo").Logger()}
}

// ProductPrice implements quote.Catalog.
func (s *Store) ProductPrice(ctx context.Context, productID uuid.UUID) (quote.Price, error) {
	if s == nil || s.pool == nil {
		return quote.Price{}, ErrStoreUnavailable
	}
	var regularRaw string
	var saleRaw *string
	err := s.pool.QueryRow(ctx,
		`SELECT regular_price::text, sale_price::text FROM products WHERE id = $1`,
		productID,
	).Scan(&regularRaw, &saleRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return quote.Price{}, quote.ErrProductNotFound
	}
	if err != nil {
		return quote.Price{}, err
	}

	var price quote.Price
	if price.Regular, err = decimal.NewFromString(regularRaw); err != nil {
		return quote.Price{}, err
	}
	if price.Sale, err = parsePrice(saleRaw); err != nil {
		return quote.Price{}, err
	}
	return price, nil
}

// CategoryIDs implements rules.CategoryLookup.
func (s *Store) CategoryIDs(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx,
		`SELECT category_id FROM product_categories WHERE product_id = $1`,
		productID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadContainer reads the full rule configuration in one pass.
func (s *Store) LoadContainer(ctx context.Context) (*rules.Container, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}

	c := &rules.Container{ProductTiers: make(map[uuid.UUID][]rules.Tier)}

	if err := s.pool.QueryRow(ctx,
		`SELECT active FROM pricing_settings LIMIT 1`,
	).Scan(&c.Active); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if err := s.loadProductTiers(ctx, c); err != nil {
		return nil, err
	}
	if err := s.loadRuleSets(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) loadProductTiers(ctx context.Context, c *rules.Container) error {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, from_qty, to_qty, kind, amount::text
         FROM product_price_tiers
         ORDER BY product_id, position`,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID uuid.UUID
			tier      rules.Tier
			kind      string
			amountRaw string
		)
		if err := rows.Scan(&productID, &tier.FromQty, &tier.ToQty, &kind, &amountRaw); err != nil {
			return err
		}
		tier.Kind = rules.TierKind(kind)
		if tier.Amount, err = decimal.NewFromString(amountRaw); err != nil {
			return err
		}
		c.ProductTiers[productID] = append(c.ProductTiers[productID], tier)
	}
	return rows.Err()
}

func (s *Store) loadRuleSets(ctx context.Context, c *rules.Container) error {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.source, t.from_qty, t.to_qty, t.kind, t.amount::text
         FROM pricing_rules r
         JOIN pricing_rule_tiers t ON t.rule_id = r.id
         ORDER BY r.source, r.position, t.position`,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	sets := make(map[uuid.UUID]*rules.RuleSet)
	var order []uuid.UUID
	sources := make(map[uuid.UUID]rules.Source)
	for rows.Next() {
		var (
			ruleID    uuid.UUID
			source    string
			tier      rules.Tier
			kind      string
			amountRaw string
		)
		if err := rows.Scan(&ruleID, &source, &tier.FromQty, &tier.ToQty, &kind, &amountRaw); err != nil {
			return err
		}
		tier.Kind = rules.TierKind(kind)
		if tier.Amount, err = decimal.NewFromString(amountRaw); err != nil {
			return err
		}
		set, ok := sets[ruleID]
		if !ok {
			set = &rules.RuleSet{ID: ruleID}
			sets[ruleID] = set
			order = append(order, ruleID)
			sources[ruleID] = rules.Source(source)
		}
		set.Tiers = append(set.Tiers, tier)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if err := s.loadTargets(ctx, sets); err != nil {
		return err
	}

	for _, id := range order {
		set := *sets[id]
		switch sources[id] {
		case rules.SourceAdvancedProduct:
			c.AdvancedProduct = append(c.AdvancedProduct, set)
		case rules.SourceAdvancedCategory:
			c.AdvancedCategory = append(c.AdvancedCategory, set)
		case rules.SourceSimpleBulk:
			c.SimpleBulk = append(c.SimpleBulk, set)
		case rules.SourceGlobalManager:
			c.Global = append(c.Global, set)
		default:
			s.log.Warn().Str("source", string(sources[id])).Stringer("rule_id", id).Msg("unknown rule source, skipping")
		}
	}
	return nil
}

func (s *Store) loadTargets(ctx context.Context, sets map[uuid.UUID]*rules.RuleSet) error {
	if len(sets) == 0 {
		return nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT rule_id, target_id FROM pricing_rule_targets`,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ruleID, targetID uuid.UUID
		if err := rows.Scan(&ruleID, &targetID); err != nil {
			return err
		}
		if set, ok := sets[ruleID]; ok {
			set.Targets = append(set.Targets, targetID)
		}
	}
	return rows.Err()
}

// Provider returns a rules.Provider backed by a cached container snapshot.
// The cache is refreshed at most once per ttl; a failed refresh keeps serving
// the last good snapshot so pricing survives transient database outages.
func (s *Store) Provider(ttl time.Duration) rules.Provider {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return func() *rules.Container {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cached != nil && time.Now().Before(s.expires) {
			return s.cached
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := s.LoadContainer(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("rule container refresh failed, serving stale snapshot")
			s.expires = time.Now().Add(ttl / 2)
			return s.cached
		}
		s.cached = c
		s.expires = time.Now().Add(ttl)
		return c
	}
}

func parsePrice(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
