package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PriceLookupTotal counts tier price lookups by outcome.
	PriceLookupTotal *prometheus.CounterVec
	// PriceRuleApplied counts lookups where a tier matched, by source.
	PriceRuleApplied *prometheus.CounterVec
	// FeeReconcileTotal counts reconcile passes by outcome.
	FeeReconcileTotal *prometheus.CounterVec
	// FeeWritesTotal counts actual fee-list rewrites. The idempotence guard
	// keeps this at one per distinct cart fingerprint.
	FeeWritesTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PriceLookupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_lookup_total",
			Help:      "Count of tier price lookups by outcome.",
		}, []string{"result"})
		PriceRuleApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_rule_applied_total",
			Help:      "Count of lookups resolved by a pricing rule, by source.",
		}, []string{"source"})
		FeeReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_reconcile_total",
			Help:      "Count of surcharge reconcile passes by outcome.",
		}, []string{"result"})
		FeeWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_writes_total",
			Help:      "Number of times the cart fee list was rewritten.",
		})
		reg.MustRegister(PriceLookupTotal, PriceRuleApplied, FeeReconcileTotal, FeeWritesTotal)
	})
}

// ObservePriceLookup records a lookup outcome. Safe to call before registration.
func ObservePriceLookup(result string) {
	if PriceLookupTotal != nil {
		PriceLookupTotal.WithLabelValues(result).Inc()
	}
}

// ObserveRuleApplied records which source priced a lookup.
func ObserveRuleApplied(source string) {
	if PriceRuleApplied != nil {
		PriceRuleApplied.WithLabelValues(source).Inc()
	}
}

// ObserveFeeReconcile records a reconcile outcome. Safe to call before registration.
func ObserveFeeReconcile(result string) {
	if FeeReconcileTotal != nil {
		FeeReconcileTotal.WithLabelValues(result).Inc()
	}
}

// ObserveFeeWrite records a fee-list rewrite. Safe to call before registration.
func ObserveFeeWrite() {
	if FeeWritesTotal != nil {
		FeeWritesTotal.Inc()
	}
}
