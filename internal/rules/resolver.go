package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SourceError records a source that failed during resolution. Failures are
// isolated per source: one bad container never blocks the others.
type SourceError struct {
	Source Source
	Err    error
}

// Error implements the error interface.
func (e SourceError) Error() string {
	return fmt.Sprintf("rules: source %s: %v", e.Source, e.Err)
}

// Unwrap exposes the underlying source failure.
func (e SourceError) Unwrap() error { return e.Err }

// Resolver aggregates all applicable rules for a product across the
// configured sources, preserving their fixed precedence order.
type Resolver struct {
	Sources []SourceAdapter
	Log     zerolog.Logger
}

// NewResolver wires the default source precedence over the provided
// container: product meta, advanced product, advanced category, simple bulk,
// then the global manager.
func NewResolver(p Provider, categories CategoryLookup, log zerolog.Logger) *Resolver {
	return &Resolver{Sources: NewSources(p, categories), Log: log}
}

// Resolve returns every rule applicable to the product, concatenated in
// source precedence order. It never fails: an unavailable source contributes
// no rules, and a source error is logged and skipped. When no source is
// available at all (the pricing extension is inactive) resolution
// short-circuits to an empty list.
func (r *Resolver) Resolve(ctx context.Context, productID uuid.UUID) []Rule {
	if r == nil || len(r.Sources) == 0 || productID == uuid.Nil {
		return nil
	}
	if !r.anyAvailable() {
		return nil
	}
	var resolved []Rule
	for _, src := range r.Sources {
		if src == nil || !src.Available() {
			continue
		}
		fetched, err := src.Fetch(ctx, productID)
		if err != nil {
			serr := SourceError{Source: src.Source(), Err: err}
			r.Log.Warn().
				Str("source", string(src.Source())).
				Str("product_id", productID.String()).
				Err(serr).
				Msg("rule source failed")
			continue
		}
		resolved = append(resolved, fetched...)
	}
	return resolved
}

func (r *Resolver) anyAvailable() bool {
	for _, src := range r.Sources {
		if src != nil && src.Available() {
			return true
		}
	}
	return false
}
