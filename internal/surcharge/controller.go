package surcharge

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/pricing-api/internal/cartstate"
	"github.com/noah-isme/pricing-api/internal/obs"
)

// ErrNotConfigured is returned when the controller is missing its store.
var ErrNotConfigured = errors.New("surcharge: controller not configured")

// ComputeFunc derives the fee amount from the fee base (subtotal + shipping
// - discounts). A result of zero or less means no fee is due.
type ComputeFunc func(base decimal.Decimal) decimal.Decimal

// PercentOfBase builds the standard payment-surcharge computation: bps basis
// points of the fee base, rounded to cents.
func PercentOfBase(bps int64) ComputeFunc {
	factor := decimal.New(bps, -4)
	return func(base decimal.Decimal) decimal.Decimal {
		return base.Mul(factor).Round(2)
	}
}

// Result reports what a reconcile call did to the cart's fee list.
type Result struct {
	// Changed is true when the fee list was rewritten for a new fingerprint.
	Changed bool
	// Fee is the fee line now present, nil when no fee is due.
	Fee *cartstate.Fee
}

// Controller is the idempotence guard around derived-fee computation. The
// surrounding host recalculates cart totals several times per render, and a
// naive hook either stacks duplicate fee lines or recurses: writing the fee
// changes the total, which fires another computation pass. The controller
// compares a fingerprint of the fee-relevant cart state against the session
// baseline and rewrites the fee list at most once per distinct fingerprint.
type Controller struct {
	Store   BaselineStore
	Locker  *SessionLocker
	LockTTL time.Duration
	Taxable bool
	Log     zerolog.Logger

	sessions sessionLocks
}

// Reconcile brings the named fee line in sync with the current cart state.
//
// When the stored baseline matches the current fingerprint, the fee is
// present and no force was requested, the cart is left untouched. Otherwise
// every fee line with the label is removed, the fee is recomputed from the
// fee base, a single new line is added when the amount is positive, and the
// new baseline is stored with the force bit cleared.
//
// Baseline store failures fail closed: the fee list is not rewritten, the
// error is logged and returned wrapped in ErrStoreUnavailable, and the cart
// stays exactly as it was. A stale surcharge until the next pass is the
// accepted degraded state.
func (c *Controller) Reconcile(ctx context.Context, sessionID string, cart cartstate.Cart, feeLabel string, compute ComputeFunc) (Result, error) {
	if c == nil || c.Store == nil {
		return Result{}, ErrNotConfigured
	}
	if cart == nil || compute == nil {
		return Result{}, errors.New("surcharge: cart and compute are required")
	}

	var result Result
	run := func(ctx context.Context) error {
		lock := c.sessions.forSession(sessionID)
		lock.Lock()
		defer lock.Unlock()
		var err error
		result, err = c.reconcileLocked(ctx, sessionID, cart, feeLabel, compute)
		return err
	}
	if c.Locker != nil {
		if err := c.Locker.WithLock(ctx, sessionID, c.LockTTL, run); err != nil {
			return result, err
		}
		return result, nil
	}
	return result, run(ctx)
}

func (c *Controller) reconcileLocked(ctx context.Context, sessionID string, cart cartstate.Cart, feeLabel string, compute ComputeFunc) (Result, error) {
	snap := cart.Snapshot()
	fingerprint := snap.Fingerprint()

	baseline, found, err := c.Store.Get(ctx, sessionID)
	if err != nil {
		c.Log.Error().Err(err).Str("session_id", sessionID).Msg("baseline read failed, leaving fees untouched")
		obs.ObserveFeeReconcile("store_error")
		return Result{}, err
	}

	if found && baseline.Fingerprint == fingerprint && !baseline.Force && snap.HasFee(feeLabel) {
		obs.ObserveFeeReconcile("stable")
		return Result{Fee: currentFee(snap, feeLabel)}, nil
	}

	amount := compute(snap.FeeBase())

	// The baseline is written before the fee list so a store failure can
	// never leave a half-applied fee; the in-memory rewrite below cannot
	// fail.
	if err := c.Store.Put(ctx, sessionID, Baseline{Fingerprint: fingerprint}); err != nil {
		c.Log.Error().Err(err).Str("session_id", sessionID).Msg("baseline write failed, leaving fees untouched")
		obs.ObserveFeeReconcile("store_error")
		return Result{}, err
	}

	cart.RemoveFee(feeLabel)
	if amount.GreaterThan(decimal.Zero) {
		fee := cartstate.Fee{Label: feeLabel, Amount: amount, Taxable: c.Taxable, Kind: cartstate.KindSurcharge}
		cart.AddFee(fee)
		obs.ObserveFeeReconcile("recomputed")
		obs.ObserveFeeWrite()
		c.Log.Debug().
			Str("session_id", sessionID).
			Str("fee_label", feeLabel).
			Str("amount", amount.String()).
			Msg("surcharge fee replaced")
		return Result{Changed: true, Fee: &fee}, nil
	}
	obs.ObserveFeeReconcile("no_fee_due")
	c.Log.Debug().Str("session_id", sessionID).Str("fee_label", feeLabel).Msg("no surcharge due")
	return Result{Changed: true}, nil
}

// Force flips the session's force bit so the next reconcile recomputes even
// for an unchanged fingerprint.
func (c *Controller) Force(ctx context.Context, sessionID string) error {
	if c == nil || c.Store == nil {
		return ErrNotConfigured
	}
	lock := c.sessions.forSession(sessionID)
	lock.Lock()
	defer lock.Unlock()
	baseline, _, err := c.Store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	baseline.Force = true
	return c.Store.Put(ctx, sessionID, baseline)
}

// EndSession clears the baseline when the checkout session ends.
func (c *Controller) EndSession(ctx context.Context, sessionID string) error {
	if c == nil || c.Store == nil {
		return ErrNotConfigured
	}
	return c.Store.Delete(ctx, sessionID)
}

func currentFee(snap cartstate.Snapshot, label string) *cartstate.Fee {
	for i := range snap.Fees {
		if snap.Fees[i].Label == label {
			fee := snap.Fees[i]
			return &fee
		}
	}
	return nil
}
