package surcharge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pricing-api/internal/cartstate"
)

const feeLabel = "payment-surcharge"

func testCart(subtotal, shipping, method string, fees ...cartstate.Fee) *cartstate.MemoryCart {
	return cartstate.NewMemoryCart(cartstate.Snapshot{
		Subtotal:      decimal.RequireFromString(subtotal),
		ShippingTotal: decimal.RequireFromString(shipping),
		PaymentMethod: method,
		Fees:          fees,
	})
}

func newController() *Controller {
	return &Controller{
		Store: NewMemoryStore(time.Hour),
		Log:   zerolog.Nop(),
	}
}

func countFees(cart cartstate.Cart, label string) int {
	n := 0
	for _, fee := range cart.Snapshot().Fees {
		if fee.Label == label {
			n++
		}
	}
	return n
}

func TestReconcileIdempotent(t *testing.T) {
	ctrl := newController()
	cart := testCart("100.00", "0", "cod")
	compute := PercentOfBase(300) // 3%

	first, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)
	require.True(t, first.Changed)
	require.NotNil(t, first.Fee)
	require.True(t, first.Fee.Amount.Equal(decimal.RequireFromString("3.00")))

	for i := 0; i < 5; i++ {
		result, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
		require.NoError(t, err)
		require.False(t, result.Changed, "pass %d must not rewrite the fee list", i)
		require.NotNil(t, result.Fee)
		require.True(t, result.Fee.Amount.Equal(first.Fee.Amount))
	}
	require.Equal(t, 1, countFees(cart, feeLabel))
}

func TestReconcileRecomputesOnSubtotalChange(t *testing.T) {
	ctrl := newController()
	compute := PercentOfBase(300)

	cart := testCart("100.00", "0", "cod")
	_, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)

	// New request, different subtotal, surcharge from the previous pass still
	// on the cart.
	changed := testCart("200.00", "0", "cod", cart.Snapshot().Fees...)
	result, err := ctrl.Reconcile(context.Background(), "sess-1", changed, feeLabel, compute)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.NotNil(t, result.Fee)
	require.True(t, result.Fee.Amount.Equal(decimal.RequireFromString("6.00")))
	require.Equal(t, 1, countFees(changed, feeLabel))
}

func TestReconcilePaymentMethodChangeTriggersRecompute(t *testing.T) {
	ctrl := newController()
	compute := PercentOfBase(250)

	cart := testCart("100.00", "10.00", "transfer")
	_, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)

	switched := testCart("100.00", "10.00", "cod", cart.Snapshot().Fees...)
	result, err := ctrl.Reconcile(context.Background(), "sess-1", switched, feeLabel, compute)
	require.NoError(t, err)
	require.True(t, result.Changed)
}

func TestReconcileDiscountReducesBase(t *testing.T) {
	ctrl := newController()
	compute := PercentOfBase(1000) // 10%
	cart := testCart("100.00", "20.00", "cod",
		cartstate.Fee{Label: "voucher", Amount: decimal.RequireFromString("-30.00"), Kind: cartstate.KindDiscount},
	)

	result, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)
	require.NotNil(t, result.Fee)
	// 10% of (100 + 20 - 30)
	require.True(t, result.Fee.Amount.Equal(decimal.RequireFromString("9.00")))
}

func TestReconcileNoFeeDue(t *testing.T) {
	ctrl := newController()
	compute := func(decimal.Decimal) decimal.Decimal { return decimal.Zero }
	cart := testCart("100.00", "0", "cod")

	result, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Nil(t, result.Fee)
	require.Equal(t, 0, countFees(cart, feeLabel))
}

func TestReconcileReplacesStaleDuplicates(t *testing.T) {
	ctrl := newController()
	compute := PercentOfBase(300)
	// A naive hook stacked two copies before the guard existed.
	stale := cartstate.Fee{Label: feeLabel, Amount: decimal.RequireFromString("1.00"), Kind: cartstate.KindSurcharge}
	cart := testCart("100.00", "0", "cod", stale, stale)

	result, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, 1, countFees(cart, feeLabel))
	require.True(t, result.Fee.Amount.Equal(decimal.RequireFromString("3.00")))
}

func TestReconcileForceFlag(t *testing.T) {
	ctrl := newController()
	compute := PercentOfBase(300)
	cart := testCart("100.00", "0", "cod")

	_, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)

	require.NoError(t, ctrl.Force(context.Background(), "sess-1"))

	result, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)
	require.True(t, result.Changed, "force must trigger recomputation for an unchanged fingerprint")

	// Force bit is cleared after one recomputation.
	result, err = ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)
	require.False(t, result.Changed)
}

type brokenStore struct {
	getErr error
	putErr error
}

func (b brokenStore) Get(context.Context, string) (Baseline, bool, error) {
	if b.getErr != nil {
		return Baseline{}, false, b.getErr
	}
	return Baseline{}, false, nil
}
func (b brokenStore) Put(context.Context, string, Baseline) error { return b.putErr }
func (b brokenStore) Delete(context.Context, string) error        { return nil }

func TestReconcileFailsClosedOnStoreWrite(t *testing.T) {
	ctrl := &Controller{
		Store: brokenStore{putErr: ErrStoreUnavailable},
		Log:   zerolog.Nop(),
	}
	cart := testCart("100.00", "0", "cod")

	result, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, PercentOfBase(300))
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.False(t, result.Changed)
	require.Equal(t, 0, countFees(cart, feeLabel), "a store failure must leave the fee list untouched")
}

func TestReconcileFailsClosedOnStoreRead(t *testing.T) {
	readErr := errors.New("read failed")
	ctrl := &Controller{
		Store: brokenStore{getErr: readErr},
		Log:   zerolog.Nop(),
	}
	cart := testCart("100.00", "0", "cod")

	_, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, PercentOfBase(300))
	require.ErrorIs(t, err, readErr)
	require.Equal(t, 0, countFees(cart, feeLabel))
}

func TestReconcileSessionsIsolated(t *testing.T) {
	ctrl := newController()
	compute := PercentOfBase(300)

	a := testCart("100.00", "0", "cod")
	b := testCart("100.00", "0", "cod")

	first, err := ctrl.Reconcile(context.Background(), "sess-a", a, feeLabel, compute)
	require.NoError(t, err)
	require.True(t, first.Changed)

	// Same fingerprint under a different session still gets its own write.
	second, err := ctrl.Reconcile(context.Background(), "sess-b", b, feeLabel, compute)
	require.NoError(t, err)
	require.True(t, second.Changed)
}

func TestEndSessionClearsBaseline(t *testing.T) {
	ctrl := newController()
	compute := PercentOfBase(300)
	cart := testCart("100.00", "0", "cod")

	_, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)
	require.NoError(t, ctrl.EndSession(context.Background(), "sess-1"))

	result, err := ctrl.Reconcile(context.Background(), "sess-1", cart, feeLabel, compute)
	require.NoError(t, err)
	require.True(t, result.Changed, "a cleared baseline must recompute")
	require.Equal(t, 1, countFees(cart, feeLabel))
}

func TestPercentOfBaseRounding(t *testing.T) {
	compute := PercentOfBase(275) // 2.75%
	got := compute(decimal.RequireFromString("99.99"))
	require.True(t, got.Equal(decimal.RequireFromString("2.75")), "got %s", got)
}
