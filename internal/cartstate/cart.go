package cartstate

import (
	"sync"

	"github.com/shopspring/decimal"
)

// FeeKind categorizes fee lines. Only discount-kind fees feed the
// fee-relevant totals; everything else is ignored by the hasher.
type FeeKind string

const (
	// KindDiscount marks fees that reduce the payable total (negative lines).
	KindDiscount FeeKind = "discount"
	// KindSurcharge marks derived fees added on top of the total.
	KindSurcharge FeeKind = "surcharge"
)

// Fee is a single cart fee line. At most one fee with a given label may exist
// in a cart's fee list at any time; the surcharge controller upholds this.
type Fee struct {
	Label   string          `json:"label" validate:"required"`
	Amount  decimal.Decimal `json:"amount" validate:"required"`
	Taxable bool            `json:"taxable"`
	Kind    FeeKind         `json:"kind"`
}

// Snapshot is the fee-relevant subset of cart state supplied by the host.
type Snapshot struct {
	Subtotal      decimal.Decimal `json:"subtotal" validate:"required"`
	ShippingTotal decimal.Decimal `json:"shippingTotal"`
	Fees          []Fee           `json:"fees"`
	PaymentMethod string          `json:"paymentMethod"`
}

// DiscountTotal sums the discount-kind fees by absolute value. Other fee
// kinds, including a previously applied surcharge, do not count.
func (s Snapshot) DiscountTotal() decimal.Decimal {
	total := decimal.Zero
	for _, fee := range s.Fees {
		if fee.Kind == KindDiscount {
			total = total.Add(fee.Amount.Abs())
		}
	}
	return total
}

// FeeBase is the amount derived fees are computed from: subtotal plus
// shipping minus applied discounts, floored at zero.
func (s Snapshot) FeeBase() decimal.Decimal {
	base := s.Subtotal.Add(s.ShippingTotal).Sub(s.DiscountTotal())
	if base.IsNegative() {
		return decimal.Zero
	}
	return base
}

// HasFee reports whether a fee with the label is present.
func (s Snapshot) HasFee(label string) bool {
	for _, fee := range s.Fees {
		if fee.Label == label {
			return true
		}
	}
	return false
}

// Cart is the mutable cart collaborator contract: read a snapshot, add a fee
// line, remove every fee line carrying a label.
type Cart interface {
	Snapshot() Snapshot
	AddFee(fee Fee)
	RemoveFee(label string)
}

// MemoryCart is an in-memory Cart used by the HTTP reconcile surface (which
// receives the cart as a request snapshot) and by tests.
type MemoryCart struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewMemoryCart seeds a cart from a snapshot.
func NewMemoryCart(snap Snapshot) *MemoryCart {
	return &MemoryCart{snap: snap}
}

// Snapshot returns a copy of the current cart state.
func (c *MemoryCart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.snap
	out.Fees = append([]Fee(nil), c.snap.Fees...)
	return out
}

// AddFee appends a fee line.
func (c *MemoryCart) AddFee(fee Fee) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Fees = append(c.snap.Fees, fee)
}

// RemoveFee deletes every fee line with the label.
func (c *MemoryCart) RemoveFee(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.snap.Fees[:0]
	for _, fee := range c.snap.Fees {
		if fee.Label != label {
			kept = append(kept, fee)
		}
	}
	c.snap.Fees = kept
}
