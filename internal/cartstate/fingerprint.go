package cartstate

import (
	"strings"

	"github.com/noah-isme/pricing-api/internal/common"
)

// hashVersion is bumped whenever the serialization below changes, so stale
// baselines from an older scheme never compare equal.
const hashVersion = "v1"

// Fingerprint is a stable digest of the fee-relevant cart state. Two
// fingerprints are equal exactly when subtotal, shipping total, applied
// discount total and payment method are all equal as decimals/strings.
type Fingerprint string

// Fingerprint digests the four fee-relevant inputs. Decimal values are
// rendered in canonical form, so 10.50 and 10.5 (equal values) hash
// identically while any real difference changes the digest.
func (s Snapshot) Fingerprint() Fingerprint {
	parts := []string{
		hashVersion,
		s.Subtotal.String(),
		s.ShippingTotal.String(),
		s.DiscountTotal().String(),
		s.PaymentMethod,
	}
	return Fingerprint(common.Sha256Hex(strings.Join(parts, "|")))
}
