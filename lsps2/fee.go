package lsps2

import "math"

// MilliSatoshi represents a thousandth of a satoshi, the unit LSPS2 fee
// parameters and payment sizes are denominated in. Kept local to this
// package rather than pulled from lnwire, since wire framing is an
// out-of-scope collaborator for this engine.
type MilliSatoshi uint64

// ComputeOpeningFee returns the channel-opening fee owed for a payment of
// paymentSizeMsat msat, given a minimum fee and a proportional rate in
// parts-per-million. The result is
//
//	max(minFeeMsat, ceil(paymentSizeMsat * proportionalPPM / 1_000_000))
//
// rounded up so the LSP is never left underpaid on a fractional msat. The
// second return value is false if any intermediate product overflows
// uint64.
func ComputeOpeningFee(paymentSizeMsat, minFeeMsat uint64, proportionalPPM uint32) (uint64, bool) {
	if proportionalPPM == 0 {
		return minFeeMsat, true
	}

	// Detect overflow in paymentSizeMsat * proportionalPPM before it
	// happens: if the product would not fit in a uint64, there is no
	// valid fee to compute.
	product, err := checkedMul(paymentSizeMsat, uint64(proportionalPPM))
	if err != nil {
		return 0, false
	}

	// Ceiling division: (product + 1_000_000 - 1) / 1_000_000, guarding
	// against the addition itself overflowing.
	const ppm = 1_000_000
	sum, err := checkedAdd(product, ppm-1)
	if err != nil {
		return 0, false
	}
	proportionalFee := sum / ppm

	if minFeeMsat > proportionalFee {
		return minFeeMsat, true
	}
	return proportionalFee, true
}

func checkedMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	result := a * b
	if result/b != a {
		return 0, errOverflow
	}
	return result, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	result := a + b
	if result < a {
		return 0, errOverflow
	}
	return result, nil
}

var errOverflow = newChannelStateError("overflow computing opening fee")

// SaturatingSub returns a-b, or 0 if b > a, so that a fee at or above the
// payment size never underflows amt_to_forward_msat.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// maxUint64 is the largest value a uint64 amount can hold.
const maxUint64 = math.MaxUint64
