package lsps2

// PerHTLCForward is one (intercept ID, amount to forward) pair, in the
// same order as the htlcs slice it was computed from.
type PerHTLCForward struct {
	InterceptID     InterceptID
	AmountToForward uint64
}

// calculateAmountToForwardPerHTLC apportions totalAmtToForwardMsat across
// htlcs proportionally to each HTLC's inbound amount. Each HTLC's tentative share is
// floor(oi/total)*totalFee (so HTLCs smaller than the total receive zero
// share), actual shares are capped by the fee remaining, and the last HTLC
// absorbs whatever the rounding left behind so the shares always sum to
// exactly totalFee. If the HTLCs received less than totalAmtToForwardMsat
// in aggregate, the caller has violated the precondition that this is only
// invoked post-state-machine, and an empty slice is returned for the
// caller to handle.
func calculateAmountToForwardPerHTLC(
	htlcs []InterceptedHTLC, totalAmtToForwardMsat uint64,
) []PerHTLCForward {

	var totalReceivedMsat uint64
	for _, h := range htlcs {
		totalReceivedMsat += h.ExpectedOutboundAmountMsat
	}

	if totalReceivedMsat < totalAmtToForwardMsat {
		return nil
	}

	totalFeeMsat := totalReceivedMsat - totalAmtToForwardMsat
	feeRemainingMsat := totalFeeMsat

	forwards := make([]PerHTLCForward, len(htlcs))
	for i, h := range htlcs {
		proportionalFeeMsat := totalFeeMsat * (h.ExpectedOutboundAmountMsat / totalReceivedMsat)

		actualFeeMsat := feeRemainingMsat
		if proportionalFeeMsat < actualFeeMsat {
			actualFeeMsat = proportionalFeeMsat
		}
		feeRemainingMsat -= actualFeeMsat

		if i == len(htlcs)-1 {
			actualFeeMsat += feeRemainingMsat
		}

		forwards[i] = PerHTLCForward{
			InterceptID:     h.InterceptID,
			AmountToForward: SaturatingSub(h.ExpectedOutboundAmountMsat, actualFeeMsat),
		}
	}

	return forwards
}
