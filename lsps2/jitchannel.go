package lsps2

// jitChannelState is the sum type backing a JIT channel's lifecycle:
// AwaitingPayment -> PendingChannelOpen -> ChannelReady. Transitions are
// pure functions of the prior state plus an incoming event; see
// transitionHTLCIntercepted and transitionChannelReady.
type jitChannelState interface {
	isJITChannelState()
}

// awaitingPaymentState is the initial state. In fixed-invoice mode
// (PaymentSizeMsat != nil) multiple HTLCs may accumulate towards the
// pinned payment size (MPP); otherwise exactly one HTLC is ever permitted.
type awaitingPaymentState struct {
	minFeeMsat         uint64
	proportionalFeePPM uint32
	minPaymentSizeMsat uint64
	maxPaymentSizeMsat uint64
	htlcs              []InterceptedHTLC
	paymentSizeMsat    *uint64
}

func (awaitingPaymentState) isJITChannelState() {}

// pendingChannelOpenState holds the HTLCs that triggered channel opening,
// the fee actually charged, and the amount to forward once the channel is
// ready.
type pendingChannelOpenState struct {
	htlcs            []InterceptedHTLC
	openingFeeMsat   uint64
	amtToForwardMsat uint64
}

func (pendingChannelOpenState) isJITChannelState() {}

// channelReadyState is the terminal state: the channel has opened and the
// HTLCs are ready to forward.
type channelReadyState struct {
	htlcs            []InterceptedHTLC
	amtToForwardMsat uint64
}

func (channelReadyState) isJITChannelState() {}

func newAwaitingPaymentState(paymentSizeMsat *uint64, params OpeningFeeParams) awaitingPaymentState {
	return awaitingPaymentState{
		minFeeMsat:         params.MinFeeMsat,
		proportionalFeePPM: params.Proportional,
		minPaymentSizeMsat: params.MinPaymentSizeMsat,
		maxPaymentSizeMsat: params.MaxPaymentSizeMsat,
		paymentSizeMsat:    paymentSizeMsat,
	}
}

// transitionHTLCIntercepted implements the AwaitingPayment state's
// response to a newly intercepted HTLC. It is a pure function: on success
// it returns the next state without mutating the receiver.
func transitionHTLCIntercepted(state jitChannelState, htlc InterceptedHTLC) (jitChannelState, error) {
	awaiting, ok := state.(awaitingPaymentState)
	if !ok {
		return nil, newChannelStateError(
			"htlc intercepted when JIT channel was in state: %T", state,
		)
	}

	htlcs := make([]InterceptedHTLC, len(awaiting.htlcs)+1)
	copy(htlcs, awaiting.htlcs)
	htlcs[len(awaiting.htlcs)] = htlc

	var totalInMsat uint64
	for _, h := range htlcs {
		totalInMsat += h.ExpectedOutboundAmountMsat
	}

	var expectedPaymentSizeMsat uint64
	var mppMode bool
	if awaiting.paymentSizeMsat != nil {
		expectedPaymentSizeMsat = *awaiting.paymentSizeMsat
		mppMode = true
	} else {
		if len(htlcs) != 1 {
			return nil, newChannelStateError(
				"paying via multiple HTLCs is disallowed in no-MPP/variable-invoice mode",
			)
		}
		expectedPaymentSizeMsat = totalInMsat
		mppMode = false
	}

	if expectedPaymentSizeMsat < awaiting.minPaymentSizeMsat ||
		expectedPaymentSizeMsat > awaiting.maxPaymentSizeMsat {

		return nil, newChannelStateError(
			"payment size violates limits: expected_payment_size_msat=%d "+
				"min_payment_size_msat=%d max_payment_size_msat=%d",
			expectedPaymentSizeMsat, awaiting.minPaymentSizeMsat,
			awaiting.maxPaymentSizeMsat,
		)
	}

	openingFeeMsat, ok := ComputeOpeningFee(
		expectedPaymentSizeMsat, awaiting.minFeeMsat, awaiting.proportionalFeePPM,
	)
	if !ok {
		return nil, newChannelStateError(
			"could not compute a valid opening fee for min_fee_msat=%d "+
				"proportional=%d expected_payment_size_msat=%d",
			awaiting.minFeeMsat, awaiting.proportionalFeePPM,
			expectedPaymentSizeMsat,
		)
	}

	amtToForwardMsat := SaturatingSub(expectedPaymentSizeMsat, openingFeeMsat)

	if totalInMsat >= expectedPaymentSizeMsat && amtToForwardMsat > 0 {
		return pendingChannelOpenState{
			htlcs:            htlcs,
			openingFeeMsat:   openingFeeMsat,
			amtToForwardMsat: amtToForwardMsat,
		}, nil
	}

	if mppMode {
		awaiting.htlcs = htlcs
		return awaiting, nil
	}

	return nil, newChannelStateError("intercepted HTLC is too small to pay opening fee")
}

// transitionChannelReady implements the PendingChannelOpen state's
// response to the channel actually opening. Any other source state is a
// programming error.
func transitionChannelReady(state jitChannelState) (jitChannelState, error) {
	pending, ok := state.(pendingChannelOpenState)
	if !ok {
		return nil, newChannelStateError(
			"channel ready received when JIT channel was in state: %T", state,
		)
	}

	return channelReadyState{
		htlcs:            pending.htlcs,
		amtToForwardMsat: pending.amtToForwardMsat,
	}, nil
}

// OutboundJITChannel is a single client's JIT-channel lifecycle, owned
// exclusively by the PeerState map it lives in.
type OutboundJITChannel struct {
	UserChannelID uint64
	state         jitChannelState
}

// newOutboundJITChannel constructs a channel in its initial
// AwaitingPayment state.
func newOutboundJITChannel(
	paymentSizeMsat *uint64, params OpeningFeeParams, userChannelID uint64,
) *OutboundJITChannel {

	return &OutboundJITChannel{
		UserChannelID: userChannelID,
		state:         newAwaitingPaymentState(paymentSizeMsat, params),
	}
}

// htlcIntercepted drives the channel's state machine in response to a
// newly intercepted HTLC. When the channel has accumulated enough to cover
// its opening fee it transitions to PendingChannelOpen and returns
// (true, openingFeeMsat, amtToForwardMsat); otherwise, in MPP mode, it
// remains AwaitingPayment and returns (false, 0, 0).
func (c *OutboundJITChannel) htlcIntercepted(htlc InterceptedHTLC) (bool, uint64, uint64, error) {
	next, err := transitionHTLCIntercepted(c.state, htlc)
	if err != nil {
		return false, 0, 0, err
	}
	c.state = next

	switch s := next.(type) {
	case awaitingPaymentState:
		return false, 0, 0, nil
	case pendingChannelOpenState:
		return true, s.openingFeeMsat, s.amtToForwardMsat, nil
	default:
		return false, 0, 0, newChannelStateError(
			"impossible state transition during htlc_intercepted to %T", next,
		)
	}
}

// channelReady drives the channel's state machine in response to the
// node's channel_ready notification, returning the HTLCs to forward and
// the total amount to split across them.
func (c *OutboundJITChannel) channelReady() ([]InterceptedHTLC, uint64, error) {
	next, err := transitionChannelReady(c.state)
	if err != nil {
		return nil, 0, err
	}
	c.state = next

	ready, ok := next.(channelReadyState)
	if !ok {
		return nil, 0, newChannelStateError(
			"impossible state transition during channel_ready to %T", next,
		)
	}

	return ready.htlcs, ready.amtToForwardMsat, nil
}
