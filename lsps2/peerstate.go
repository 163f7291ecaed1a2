package lsps2

// pendingRequestKind distinguishes a GetInfo from a Buy request sitting in
// PeerState.pendingRequests, awaiting a host decision.
type pendingRequestKind int

const (
	pendingGetInfo pendingRequestKind = iota
	pendingBuy
)

// pendingRequest is a request awaiting a host callback. Only the fields
// relevant to its kind are populated.
type pendingRequest struct {
	kind pendingRequestKind
	buy  BuyRequest
}

// PeerState holds everything this engine tracks about one remote node: its
// outbound JIT channels, the reverse index from user channel ID to
// intercept scid, and requests awaiting a host decision. It is guarded by
// a single mutex rather than independently locking each map, since the
// operations that touch it always need a consistent view across all
// three.
type PeerState struct {
	outboundChannelsByInterceptScid map[uint64]*OutboundJITChannel
	interceptScidByUserChannelID    map[uint64]uint64
	pendingRequests                 map[RequestID]pendingRequest
}

// newPeerState constructs an empty PeerState for a newly-seen peer.
func newPeerState() *PeerState {
	return &PeerState{
		outboundChannelsByInterceptScid: make(map[uint64]*OutboundJITChannel),
		interceptScidByUserChannelID:    make(map[uint64]uint64),
		pendingRequests:                 make(map[RequestID]pendingRequest),
	}
}

// insertOutboundChannel records a newly created JIT channel under its
// intercept scid.
func (p *PeerState) insertOutboundChannel(interceptScid uint64, ch *OutboundJITChannel) {
	p.outboundChannelsByInterceptScid[interceptScid] = ch
}

// removeOutboundChannel drops a channel and its reverse-index entry
// together, keeping the two maps' invariant (every reverse-index value is
// a key of outboundChannelsByInterceptScid) intact even on the
// state-machine error path.
func (p *PeerState) removeOutboundChannel(interceptScid uint64) {
	ch, ok := p.outboundChannelsByInterceptScid[interceptScid]
	if !ok {
		return
	}
	delete(p.outboundChannelsByInterceptScid, interceptScid)
	delete(p.interceptScidByUserChannelID, ch.UserChannelID)
}
