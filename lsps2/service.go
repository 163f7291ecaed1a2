package lsps2

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/kuutamolabs/ldk-lsp-client/queue"
)

// peerStateEntry pairs a PeerState with the single mutex that protects it.
// The outer per-peer map is itself guarded by a reader-writer lock so
// concurrent callers touching different peers proceed in parallel; once a
// caller has its peerStateEntry, it acquires this inner mutex to actually
// read or mutate the PeerState.
type peerStateEntry struct {
	// peer is set once at construction and never mutated afterwards, so
	// it may be read without holding mu.
	peer *btcec.PublicKey

	mu    sync.Mutex
	state *PeerState
}

// Service is the top-level LSPS2 coordinator: it dispatches inbound
// protocol requests, drives the per-channel state machine in response to
// node events, and emits host events plus outbound protocol messages
// through its two queues. It holds no other global state; every instance
// carries its own secret, queues, and maps.
//
// Lock ordering is fixed to avoid deadlock: peerByInterceptScid is always
// acquired before perPeerState, and perPeerState is always acquired before
// a given peer's inner mutex. No lock is held while calling into
// ChannelManager except in ChannelReady, where the forward calls happen
// inside the peer's inner mutex.
type Service struct {
	cfg            Config
	channelManager ChannelManager

	pendingMessages *queue.MessageQueue
	pendingEvents   *queue.EventQueue

	perPeerStateMu sync.RWMutex
	perPeerState   map[string]*peerStateEntry

	peerByInterceptScidMu sync.RWMutex
	peerByInterceptScid   map[uint64]string
}

// NewService constructs a Service wired to the given queues, node
// collaborator, and configuration, the way htlcswitch.New assembles a
// Switch from its Config.
func NewService(cfg Config, channelManager ChannelManager, pendingMessages *queue.MessageQueue, pendingEvents *queue.EventQueue) *Service {
	return &Service{
		cfg:                 cfg,
		channelManager:      channelManager,
		pendingMessages:     pendingMessages,
		pendingEvents:       pendingEvents,
		perPeerState:        make(map[string]*peerStateEntry),
		peerByInterceptScid: make(map[uint64]string),
	}
}

func peerKey(peer *btcec.PublicKey) string {
	return string(peer.SerializeCompressed())
}

// getOrCreatePeerState returns the peerStateEntry for peer, lazily
// creating it (and the service-wide registry entry) on first contact.
// PeerState entries are never garbage collected by this engine.
func (s *Service) getOrCreatePeerState(peer *btcec.PublicKey) *peerStateEntry {
	key := peerKey(peer)

	s.perPeerStateMu.RLock()
	entry, ok := s.perPeerState[key]
	s.perPeerStateMu.RUnlock()
	if ok {
		return entry
	}

	s.perPeerStateMu.Lock()
	defer s.perPeerStateMu.Unlock()

	if entry, ok := s.perPeerState[key]; ok {
		return entry
	}

	entry = &peerStateEntry{peer: peer, state: newPeerState()}
	s.perPeerState[key] = entry

	return entry
}

// getPeerState returns the peerStateEntry for peer if one already exists.
func (s *Service) getPeerState(peer *btcec.PublicKey) (*peerStateEntry, bool) {
	key := peerKey(peer)

	s.perPeerStateMu.RLock()
	defer s.perPeerStateMu.RUnlock()

	entry, ok := s.perPeerState[key]
	return entry, ok
}

func (s *Service) enqueueResponse(peer *btcec.PublicKey, requestID RequestID, response interface{}) {
	s.pendingMessages.Enqueue(peer, lsps2Response{requestID: requestID, response: response})
}

func (s *Service) enqueueEvent(event ServiceEvent) {
	s.pendingEvents.Enqueue(event)
}

// lsps2Response pairs a response payload with the request ID it answers,
// the envelope a wire-framing layer (out of scope here) would serialize.
type lsps2Response struct {
	requestID RequestID
	response  interface{}
}

// RequestID returns the request ID this response answers.
func (r lsps2Response) RequestID() RequestID { return r.requestID }

// Response returns the concrete response payload: one of GetInfoResponse,
// GetInfoError, BuyResponse, or BuyError.
func (r lsps2Response) Response() interface{} { return r.response }

// ---------------------------------------------------------------------
// Host -> Service
// ---------------------------------------------------------------------

// InvalidTokenProvided tells a client, in response to a pending GetInfo
// request, that the token it supplied is unrecognized or stale.
func (s *Service) InvalidTokenProvided(peer *btcec.PublicKey, requestID RequestID) error {
	entry, ok := s.getPeerState(peer)
	if !ok {
		return newAPIMisuseError("no state for counterparty: %x", peer.SerializeCompressed())
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	req, ok := entry.state.pendingRequests[requestID]
	if !ok || req.kind != pendingGetInfo {
		return newAPIMisuseError("no pending get_info request for request_id: %s", requestID)
	}
	delete(entry.state.pendingRequests, requestID)

	s.enqueueResponse(peer, requestID, GetInfoError{ResponseError{
		Code:    ErrCodeUnrecognizedOrStaleToken,
		Message: "an unrecognized or stale token was provided",
	}})

	return nil
}

// OpeningFeeParamsGenerated tells a client, in response to a pending
// GetInfo request, the fee-params menu it may choose from. Each raw entry
// is signed with the server secret before being sent.
func (s *Service) OpeningFeeParamsGenerated(peer *btcec.PublicKey, requestID RequestID, rawMenu []RawOpeningFeeParams) error {
	entry, ok := s.getPeerState(peer)
	if !ok {
		return newAPIMisuseError("no state for counterparty: %x", peer.SerializeCompressed())
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	req, ok := entry.state.pendingRequests[requestID]
	if !ok || req.kind != pendingGetInfo {
		return newAPIMisuseError("no pending get_info request for request_id: %s", requestID)
	}
	delete(entry.state.pendingRequests, requestID)

	menu := make([]OpeningFeeParams, len(rawMenu))
	for i, raw := range rawMenu {
		menu[i] = SignOpeningFeeParams(raw, s.cfg.PromiseSecret)
	}

	s.enqueueResponse(peer, requestID, GetInfoResponse{OpeningFeeParamsMenu: menu})

	return nil
}

// InvoiceParametersGenerated tells a client, in response to a pending Buy
// request, the intercept scid and channel parameters to embed in its
// invoice. It also creates the OutboundJITChannel that will track this
// client's payment.
func (s *Service) InvoiceParametersGenerated(
	peer *btcec.PublicKey, requestID RequestID, interceptScid uint64,
	cltvExpiryDelta uint32, clientTrustsLSP bool, userChannelID uint64,
) error {

	entry, ok := s.getPeerState(peer)
	if !ok {
		return newAPIMisuseError("no state for counterparty: %x", peer.SerializeCompressed())
	}

	entry.mu.Lock()

	req, ok := entry.state.pendingRequests[requestID]
	if !ok || req.kind != pendingBuy {
		entry.mu.Unlock()
		return newAPIMisuseError("no pending buy request for request_id: %s", requestID)
	}
	delete(entry.state.pendingRequests, requestID)

	ch := newOutboundJITChannel(req.buy.PaymentSizeMsat, req.buy.OpeningFeeParams, userChannelID)
	entry.state.interceptScidByUserChannelID[userChannelID] = interceptScid
	entry.state.insertOutboundChannel(interceptScid, ch)

	entry.mu.Unlock()

	// peerByInterceptScidMu is always acquired outside of, never nested
	// under, a peer's inner mutex; the registration below happens after
	// entry.mu has already been released.
	s.peerByInterceptScidMu.Lock()
	s.peerByInterceptScid[interceptScid] = peerKey(peer)
	s.peerByInterceptScidMu.Unlock()

	s.enqueueResponse(peer, requestID, BuyResponse{
		InterceptScid:      interceptScid,
		LSPCltvExpiryDelta: cltvExpiryDelta,
		ClientTrustsLSP:    clientTrustsLSP,
	})

	return nil
}

// ---------------------------------------------------------------------
// Node -> Service
// ---------------------------------------------------------------------

// HTLCIntercepted forwards the node's HTLCIntercepted notification into
// the engine. If interceptScid does not belong to us, this is a no-op
// success. On a state-machine error the HTLC is failed upstream and the
// channel is dropped from peer state.
func (s *Service) HTLCIntercepted(interceptScid uint64, id InterceptID, expectedOutboundAmountMsat uint64) error {
	s.peerByInterceptScidMu.RLock()
	key, ok := s.peerByInterceptScid[interceptScid]
	s.peerByInterceptScidMu.RUnlock()
	if !ok {
		// Not one of our scids; nothing to do.
		return nil
	}

	s.perPeerStateMu.RLock()
	entry, ok := s.perPeerState[key]
	s.perPeerStateMu.RUnlock()
	if !ok {
		return newAPIMisuseError("no counterparty found for scid: %d", interceptScid)
	}

	entry.mu.Lock()

	ch, ok := entry.state.outboundChannelsByInterceptScid[interceptScid]
	if !ok {
		entry.mu.Unlock()
		// Stale scid; nothing to do.
		return nil
	}

	opened, openingFeeMsat, amtToForwardMsat, err := ch.htlcIntercepted(InterceptedHTLC{
		InterceptID:                id,
		ExpectedOutboundAmountMsat: expectedOutboundAmountMsat,
	})
	if err != nil {
		log.Infof("htlc intercept on scid %d failed state transition: %v",
			interceptScid, err)

		entry.state.removeOutboundChannel(interceptScid)
		entry.mu.Unlock()

		// Both peerByInterceptScidMu and the call into ChannelManager
		// happen only after the peer's inner mutex has been released,
		// keeping the outer-to-inner lock order intact and matching
		// the no-lock-held rule for ChannelManager calls outside of
		// ChannelReady.
		s.removeInterceptScidIndex(interceptScid)

		if failErr := s.channelManager.FailInterceptedHTLC(id); failErr != nil {
			return wrapAPIMisuse(failErr)
		}

		return wrapAPIMisuse(err)
	}

	entry.mu.Unlock()

	if opened {
		s.enqueueEvent(OpenChannelEvent{
			TheirNetworkKey:  entry.peer,
			AmtToForwardMsat: amtToForwardMsat,
			OpeningFeeMsat:   openingFeeMsat,
			UserChannelID:    ch.UserChannelID,
			InterceptScid:    interceptScid,
		})
	}

	return nil
}

// removeInterceptScidIndex deletes the global scid->peer index entry,
// keeping it in lockstep with the per-peer reverse index so a scid is
// never left pointing at a peer that no longer tracks it.
func (s *Service) removeInterceptScidIndex(interceptScid uint64) {
	s.peerByInterceptScidMu.Lock()
	defer s.peerByInterceptScidMu.Unlock()

	delete(s.peerByInterceptScid, interceptScid)
}

// ChannelReady forwards the node's ChannelReady notification into the
// engine: it drives the channel's final transition and forwards each
// tracked HTLC across the now-open channel, apportioning the total fee
// across them.
func (s *Service) ChannelReady(userChannelID uint64, channelID [32]byte, peer *btcec.PublicKey) error {
	entry, ok := s.getPeerState(peer)
	if !ok {
		return newAPIMisuseError("no counterparty state for: %x", peer.SerializeCompressed())
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	interceptScid, ok := entry.state.interceptScidByUserChannelID[userChannelID]
	if !ok {
		return newAPIMisuseError("could not find a channel with user_channel_id %d", userChannelID)
	}

	ch, ok := entry.state.outboundChannelsByInterceptScid[interceptScid]
	if !ok {
		return newAPIMisuseError("could not find a channel with user_channel_id %d", userChannelID)
	}

	htlcs, totalAmtToForwardMsat, err := ch.channelReady()
	if err != nil {
		return newAPIMisuseError("failed to transition to channel ready: %v", err)
	}

	forwards := calculateAmountToForwardPerHTLC(htlcs, totalAmtToForwardMsat)
	for _, f := range forwards {
		if err := s.channelManager.ForwardInterceptedHTLC(
			f.InterceptID, channelID, peer, f.AmountToForward,
		); err != nil {
			return err
		}
	}

	return nil
}

// ---------------------------------------------------------------------
// Peer -> Service
// ---------------------------------------------------------------------

// HandleGetInfoRequest processes an inbound GetInfoRequest: it records the
// request as pending and emits a GetInfoEvent for the host to resolve via
// InvalidTokenProvided or OpeningFeeParamsGenerated.
func (s *Service) HandleGetInfoRequest(peer *btcec.PublicKey, requestID RequestID, req GetInfoRequest) error {
	entry := s.getOrCreatePeerState(peer)

	entry.mu.Lock()
	entry.state.pendingRequests[requestID] = pendingRequest{kind: pendingGetInfo}
	entry.mu.Unlock()

	s.enqueueEvent(GetInfoEvent{
		RequestID:          requestID,
		CounterpartyNodeID: peer,
		Token:              req.Token,
	})

	return nil
}

// HandleBuyRequest processes an inbound BuyRequest, validating payment
// size before the opening-fee-params promise. Each validation failure
// both enqueues a BuyError response and returns a protocol-level error
// for the caller to log and ignore.
func (s *Service) HandleBuyRequest(peer *btcec.PublicKey, requestID RequestID, req BuyRequest) error {
	if req.PaymentSizeMsat != nil {
		paymentSizeMsat := *req.PaymentSizeMsat
		params := req.OpeningFeeParams

		if paymentSizeMsat < params.MinPaymentSizeMsat {
			return s.rejectBuy(peer, requestID,
				ErrCodePaymentSizeTooSmall,
				"payment size is below our minimum supported payment size")
		}

		if paymentSizeMsat > params.MaxPaymentSizeMsat {
			return s.rejectBuy(peer, requestID,
				ErrCodePaymentSizeTooLarge,
				"payment size is above our maximum supported payment size")
		}

		openingFee, ok := ComputeOpeningFee(paymentSizeMsat, params.MinFeeMsat, params.Proportional)
		if !ok {
			return s.rejectBuy(peer, requestID,
				ErrCodePaymentSizeTooLarge,
				"overflow error when calculating opening_fee")
		}

		if openingFee >= paymentSizeMsat {
			return s.rejectBuy(peer, requestID,
				ErrCodePaymentSizeTooSmall,
				"payment size is too small to cover the opening fee")
		}
	}

	if !VerifyOpeningFeeParams(req.OpeningFeeParams, s.cfg.PromiseSecret) {
		return s.rejectBuy(peer, requestID,
			ErrCodeInvalidOpeningFeeParams,
			"valid_until is already past or the promise did not match the provided parameters")
	}

	entry := s.getOrCreatePeerState(peer)

	entry.mu.Lock()
	entry.state.pendingRequests[requestID] = pendingRequest{kind: pendingBuy, buy: req}
	entry.mu.Unlock()

	s.enqueueEvent(BuyRequestEvent{
		RequestID:          requestID,
		CounterpartyNodeID: peer,
		OpeningFeeParams:   req.OpeningFeeParams,
		PaymentSizeMsat:    req.PaymentSizeMsat,
	})

	return nil
}

func (s *Service) rejectBuy(peer *btcec.PublicKey, requestID RequestID, code int, message string) error {
	s.enqueueResponse(peer, requestID, BuyError{ResponseError{Code: code, Message: message}})
	log.Infof("rejecting buy request %s from %x: %s", requestID, peer.SerializeCompressed(), message)

	return newChannelStateError("%s", message)
}
