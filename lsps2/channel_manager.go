package lsps2

import "github.com/btcsuite/btcd/btcec/v2"

// ChannelManager is the capability this engine needs from the underlying
// Lightning node: the ability to fail or forward an HTLC it previously
// intercepted. Modeled as a small interface injected into Service rather
// than a concrete payment-control implementation, so Service can be driven
// against a mock in tests and against a real node in production.
type ChannelManager interface {
	// FailInterceptedHTLC fails the HTLC identified by id back towards
	// its sender.
	FailInterceptedHTLC(id InterceptID) error

	// ForwardInterceptedHTLC forwards the HTLC identified by id across
	// channelID towards nextNodeID, carrying amountMsat onward.
	ForwardInterceptedHTLC(id InterceptID, channelID [32]byte, nextNodeID *btcec.PublicKey, amountMsat uint64) error
}
