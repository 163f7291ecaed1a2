package lsps2

// InterceptID is the opaque 32-byte identifier the node collaborator
// assigns to an intercepted HTLC. It survives for the lifetime of the HTLC
// and is echoed back to forward or fail it.
type InterceptID [32]byte

// InterceptedHTLC is an immutable record of one HTLC intercepted by the
// node collaborator on its way towards a JIT channel's intercept scid.
type InterceptedHTLC struct {
	InterceptID                InterceptID
	ExpectedOutboundAmountMsat uint64
}
