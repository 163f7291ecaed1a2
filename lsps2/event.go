package lsps2

import "github.com/btcsuite/btcd/btcec/v2"

// ServiceEvent is implemented by every event this engine surfaces to the
// host application. The host type-switches on the concrete type to decide
// which callback (InvalidTokenProvided, OpeningFeeParamsGenerated, ...) to
// invoke in response.
type ServiceEvent interface {
	isServiceEvent()
}

// GetInfoEvent asks the host to decide, for the given token, either that
// it is invalid (via InvalidTokenProvided) or which fee-params menu to
// offer (via OpeningFeeParamsGenerated).
type GetInfoEvent struct {
	RequestID          RequestID
	CounterpartyNodeID *btcec.PublicKey
	Token              string
}

func (GetInfoEvent) isServiceEvent() {}

// BuyRequestEvent asks the host to mint the invoice parameters (intercept
// scid, cltv delta, user channel ID) for a client that has committed to a
// fee-params entry, via InvoiceParametersGenerated.
type BuyRequestEvent struct {
	RequestID          RequestID
	CounterpartyNodeID *btcec.PublicKey
	OpeningFeeParams   OpeningFeeParams
	PaymentSizeMsat    *uint64
}

func (BuyRequestEvent) isServiceEvent() {}

// OpenChannelEvent tells the host that a JIT channel has received enough
// payment to cover its opening fee and should now actually be opened.
type OpenChannelEvent struct {
	TheirNetworkKey  *btcec.PublicKey
	AmtToForwardMsat uint64
	OpeningFeeMsat   uint64
	UserChannelID    uint64
	InterceptScid    uint64
}

func (OpenChannelEvent) isServiceEvent() {}
