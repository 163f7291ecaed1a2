package lsps2

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/kuutamolabs/ldk-lsp-client/queue"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) (*Service, *mockChannelManager) {
	t.Helper()

	var secret [32]byte
	copy(secret[:], []byte("scenario-secret-0000000000000000"))

	cm := newMockChannelManager()
	svc := NewService(
		Config{PromiseSecret: secret},
		cm,
		queue.NewMessageQueue(),
		queue.NewEventQueue(),
	)
	return svc, cm
}

func testClient(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey()
}

func drainEvents(t *testing.T, svc *Service) []ServiceEvent {
	t.Helper()
	raw := svc.pendingEvents.GetAndClearPendingEvents()
	events := make([]ServiceEvent, len(raw))
	for i, e := range raw {
		events[i] = e.(ServiceEvent)
	}
	return events
}

func drainMessages(t *testing.T, svc *Service) []lsps2Response {
	t.Helper()
	raw := svc.pendingMessages.GetAndClearPendingMsgs()
	out := make([]lsps2Response, len(raw))
	for i, m := range raw {
		out[i] = m.Message.(lsps2Response)
	}
	return out
}

// TestScenarioS1HappyPathFixedInvoice covers a fixed-invoice payment that
// arrives in one HTLC, exactly covering its pinned payment size.
func TestScenarioS1HappyPathFixedInvoice(t *testing.T) {
	svc, cm := testService(t)
	client := testClient(t)

	require.NoError(t, svc.HandleGetInfoRequest(client, "r1", GetInfoRequest{Token: "t"}))
	events := drainEvents(t, svc)
	require.Len(t, events, 1)
	_, ok := events[0].(GetInfoEvent)
	require.True(t, ok)

	require.NoError(t, svc.OpeningFeeParamsGenerated(client, "r1", []RawOpeningFeeParams{
		{
			MinFeeMsat:         1_000,
			Proportional:       100_000,
			ValidUntil:         time.Now().Add(time.Hour),
			MinPaymentSizeMsat: 1_000,
			MaxPaymentSizeMsat: 1_000_000,
		},
	}))
	msgs := drainMessages(t, svc)
	require.Len(t, msgs, 1)
	infoResp, ok := msgs[0].Response().(GetInfoResponse)
	require.True(t, ok)
	require.Len(t, infoResp.OpeningFeeParamsMenu, 1)

	paymentSize := uint64(500_000)
	require.NoError(t, svc.HandleBuyRequest(client, "r2", BuyRequest{
		OpeningFeeParams: infoResp.OpeningFeeParamsMenu[0],
		PaymentSizeMsat:  &paymentSize,
	}))
	events = drainEvents(t, svc)
	require.Len(t, events, 1)
	_, ok = events[0].(BuyRequestEvent)
	require.True(t, ok)

	require.NoError(t, svc.InvoiceParametersGenerated(client, "r2", 42, 144, true, 7))
	msgs = drainMessages(t, svc)
	require.Len(t, msgs, 1)
	buyResp, ok := msgs[0].Response().(BuyResponse)
	require.True(t, ok)
	require.Equal(t, uint64(42), buyResp.InterceptScid)

	require.NoError(t, svc.HTLCIntercepted(42, InterceptID{0}, 500_000))
	events = drainEvents(t, svc)
	require.Len(t, events, 1)
	openEvt, ok := events[0].(OpenChannelEvent)
	require.True(t, ok)
	require.Equal(t, uint64(450_000), openEvt.AmtToForwardMsat)
	require.Equal(t, uint64(50_000), openEvt.OpeningFeeMsat)
	require.Equal(t, uint64(7), openEvt.UserChannelID)
	require.Equal(t, uint64(42), openEvt.InterceptScid)

	var channelID [32]byte
	require.NoError(t, svc.ChannelReady(7, channelID, client))

	forwarded := cm.Forwarded()
	require.Len(t, forwarded, 1)
	require.Equal(t, uint64(450_000), forwarded[0].amountMsat)
}

// TestScenarioS2MPPFixedInvoice covers a fixed-invoice payment split
// across two HTLCs that together cover the pinned payment size.
func TestScenarioS2MPPFixedInvoice(t *testing.T) {
	svc, _ := testService(t)
	client := testClient(t)

	require.NoError(t, svc.HandleGetInfoRequest(client, "r1", GetInfoRequest{Token: "t"}))
	drainEvents(t, svc)
	require.NoError(t, svc.OpeningFeeParamsGenerated(client, "r1", []RawOpeningFeeParams{
		{
			MinFeeMsat:         1_000,
			Proportional:       100_000,
			ValidUntil:         time.Now().Add(time.Hour),
			MinPaymentSizeMsat: 1_000,
			MaxPaymentSizeMsat: 1_000_000,
		},
	}))
	msgs := drainMessages(t, svc)
	menu := msgs[0].Response().(GetInfoResponse).OpeningFeeParamsMenu

	paymentSize := uint64(500_000)
	require.NoError(t, svc.HandleBuyRequest(client, "r2", BuyRequest{
		OpeningFeeParams: menu[0],
		PaymentSizeMsat:  &paymentSize,
	}))
	drainEvents(t, svc)
	require.NoError(t, svc.InvoiceParametersGenerated(client, "r2", 42, 144, true, 7))
	drainMessages(t, svc)

	require.NoError(t, svc.HTLCIntercepted(42, InterceptID{0}, 250_000))
	require.Empty(t, drainEvents(t, svc))

	require.NoError(t, svc.HTLCIntercepted(42, InterceptID{1}, 250_000))
	events := drainEvents(t, svc)
	require.Len(t, events, 1)
	openEvt := events[0].(OpenChannelEvent)
	require.Equal(t, uint64(450_000), openEvt.AmtToForwardMsat)
	require.Equal(t, uint64(50_000), openEvt.OpeningFeeMsat)
}

// TestScenarioS3NoMPPVariableInvoice covers a variable-amount invoice paid
// by a single HTLC, and confirms a second HTLC in that mode is rejected.
func TestScenarioS3NoMPPVariableInvoice(t *testing.T) {
	svc, cm := testService(t)
	client := testClient(t)

	require.NoError(t, svc.HandleGetInfoRequest(client, "r1", GetInfoRequest{Token: "t"}))
	drainEvents(t, svc)
	require.NoError(t, svc.OpeningFeeParamsGenerated(client, "r1", []RawOpeningFeeParams{
		{
			MinFeeMsat:         1_000,
			Proportional:       100_000,
			ValidUntil:         time.Now().Add(time.Hour),
			MinPaymentSizeMsat: 1_000,
			MaxPaymentSizeMsat: 1_000_000,
		},
	}))
	msgs := drainMessages(t, svc)
	menu := msgs[0].Response().(GetInfoResponse).OpeningFeeParamsMenu

	require.NoError(t, svc.HandleBuyRequest(client, "r2", BuyRequest{
		OpeningFeeParams: menu[0],
	}))
	drainEvents(t, svc)
	require.NoError(t, svc.InvoiceParametersGenerated(client, "r2", 42, 144, true, 7))
	drainMessages(t, svc)

	require.NoError(t, svc.HTLCIntercepted(42, InterceptID{0}, 10_000))
	events := drainEvents(t, svc)
	require.Len(t, events, 1)
	openEvt := events[0].(OpenChannelEvent)
	require.Equal(t, uint64(9_000), openEvt.AmtToForwardMsat)
	require.Equal(t, uint64(1_000), openEvt.OpeningFeeMsat)

	// A second HTLC in no-MPP mode is a state-machine error: it must be
	// failed upstream.
	err := svc.HTLCIntercepted(42, InterceptID{1}, 1_000)
	require.Error(t, err)
	require.Len(t, cm.Failed(), 1)
}

// TestScenarioS4InvalidPromise covers a Buy request signed under the
// wrong secret, which must fail promise verification.
func TestScenarioS4InvalidPromise(t *testing.T) {
	svc, _ := testService(t)
	client := testClient(t)

	var otherSecret [32]byte
	copy(otherSecret[:], []byte("a-completely-different-secret!!"))

	params := SignOpeningFeeParams(RawOpeningFeeParams{
		MinFeeMsat:         1_000,
		Proportional:       100_000,
		ValidUntil:         time.Now().Add(time.Hour),
		MinPaymentSizeMsat: 1_000,
		MaxPaymentSizeMsat: 1_000_000,
	}, otherSecret)

	err := svc.HandleBuyRequest(client, "r2", BuyRequest{OpeningFeeParams: params})
	require.Error(t, err)

	msgs := drainMessages(t, svc)
	require.Len(t, msgs, 1)
	buyErr, ok := msgs[0].Response().(BuyError)
	require.True(t, ok)
	require.Equal(t, ErrCodeInvalidOpeningFeeParams, buyErr.Code)

	_, hasState := svc.getPeerState(client)
	if hasState {
		entry, _ := svc.getPeerState(client)
		entry.mu.Lock()
		require.Empty(t, entry.state.pendingRequests)
		entry.mu.Unlock()
	}
}

// TestScenarioS5PaymentTooSmall covers a Buy request whose payment size
// falls below the offered params' minimum.
func TestScenarioS5PaymentTooSmall(t *testing.T) {
	svc, _ := testService(t)
	client := testClient(t)

	params := testParams(1_000, 100_000, 1_000, 1_000_000)
	paymentSize := uint64(100)

	err := svc.HandleBuyRequest(client, "r2", BuyRequest{
		OpeningFeeParams: params,
		PaymentSizeMsat:  &paymentSize,
	})
	require.Error(t, err)

	msgs := drainMessages(t, svc)
	require.Len(t, msgs, 1)
	buyErr := msgs[0].Response().(BuyError)
	require.Equal(t, ErrCodePaymentSizeTooSmall, buyErr.Code)
}

// TestScenarioS6FeeExceedsPayment covers a Buy request whose opening fee
// would consume the entire payment.
func TestScenarioS6FeeExceedsPayment(t *testing.T) {
	svc, _ := testService(t)
	client := testClient(t)

	params := testParams(100, 0, 1, 1_000_000)
	paymentSize := uint64(100)

	err := svc.HandleBuyRequest(client, "r2", BuyRequest{
		OpeningFeeParams: params,
		PaymentSizeMsat:  &paymentSize,
	})
	require.Error(t, err)

	msgs := drainMessages(t, svc)
	require.Len(t, msgs, 1)
	buyErr := msgs[0].Response().(BuyError)
	require.Equal(t, ErrCodePaymentSizeTooSmall, buyErr.Code)
}

func TestInvalidTokenProvidedRequiresPendingRequest(t *testing.T) {
	svc, _ := testService(t)
	client := testClient(t)

	err := svc.InvalidTokenProvided(client, "unknown")
	require.Error(t, err)
	var apiErr *APIMisuseError
	require.ErrorAs(t, err, &apiErr)
}

func TestInvalidTokenProvided(t *testing.T) {
	svc, _ := testService(t)
	client := testClient(t)

	require.NoError(t, svc.HandleGetInfoRequest(client, "r1", GetInfoRequest{Token: "bad"}))
	drainEvents(t, svc)

	require.NoError(t, svc.InvalidTokenProvided(client, "r1"))
	msgs := drainMessages(t, svc)
	require.Len(t, msgs, 1)
	errResp, ok := msgs[0].Response().(GetInfoError)
	require.True(t, ok)
	require.Equal(t, ErrCodeUnrecognizedOrStaleToken, errResp.Code)
}

func TestHTLCInterceptedUnknownScidIsNoop(t *testing.T) {
	svc, _ := testService(t)
	require.NoError(t, svc.HTLCIntercepted(999, InterceptID{}, 1_000))
	require.Empty(t, drainEvents(t, svc))
}

func TestChannelReadyUnknownUserChannelIDErrors(t *testing.T) {
	svc, _ := testService(t)
	client := testClient(t)

	// Force a PeerState to exist without any channel registered.
	svc.getOrCreatePeerState(client)

	var channelID [32]byte
	err := svc.ChannelReady(123, channelID, client)
	require.Error(t, err)
}
