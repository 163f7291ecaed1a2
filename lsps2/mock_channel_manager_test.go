package lsps2

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
)

// forwardedHTLC records one call to ForwardInterceptedHTLC, so tests can
// assert on what this engine asked the node to forward.
type forwardedHTLC struct {
	id         InterceptID
	channelID  [32]byte
	nextNodeID *btcec.PublicKey
	amountMsat uint64
}

type mockChannelManager struct {
	mu sync.Mutex

	failed    []InterceptID
	forwarded []forwardedHTLC
}

func newMockChannelManager() *mockChannelManager {
	return &mockChannelManager{}
}

func (m *mockChannelManager) FailInterceptedHTLC(id InterceptID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed = append(m.failed, id)
	return nil
}

func (m *mockChannelManager) ForwardInterceptedHTLC(id InterceptID, channelID [32]byte, nextNodeID *btcec.PublicKey, amountMsat uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.forwarded = append(m.forwarded, forwardedHTLC{
		id:         id,
		channelID:  channelID,
		nextNodeID: nextNodeID,
		amountMsat: amountMsat,
	})
	return nil
}

func (m *mockChannelManager) Forwarded() []forwardedHTLC {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]forwardedHTLC, len(m.forwarded))
	copy(out, m.forwarded)
	return out
}

func (m *mockChannelManager) Failed() []InterceptID {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]InterceptID, len(m.failed))
	copy(out, m.failed)
	return out
}
