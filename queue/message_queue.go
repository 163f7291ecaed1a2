package queue

import (
	"container/list"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Message is an outbound protocol message bound for a peer. It is kept
// opaque here; the concrete protocol vocabulary (GetInfoResponse,
// BuyResponse, ...) belongs to the lsps2 package.
type Message interface{}

// PeerMessage pairs an outbound message with the peer it must be sent to.
type PeerMessage struct {
	Peer    *btcec.PublicKey
	Message Message
}

// ProcessMsgsCallback is a host-installed signal meaning "drain me": it is
// invoked after a message has been appended to the queue so the host's
// send loop knows there is work waiting in GetAndClearPendingMsgs.
type ProcessMsgsCallback func()

// MessageQueue is a thread-safe FIFO of (peer, message) pairs used to hand
// outbound protocol messages off to the host's send loop.
type MessageQueue struct {
	mu       sync.Mutex
	messages *list.List

	callbackMu sync.RWMutex
	callback   ProcessMsgsCallback
}

// NewMessageQueue constructs an empty MessageQueue.
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{
		messages: list.New(),
	}
}

// Enqueue appends (peer, msg) to the queue and then invokes the installed
// process-callback, if any, after releasing the queue's own lock. Invoking
// the callback while still holding the lock would deadlock against a host
// send loop that calls back into GetAndClearPendingMsgs from within the
// callback.
func (q *MessageQueue) Enqueue(peer *btcec.PublicKey, msg Message) {
	q.mu.Lock()
	q.messages.PushBack(PeerMessage{Peer: peer, Message: msg})
	q.mu.Unlock()

	q.callbackMu.RLock()
	cb := q.callback
	q.callbackMu.RUnlock()

	if cb != nil {
		cb()
	}
}

// GetAndClearPendingMsgs atomically drains every message currently queued.
func (q *MessageQueue) GetAndClearPendingMsgs() []PeerMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	msgs := make([]PeerMessage, 0, q.messages.Len())
	for e := q.messages.Front(); e != nil; e = e.Next() {
		msgs = append(msgs, e.Value.(PeerMessage))
	}
	q.messages.Init()

	return msgs
}

// SetProcessMsgsCallback installs or replaces the process-callback. Safe to
// call concurrently with Enqueue and with itself.
func (q *MessageQueue) SetProcessMsgsCallback(cb ProcessMsgsCallback) {
	q.callbackMu.Lock()
	defer q.callbackMu.Unlock()

	q.callback = cb
}
