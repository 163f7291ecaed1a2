package queue

import (
	"container/list"
	"context"
	"sync"
)

// Event is a host-visible occurrence the embedding application must react
// to. It is kept as an opaque interface{} here since the concrete event
// vocabulary (GetInfo, BuyRequest, OpenChannel, ...) belongs to the lsps2
// package, not to the queue mechanics.
type Event interface{}

// EventQueue is a thread-safe FIFO of Events, handed off between protocol
// goroutines and the embedding host. Exactly one delivery per enqueued
// event is guaranteed; there is no re-delivery on a failed consumer.
//
// Three consumption styles are supported simultaneously: a non-blocking
// poll (NextEvent), a blocking wait for goroutine-based hosts
// (WaitNextEvent), and a context-aware async wait for hosts built around
// a single cooperative consumer (NextEventAsync).
type EventQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	events  *list.List
	wakerMu sync.Mutex
	waker   chan struct{}
}

// NewEventQueue constructs an empty EventQueue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{
		events: list.New(),
	}
	q.cond = sync.NewCond(&q.mu)

	return q
}

// Enqueue appends an event to the back of the queue, wakes one waiter
// blocked in WaitNextEvent, and releases the caller parked in
// NextEventAsync, if any.
func (q *EventQueue) Enqueue(event Event) {
	q.mu.Lock()
	q.events.PushBack(event)
	q.mu.Unlock()

	q.cond.Signal()
	q.wake()
}

// NextEvent pops the oldest pending event without blocking. It returns
// false if the queue is empty.
func (q *EventQueue) NextEvent() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.popLocked()
}

// WaitNextEvent blocks until an event is available, then pops and returns
// it. If, after popping, further events remain, another blocked waiter is
// woken so that waiters drain the queue in a fair chain rather than
// thundering on every enqueue.
func (q *EventQueue) WaitNextEvent() Event {
	q.mu.Lock()
	for q.events.Len() == 0 {
		q.cond.Wait()
	}

	event, _ := q.popLocked()
	remaining := q.events.Len() > 0
	q.mu.Unlock()

	if remaining {
		q.cond.Signal()
		q.wake()
	}

	return event
}

// NextEventAsync blocks cooperatively until an event is available or ctx is
// done. A single wake-token slot is sufficient because the queue expects
// exactly one async consumer at a time; registering the token and checking
// for emptiness happen under the same lock so no wakeup can be missed
// between the check and the registration.
func (q *EventQueue) NextEventAsync(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		event, ok := q.popLocked()
		if ok {
			q.mu.Unlock()
			return event, nil
		}

		wake := q.registerWaker()
		q.mu.Unlock()

		select {
		case <-wake:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetAndClearPendingEvents atomically drains every event currently queued.
func (q *EventQueue) GetAndClearPendingEvents() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	events := make([]Event, 0, q.events.Len())
	for e := q.events.Front(); e != nil; e = e.Next() {
		events = append(events, e.Value.(Event))
	}
	q.events.Init()

	return events
}

// popLocked removes and returns the front event. Caller must hold q.mu.
func (q *EventQueue) popLocked() (Event, bool) {
	front := q.events.Front()
	if front == nil {
		return nil, false
	}
	q.events.Remove(front)

	return front.Value.(Event), true
}

// registerWaker installs a fresh wake channel and returns it. Only one
// token is ever outstanding; a new call replaces whatever the previous
// async waiter was holding.
func (q *EventQueue) registerWaker() chan struct{} {
	q.wakerMu.Lock()
	defer q.wakerMu.Unlock()

	ch := make(chan struct{})
	q.waker = ch

	return ch
}

// wake closes and clears the outstanding wake token, if any, releasing the
// parked NextEventAsync caller.
func (q *EventQueue) wake() {
	q.wakerMu.Lock()
	defer q.wakerMu.Unlock()

	if q.waker != nil {
		close(q.waker)
		q.waker = nil
	}
}
