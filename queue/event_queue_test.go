package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventQueueNextEventNonBlocking(t *testing.T) {
	q := NewEventQueue()

	_, ok := q.NextEvent()
	require.False(t, ok)

	q.Enqueue("a")
	q.Enqueue("b")

	e, ok := q.NextEvent()
	require.True(t, ok)
	require.Equal(t, "a", e)

	e, ok = q.NextEvent()
	require.True(t, ok)
	require.Equal(t, "b", e)

	_, ok = q.NextEvent()
	require.False(t, ok)
}

func TestEventQueueGetAndClearPendingEvents(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)

	events := q.GetAndClearPendingEvents()
	require.Equal(t, []Event{1, 2, 3}, events)

	require.Empty(t, q.GetAndClearPendingEvents())
}

func TestEventQueueWaitNextEvent(t *testing.T) {
	q := NewEventQueue()

	done := make(chan Event, 1)
	go func() {
		done <- q.WaitNextEvent()
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue("late")

	select {
	case e := <-done:
		require.Equal(t, "late", e)
	case <-time.After(time.Second):
		t.Fatal("WaitNextEvent did not return")
	}
}

func TestEventQueueWaitNextEventFairChainWakeup(t *testing.T) {
	q := NewEventQueue()

	results := make(chan Event, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- q.WaitNextEvent()
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Enqueue("first")
	q.Enqueue("second")

	seen := map[Event]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-results:
			seen[e] = true
		case <-time.After(time.Second):
			t.Fatal("not all waiters were woken")
		}
	}
	require.True(t, seen["first"])
	require.True(t, seen["second"])
}

func TestEventQueueNextEventAsync(t *testing.T) {
	q := NewEventQueue()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	resultCh := make(chan Event, 1)
	go func() {
		e, err := q.NextEventAsync(ctx)
		errCh <- err
		resultCh <- e
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue("async")

	require.NoError(t, <-errCh)
	require.Equal(t, "async", <-resultCh)
}

func TestEventQueueNextEventAsyncCancellation(t *testing.T) {
	q := NewEventQueue()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.NextEventAsync(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
