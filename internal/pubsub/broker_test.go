package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan Event[T]) Event[T] {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for event")
	}
	return Event[T]{}
}

func TestBroker_DeliversToEverySubscriber(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx := context.Background()
	subs := []<-chan Event[string]{broker.Subscribe(ctx), broker.Subscribe(ctx)}

	broker.Publish(TickEvent, "rats")

	for _, ch := range subs {
		ev := receive(t, ch)
		require.Equal(t, TickEvent, ev.Type)
		require.Equal(t, "rats", ev.Payload)
		require.False(t, ev.Timestamp.IsZero())
	}
}

func TestBroker_CancelRemovesSubscription(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()

	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-ch
	require.False(t, ok)
}

func TestBroker_FullSubscriberDoesNotBlock(t *testing.T) {
	broker := NewBrokerWithBuffer[int](2)
	defer broker.Close()

	_ = broker.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			broker.Publish(TickEvent, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "Publish blocked on a full subscriber")
	}
	require.Equal(t, uint64(8), broker.Dropped())
}

func TestBroker_CloseIsIdempotentAndClosesSubscribers(t *testing.T) {
	broker := NewBroker[string]()
	ch := broker.Subscribe(context.Background())

	broker.Close()
	broker.Close()

	_, ok := <-ch
	require.False(t, ok)

	// Publishing and subscribing after close are harmless.
	broker.Publish(StoppedEvent, "bell")
	_, ok = <-broker.Subscribe(context.Background())
	require.False(t, ok)
}
