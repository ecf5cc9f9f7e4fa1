package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListener_DrainsQueuedEvents(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener(ctx, broker, 2)
	broker.Publish(TickEvent, "rats")
	broker.Publish(TickEvent, "bell")
	broker.Publish(FailedEvent, "video")

	first, ok := l.Next()().(Batch[string])
	require.True(t, ok)
	require.Equal(t, []string{"rats", "bell"}, first.Payloads())

	second, ok := l.Next()().(Batch[string])
	require.True(t, ok)
	require.Equal(t, []string{"video"}, second.Payloads())
	require.Equal(t, FailedEvent, second.Events[0].Type)
}

func TestListener_KeepsReceiving(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener(ctx, broker, 0)
	for i := 1; i <= 3; i++ {
		broker.Publish(TickEvent, i)
		batch, ok := l.Next()().(Batch[int])
		require.True(t, ok)
		require.Equal(t, []int{i}, batch.Payloads())
	}
}

func TestListener_NilWhenDone(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		broker := NewBroker[string]()
		defer broker.Close()
		ctx, cancel := context.WithCancel(context.Background())
		l := NewListener(ctx, broker, 4)
		cancel()
		require.Nil(t, l.Next()())
	})

	t.Run("broker closed", func(t *testing.T) {
		broker := NewBroker[string]()
		l := NewListener(context.Background(), broker, 4)
		broker.Close()
		require.Nil(t, l.Next()())
	})
}
