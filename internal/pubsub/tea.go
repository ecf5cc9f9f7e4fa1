package pubsub

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Batch is the tea.Msg a Listener delivers: the event that woke it plus
// whatever was already queued behind it. A busy exhibit publishes a tick per
// loop iteration, so draining keeps the dashboard at one redraw per batch.
type Batch[T any] struct {
	Events []Event[T]
}

// Payloads returns the batch payloads in publish order.
func (b Batch[T]) Payloads() []T {
	out := make([]T, len(b.Events))
	for i, ev := range b.Events {
		out[i] = ev.Payload
	}
	return out
}

// Listener feeds one broker subscription into a Bubble Tea program.
// Return Next from Update after each Batch to keep receiving.
type Listener[T any] struct {
	ctx   context.Context
	ch    <-chan Event[T]
	limit int
}

// NewListener subscribes to broker for the lifetime of ctx. A batch holds at
// most limit events; limit < 1 means one event per batch.
func NewListener[T any](ctx context.Context, broker *Broker[T], limit int) *Listener[T] {
	return &Listener[T]{ctx: ctx, ch: broker.Subscribe(ctx), limit: max(limit, 1)}
}

// Next returns a tea.Cmd that blocks for the next event and yields a Batch,
// or nil once the context is cancelled or the broker is closed.
func (l *Listener[T]) Next() tea.Cmd {
	return func() tea.Msg {
		var first Event[T]
		select {
		case <-l.ctx.Done():
			return nil
		case ev, ok := <-l.ch:
			if !ok {
				return nil
			}
			first = ev
		}
		batch := Batch[T]{Events: []Event[T]{first}}
		for len(batch.Events) < l.limit {
			select {
			case ev, ok := <-l.ch:
				if !ok {
					return batch
				}
				batch.Events = append(batch.Events, ev)
			default:
				return batch
			}
		}
		return batch
	}
}
