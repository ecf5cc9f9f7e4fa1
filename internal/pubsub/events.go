// Package pubsub fans out typed events from the exhibit loops to anyone
// watching: the dashboard, the log tail and tests.
package pubsub

import (
	"context"
	"time"
)

// EventType classifies a published event.
type EventType string

const (
	StartedEvent EventType = "started" // A task or loop began running
	TickEvent    EventType = "tick"    // One loop iteration or poll completed
	FailedEvent  EventType = "failed"  // A recoverable failure was logged
	StoppedEvent EventType = "stopped" // A task or loop returned
	LogEvent     EventType = "log"     // A formatted log line
)

// Event is a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher publishes events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
