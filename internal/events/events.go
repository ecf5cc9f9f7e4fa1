// Package events defines the exhibit event published by loops, the
// supervisor and the orchestrator.
package events

import (
	"fmt"

	"github.com/zjrosen/displayboard/internal/pubsub"
)

// Event describes something that happened in one part of the exhibit.
type Event struct {
	Source string // Loop or component name, e.g. "rats" or "video"
	Kind   pubsub.EventType
	Detail string
}

func (e Event) String() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s", e.Source, e.Kind, e.Detail)
}

// Bus carries exhibit events.
type Bus = pubsub.Broker[Event]

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return pubsub.NewBroker[Event]()
}

// Publish sends ev on bus. A nil bus discards the event.
func Publish(bus *Bus, source string, kind pubsub.EventType, detail string) {
	if bus == nil {
		return
	}
	bus.Publish(kind, Event{Source: source, Kind: kind, Detail: detail})
}
