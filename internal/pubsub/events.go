// Package pubsub provides a generic publish/subscribe event system used for
// the registry fault stream and log fan-out.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// FaultEvent carries a non-fatal registry anomaly.
	FaultEvent EventType = "fault"
	// LogEvent carries a formatted log line.
	LogEvent EventType = "log"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context, opts ...SubscribeOption[T]) <-chan Event[T]
}

// Publisher publishes events with a typed payload and reports how many
// subscribers received them.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T) int
}

var (
	_ Subscriber[string] = (*Broker[string])(nil)
	_ Publisher[string]  = (*Broker[string])(nil)
)
