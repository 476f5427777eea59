// Package pubsub provides a generic publish/subscribe event system used for
// best-effort change feeds: registry activity, tracked-entry changes and log
// lines. Delivery never blocks the publisher; slow subscribers lose events.
package pubsub

import (
	"context"
	"time"
)

// EventType says what happened to the payload.
type EventType string

// Event types. Added and Removed describe set membership, Created carries a
// new value such as a log line, Failed carries a non-fatal error.
const (
	CreatedEvent EventType = "created"
	AddedEvent   EventType = "added"
	RemovedEvent EventType = "removed"
	FailedEvent  EventType = "failed"
)

// Event is one delivery on a feed.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time // set by the broker at publish time
}

// Subscriber is anything a feed can be read from. Collections expose their
// change feed through it.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher is the write side of a feed.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
