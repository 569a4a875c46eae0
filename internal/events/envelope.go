// Package events publishes domain events to the storefront topic exchange.
package events

import (
	"time"

	"github.com/go-faster/jx"
)

// Payload is an event body that knows how to encode itself.
type Payload interface {
	Encode(e *jx.Encoder)
}

// EventEnvelope is the common envelope for all events.
type EventEnvelope[T Payload] struct {
	EventName    string
	EventVersion int
	EventID      string
	Producer     string
	PartitionKey string
	OccurredAt   time.Time
	Payload      T
}

// Encode writes the envelope as a JSON object.
func (env EventEnvelope[T]) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("eventName", func(e *jx.Encoder) { e.Str(env.EventName) })
		e.Field("eventVersion", func(e *jx.Encoder) { e.Int(env.EventVersion) })
		e.Field("eventId", func(e *jx.Encoder) { e.Str(env.EventID) })
		e.Field("producer", func(e *jx.Encoder) { e.Str(env.Producer) })
		e.Field("partitionKey", func(e *jx.Encoder) { e.Str(env.PartitionKey) })
		e.Field("occurredAt", func(e *jx.Encoder) { e.Str(env.OccurredAt.Format(time.RFC3339Nano)) })
		e.Field("payload", env.Payload.Encode)
	})
}
