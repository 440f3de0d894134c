// Package queue decouples event verification from event processing with an
// at-least-once delivery channel.
//
// Delivery semantics: an event stays pending until the handler reports it as
// settled; unsettled events are reclaimed and redelivered after MinIdle.
// Duplicate delivery is therefore possible and the processing side must
// tolerate re-running a whole event.
package queue

import (
	"context"
)

// Handler settles one delivered event. Returning nil acknowledges the event;
// returning an error leaves it pending for redelivery.
type Handler func(ctx context.Context, groupID string, body []byte) error

type Queue interface {
	// Enqueue publishes an event body with its ordering group id.
	Enqueue(ctx context.Context, groupID string, body []byte) error
	// Consume blocks, delivering events to handle until ctx is canceled.
	Consume(ctx context.Context, handle Handler) error
	Close() error
}
