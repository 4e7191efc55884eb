// Package eventqueue implements the Event Broadcaster: a durable, ordered,
// per-conversation queue with a fixed TTL that the Turn Processor publishes
// to and the Streaming Endpoint pops from.
//
// The queue is single-producer per conversation (only the Turn Processor
// currently running that conversation's turn publishes) but supports
// competing consumers: Pop destructively removes the event it returns, so
// two concurrent pollers never both receive the same event.
package eventqueue

import (
	"context"
	"time"

	"github.com/loomrun/loom/pkg/models"
)

// DefaultTTL is how long an idle conversation's queue survives before
// eviction.
const DefaultTTL = time.Hour

// Queue is the Event Broadcaster's contract. Implementations must preserve
// insertion order and never redeliver a popped event.
type Queue interface {
	// Publish appends event to conversationID's queue and refreshes its TTL.
	// Publishing past a terminal event is a caller error the implementation
	// does not itself guard against; the Turn Processor stops processing
	// once a terminal event is emitted.
	Publish(ctx context.Context, conversationID string, event models.Event) error

	// Pop blocks up to timeout for the next event on conversationID's
	// queue, returning ok=false on timeout with no error. A popped event is
	// removed from the queue and will not be returned to another caller.
	Pop(ctx context.Context, conversationID string, timeout time.Duration) (event models.Event, ok bool, err error)
}
