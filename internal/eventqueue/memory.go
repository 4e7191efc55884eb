package eventqueue

import (
	"context"
	"sync"
	"time"

	"github.com/loomrun/loom/pkg/models"
)

// MemoryQueue is an in-process Queue for tests, pairing with the durable
// Redis-backed implementation the same way internal/storage pairs its
// in-memory and Postgres stores. A slice per conversation holds pending
// events in order; Publish closes a
// per-conversation notify channel to wake any blocked Pop, matching the
// "close a channel to broadcast" idiom rather than sync.Cond, since a
// closed channel a Pop is select-ing on never blocks a goroutine that
// outlives the wait (no waiter leak on timeout).
type MemoryQueue struct {
	mu     sync.Mutex
	queue  map[string][]models.Event
	notify map[string]chan struct{}
}

// NewMemoryQueue constructs an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		queue:  make(map[string][]models.Event),
		notify: make(map[string]chan struct{}),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, conversationID string, event models.Event) error {
	q.mu.Lock()
	q.queue[conversationID] = append(q.queue[conversationID], event)
	ch := q.notify[conversationID]
	q.notify[conversationID] = make(chan struct{})
	q.mu.Unlock()
	if ch != nil {
		close(ch)
	}
	return nil
}

// Pop blocks up to timeout for the next event on conversationID's queue.
func (q *MemoryQueue) Pop(ctx context.Context, conversationID string, timeout time.Duration) (models.Event, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		events := q.queue[conversationID]
		if len(events) > 0 {
			q.queue[conversationID] = events[1:]
			q.mu.Unlock()
			return events[0], true, nil
		}
		ch, ok := q.notify[conversationID]
		if !ok {
			ch = make(chan struct{})
			q.notify[conversationID] = ch
		}
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return models.Event{}, false, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return models.Event{}, false, ctx.Err()
		case <-timer.C:
			return models.Event{}, false, nil
		case <-ch:
			timer.Stop()
			// Loop and re-check: another Pop may have already taken the
			// newly published event.
		}
	}
}
