package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/loomrun/loom/internal/observability"
)

// TaskQueue enqueues turn-processing tasks. A Processor's own follow-up
// enqueue and the HTTP layer's message/tool-result handlers are its only
// callers.
type TaskQueue interface {
	Enqueue(ctx context.Context, conversationID string) error
}

// MemoryTaskQueue is an in-process TaskQueue plus the worker-facing Lease
// side of the scheduling model: the queue hands out a per-conversation
// lease such that at most one turn for a given conversation is active at
// any time, while different conversations proceed in parallel.
//
// The bookkeeping follows a mutex + map + insertion-order slice shape, and
// the blocking Lease wait reuses internal/eventqueue's close-a-channel-to-
// broadcast idiom — a closed channel never leaks a goroutine blocked past
// the moment the wait should have woken.

// pendingTask pairs a queued conversation ID with the time it was enqueued,
// so Lease can report how long it waited once granted.
type pendingTask struct {
	conversationID string
	enqueuedAt     time.Time
}

type MemoryTaskQueue struct {
	mu      sync.Mutex
	pending []pendingTask
	leased  map[string]bool
	notify  chan struct{}

	// Metrics records queue depth and wait-time metrics. Nil disables
	// metric recording.
	Metrics *observability.Metrics
}

// NewMemoryTaskQueue constructs an empty MemoryTaskQueue.
func NewMemoryTaskQueue() *MemoryTaskQueue {
	return &MemoryTaskQueue{
		leased: make(map[string]bool),
		notify: make(chan struct{}),
	}
}

// Enqueue appends conversationID to the pending list. It never
// deduplicates: a conversation already leased (actively processing) that
// enqueues its own follow-up turn is expected to append a second entry,
// which Lease simply will not hand out until the current lease releases.
func (q *MemoryTaskQueue) Enqueue(ctx context.Context, conversationID string) error {
	q.mu.Lock()
	q.pending = append(q.pending, pendingTask{conversationID: conversationID, enqueuedAt: time.Now()})
	depth := len(q.pending)
	ch := q.notify
	q.notify = make(chan struct{})
	q.mu.Unlock()
	close(ch)
	observability.EmitTurnEnqueued(&observability.TurnEnqueuedEvent{ConversationID: conversationID, QueueDepth: depth})
	if q.Metrics != nil {
		q.Metrics.SetTaskQueueDepth(depth)
	}
	return nil
}

// Lease blocks until a pending conversation ID not already leased by
// another caller becomes available, then returns it leased along with a
// release function the caller must invoke exactly once when it is done
// (success, failure, or cancellation all release the same way).
func (q *MemoryTaskQueue) Lease(ctx context.Context) (string, func(), error) {
	for {
		q.mu.Lock()
		idx := -1
		for i, task := range q.pending {
			if !q.leased[task.conversationID] {
				idx = i
				break
			}
		}
		if idx >= 0 {
			task := q.pending[idx]
			q.pending = append(q.pending[:idx:idx], q.pending[idx+1:]...)
			q.leased[task.conversationID] = true
			depth := len(q.pending)
			metrics := q.Metrics
			q.mu.Unlock()
			if metrics != nil {
				metrics.SetTaskQueueDepth(depth)
				metrics.RecordTaskQueueWait(time.Since(task.enqueuedAt).Seconds())
			}
			return task.conversationID, func() { q.release(task.conversationID) }, nil
		}
		ch := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-ch:
		}
	}
}

func (q *MemoryTaskQueue) release(conversationID string) {
	q.mu.Lock()
	delete(q.leased, conversationID)
	ch := q.notify
	q.notify = make(chan struct{})
	q.mu.Unlock()
	close(ch)
}

// Pending reports the number of entries waiting for a lease, for tests.
func (q *MemoryTaskQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
