package eventqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loomrun/loom/pkg/models"
)

// RedisQueue backs Queue with a Redis list per conversation: RPUSH appends
// in order, BLPOP blocks for and destructively pops the oldest entry, and
// EXPIRE is refreshed on every push to implement the TTL.
type RedisQueue struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisQueue constructs a RedisQueue. ttl <= 0 uses DefaultTTL.
func NewRedisQueue(client *redis.Client, ttl time.Duration) *RedisQueue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisQueue{client: client, ttl: ttl}
}

func (q *RedisQueue) key(conversationID string) string {
	return "loom:events:" + conversationID
}

func (q *RedisQueue) Publish(ctx context.Context, conversationID string, event models.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventqueue: marshal event: %w", err)
	}
	key := q.key(conversationID)
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.Expire(ctx, key, q.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("eventqueue: publish to %s: %w", key, err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, conversationID string, timeout time.Duration) (models.Event, bool, error) {
	key := q.key(conversationID)
	result, err := q.client.BLPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return models.Event{}, false, nil
	}
	if err != nil {
		return models.Event{}, false, fmt.Errorf("eventqueue: pop from %s: %w", key, err)
	}
	// BLPOP returns [key, value].
	if len(result) != 2 {
		return models.Event{}, false, fmt.Errorf("eventqueue: unexpected BLPOP reply shape: %v", result)
	}
	var event models.Event
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		return models.Event{}, false, fmt.Errorf("eventqueue: unmarshal event: %w", err)
	}
	return event, true, nil
}
