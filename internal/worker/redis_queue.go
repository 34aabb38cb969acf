package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list holding pending events.
const DefaultQueueKey = "relay:events"

// RedisQueue keeps pending events in a Redis list so they survive a restart
// of the relay process.
type RedisQueue struct {
	client      *redis.Client
	key         string
	pollTimeout time.Duration
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{
		client:      client,
		key:         key,
		pollTimeout: time.Second,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, ev *domain.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("pushing event: %w", err)
	}
	return nil
}

// Dequeue waits in short BLPOP rounds so a cancelled context is noticed
// promptly.
func (q *RedisQueue) Dequeue(ctx context.Context) (*domain.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := q.client.BLPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("popping event: %w", err)
		}

		// BLPOP replies with [key, value].
		return decodeEvent([]byte(result[1]))
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("querying queue length: %w", err)
	}
	return n, nil
}

func decodeEvent(data []byte) (*domain.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var ev domain.Event
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("unmarshaling event: %w", err)
	}
	return &ev, nil
}
