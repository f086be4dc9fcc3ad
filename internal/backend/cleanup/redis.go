package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const orphanListKey = "imagestore:orphaned-blobs"

// RedisQueue persists orphaned blob keys in a redis list, so pending
// cleanups survive a service restart.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(address string) (*RedisQueue, error) {
	if address == "" {
		return nil, errors.New("redis address must not be empty")
	}
	client := redis.NewClient(&redis.Options{Addr: address})
	return &RedisQueue{client: client}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, key string) error {
	if err := q.client.LPush(ctx, orphanListKey, key).Err(); err != nil {
		return fmt.Errorf("failed to enqueue orphaned blob key: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (string, bool, error) {
	key, err := q.client.RPop(ctx, orphanListKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to dequeue orphaned blob key: %w", err)
	}
	return key, true, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
