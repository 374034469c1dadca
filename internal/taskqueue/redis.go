package taskqueue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBroker keeps each named queue as a Redis list, with a companion
// sorted set holding delayed tasks scored by due time. Promotion moves
// due members from the set onto the list; a task is therefore
// delivered at least once but may be delivered twice around a crash.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func readyKey(queue string) string {
	return "queue:" + queue
}

func delayedKey(queue string) string {
	return "queue:" + queue + ":delayed"
}

func (b *RedisBroker) Push(ctx context.Context, queue string, data []byte) error {
	if err := b.client.RPush(ctx, readyKey(queue), data).Err(); err != nil {
		return fmt.Errorf("redis push %q: %w", queue, err)
	}
	return nil
}

func (b *RedisBroker) PushDelayed(ctx context.Context, queue string, data []byte, due time.Time) error {
	member := &redis.Z{Score: float64(due.UnixMilli()), Member: data}
	if err := b.client.ZAdd(ctx, delayedKey(queue), member).Err(); err != nil {
		return fmt.Errorf("redis push delayed %q: %w", queue, err)
	}
	return nil
}

func (b *RedisBroker) Pop(ctx context.Context, queue string, block time.Duration) ([]byte, error) {
	res, err := b.client.BLPop(ctx, block, readyKey(queue)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis pop %q: %w", queue, err)
	}
	// BLPop returns [key, value]
	if len(res) != 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

func (b *RedisBroker) PromoteDue(ctx context.Context, queue string, now time.Time) (int, error) {
	max := strconv.FormatInt(now.UnixMilli(), 10)
	members, err := b.client.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis promote %q: %w", queue, err)
	}

	promoted := 0
	for _, m := range members {
		removed, err := b.client.ZRem(ctx, delayedKey(queue), m).Result()
		if err != nil {
			return promoted, fmt.Errorf("redis promote %q: %w", queue, err)
		}
		if removed == 0 {
			continue // another worker promoted it first
		}
		if err := b.client.RPush(ctx, readyKey(queue), m).Err(); err != nil {
			return promoted, fmt.Errorf("redis promote %q: %w", queue, err)
		}
		promoted++
	}
	return promoted, nil
}
