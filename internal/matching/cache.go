package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CachedScore is the full scoring result for one pair, cached whole so
// a hit skips the engine entirely.
type CachedScore struct {
	Score     float64   `json:"score"`
	SubScores SubScores `json:"sub_scores"`
}

// ScoreCache stores computed pair scores keyed by ordered pair and
// calendar day, and holds the per-(member, day) generation marker.
// Purely an optimization and a concurrency guard; never the source of
// truth for persisted scores.
type ScoreCache interface {
	GetScore(ctx context.Context, seekerID, candidateID int64, day string) (*CachedScore, bool, error)
	PutScore(ctx context.Context, seekerID, candidateID int64, day string, score *CachedScore) error

	// AcquireGenerationMarker atomically claims the (member, day)
	// generation slot. Returns false when a run already claimed it.
	AcquireGenerationMarker(ctx context.Context, memberID int64, day string) (bool, error)
}

type redisScoreCache struct {
	client     *redis.Client
	ttlPadding time.Duration
}

func NewRedisScoreCache(client *redis.Client, ttlPadding time.Duration) ScoreCache {
	return &redisScoreCache{client: client, ttlPadding: ttlPadding}
}

func scoreKey(seekerID, candidateID int64, day string) string {
	return fmt.Sprintf("match:score:%d:%d:%s", seekerID, candidateID, day)
}

func markerKey(memberID int64, day string) string {
	return fmt.Sprintf("match:generated:%d:%s", memberID, day)
}

func (c *redisScoreCache) GetScore(ctx context.Context, seekerID, candidateID int64, day string) (*CachedScore, bool, error) {
	val, err := c.client.Get(ctx, scoreKey(seekerID, candidateID, day)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("score cache get: %w", err)
	}

	var cached CachedScore
	if err := json.Unmarshal(val, &cached); err != nil {
		// Treat stale or malformed entries as misses
		return nil, false, nil
	}
	return &cached, true, nil
}

func (c *redisScoreCache) PutScore(ctx context.Context, seekerID, candidateID int64, day string, score *CachedScore) error {
	raw, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("score cache encode: %w", err)
	}
	key := scoreKey(seekerID, candidateID, day)
	ttl := untilEndOfDay(day, c.ttlPadding)
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("score cache put: %w", err)
	}
	return nil
}

func (c *redisScoreCache) AcquireGenerationMarker(ctx context.Context, memberID int64, day string) (bool, error) {
	// TTL slightly longer than a day so a marker never expires while
	// its day is still current.
	acquired, err := c.client.SetNX(ctx, markerKey(memberID, day), "1", 26*time.Hour).Result()
	if err != nil {
		return false, fmt.Errorf("generation marker: %w", err)
	}
	return acquired, nil
}

// untilEndOfDay returns a TTL that expires the entry shortly after the
// given calendar day ends. Falls back to 24h on a malformed day key.
func untilEndOfDay(day string, padding time.Duration) time.Duration {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return 24 * time.Hour
	}
	return time.Until(t.AddDate(0, 0, 1)) + padding
}

// DayKey formats a timestamp as the calendar-day bucket used by the
// score cache and the generation marker.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
