package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"SiteSign/storage/redis"
)

// SlidingWindowHit records one hit on key and returns how many hits fall in
// the trailing window, this one included.
func SlidingWindowHit(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	fullKey := redis.Key("rate", key)
	windowStart := now.Add(-window)

	pipe := redis.Client().Pipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, fullKey, goredis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	count := pipe.ZCard(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to execute rate limit pipeline: %w", err)
	}
	return int(count.Val()), nil
}

// Block marks key as blocked for d.
func Block(ctx context.Context, key string, d time.Duration) error {
	return redis.Client().Set(ctx, redis.Key("rate", "block", key), "1", d).Err()
}

func IsBlocked(ctx context.Context, key string) (bool, error) {
	n, err := redis.Client().Exists(ctx, redis.Key("rate", "block", key)).Result()
	return n > 0, err
}
