package cache

import (
	"context"
	"time"

	"SiteSign/storage/redis"
)

const lockPrefix = "lock"

// TryLock takes a best-effort distributed lock that expires after ttl.
func TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return redis.Client().SetNX(ctx, redis.Key(lockPrefix, key), 1, ttl).Result()
}

func Unlock(ctx context.Context, key string) error {
	return redis.Client().Del(ctx, redis.Key(lockPrefix, key)).Err()
}
