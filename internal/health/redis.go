package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChecker verifies that the registry backend answers a ping and can
// serve a write/read roundtrip.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a Redis health checker.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string {
	return "redis"
}

// Check pings Redis and then round-trips a short-lived keyed write. A
// reachable server that cannot serve writes still fails the check, which
// matters because pipeline registry records are write-heavy.
func (r *RedisChecker) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	key := fmt.Sprintf("visionpipe:health:%d", time.Now().UnixNano())
	if err := r.client.Set(ctx, key, "ok", 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write failed: %w", err)
	}

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis read failed: %w", err)
	}
	if val != "ok" {
		return fmt.Errorf("redis roundtrip returned %q", val)
	}

	r.client.Del(ctx, key)
	return nil
}
