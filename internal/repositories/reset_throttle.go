package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisResetThrottle remembers recent reset requests per address so that a
// mailbox receives at most one reset email per cooldown window.
type RedisResetThrottle struct {
	client *redis.Client
	prefix string
}

func NewRedisResetThrottle(client *redis.Client) *RedisResetThrottle {
	return &RedisResetThrottle{client: client, prefix: "harvestly:reset:"}
}

// Allow claims the window for key. It returns false when a claim is already live.
func (t *RedisResetThrottle) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+key, time.Now().UTC().Unix(), window).Result()
	if err != nil {
		return false, fmt.Errorf("reset throttle: %w", err)
	}
	return ok, nil
}
