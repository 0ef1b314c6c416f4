package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers accepted one-time code steps in Redis.
// Key format: totp:used:<user_id>:<counter>
type ReplayGuard struct {
	client *redis.Client
}

// NewReplayGuard creates a ReplayGuard wrapping the given Redis client.
func NewReplayGuard(client *redis.Client) *ReplayGuard {
	return &ReplayGuard{client: client}
}

// MarkUsed records the step and reports whether it was fresh. The key
// expires after ttl.
func (g *ReplayGuard) MarkUsed(ctx context.Context, userID string, counter int64, ttl time.Duration) (bool, error) {
	fresh, err := g.client.SetNX(ctx, g.key(userID, counter), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("totp replay check: %w", err)
	}
	return fresh, nil
}

func (g *ReplayGuard) key(userID string, counter int64) string {
	return fmt.Sprintf("totp:used:%s:%d", userID, counter)
}
