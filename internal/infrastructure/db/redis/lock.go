package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

const defaultLeaseTTL = 5 * time.Minute

// releaseScript deletes the lease only while it still holds our token, so a
// lease that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a ports.UserLocker shared by every instance of the service.
// Key format: lease:user:<user_id>
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewLocker creates a Locker whose leases expire after ttl if never released.
// If ttl <= 0, defaultLeaseTTL is used.
func NewLocker(client *redis.Client, ttl time.Duration, log zerolog.Logger) *Locker {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &Locker{client: client, ttl: ttl, log: log}
}

// Acquire takes the lease of userID or fails with domain.ErrUserBusy.
func (l *Locker) Acquire(ctx context.Context, userID string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	key := l.key(userID)
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return nil, domain.ErrUserBusy
	}

	return func() {
		// the request context may already be cancelled
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("user_id", userID).Msg("release lease failed, waiting for expiry")
		}
	}, nil
}

func (l *Locker) key(userID string) string {
	return "lease:user:" + userID
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lease token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
