package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-service/internal/core/domain"
	"github.com/99minutos/identity-service/internal/core/ports"
)

const defaultLockTTL = 5 * time.Second

var _ ports.RotationLocker = (*RotationLock)(nil)

// releaseScript deletes the key only if it still holds our owner token, so
// a lock that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RotationLock serializes session rotation per user.
// Key format: lock:rotate:<user_id>
type RotationLock struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRotationLock wraps client. The lock expires after ttl even if the
// holder never releases it.
func NewRotationLock(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RotationLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RotationLock{client: client, ttl: ttl, log: log}
}

// Acquire takes the lock for userID or returns domain.ErrRotationInProgress.
func (l *RotationLock) Acquire(ctx context.Context, userID string) (func(), error) {
	owner, err := ownerToken()
	if err != nil {
		return nil, err
	}
	key := l.key(userID)

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("rotation lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrRotationInProgress
	}

	return func() {
		// The request context may already be done; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, owner).Err(); err != nil {
			l.log.Warn().Err(err).Str("user_id", userID).Msg("failed to release rotation lock")
		}
	}, nil
}

func (l *RotationLock) key(userID string) string {
	return "lock:rotate:" + userID
}

func ownerToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rotation lock owner: %w", err)
	}
	return hex.EncodeToString(b), nil
}
