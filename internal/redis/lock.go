package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("timeline lock not acquired")
)

// Locker serializes reservations on one provider's timeline for one
// date. Bookings for different providers (or different dates) never
// contend.
type Locker interface {
	WithTimelineLock(ctx context.Context, providerID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error
}

type redisTimelineLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTimelineLocker creates a locker backed by a per
// (provider, date) Redis key.
func NewRedisTimelineLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisTimelineLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisTimelineLocker) WithTimelineLock(ctx context.Context, providerID uuid.UUID, day time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:timeline:%s:%s", providerID.String(), day.UTC().Format("2006-01-02"))
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire timeline lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// unlockScript deletes the key only if it still holds our token, so an
// expired lock taken over by another caller is never released by us.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisTimelineLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release timeline lock: %w", err)
	}
	return nil
}
