package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrHeld is returned when another run already holds the lock
var ErrHeld = errors.New("lock is held by another run")

// Unlock releases a lock obtained from a Locker
type Unlock func(ctx context.Context) error

// Locker serializes writers on a key
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-writer lock backed by SET NX with a TTL
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisLocker creates a Redis-backed locker
func NewRedisLocker(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: "assetalloc:lock:",
		ttl:    ttl,
		log:    log.With().Str("component", "lock").Logger(),
	}
}

// Lock acquires key, failing with ErrHeld if another holder has it
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	full := l.prefix + key
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, key)
	}
	l.log.Debug().Str("key", full).Dur("ttl", l.ttl).Msg("Acquired lock")

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{full}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		if n == 0 {
			l.log.Warn().Str("key", full).Msg("Lock expired before release")
		}
		return nil
	}, nil
}

// Noop never blocks. Used when Redis is disabled.
type Noop struct{}

// Lock always succeeds
func (Noop) Lock(context.Context, string) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}
