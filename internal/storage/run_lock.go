package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/price-alerts/internal/config"
	apperrors "github.com/price-alerts/internal/errors"
)

// ErrLockHeld is returned by Acquire when another run holds the lock, and by
// Extend when this handle no longer owns it.
var ErrLockHeld = errors.New("run lock held by another instance")

// releaseScript deletes the key only if it still carries our token, so a run
// that outlived its lease cannot drop a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript renews the lease only while the key still carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RunLock is a lease in Redis that keeps two job instances from notifying the
// same alerts at once.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewRedisClient connects to the Redis instance named by cfg.RedisURL.
func NewRedisClient(ctx context.Context, cfg *config.LockConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, apperrors.NewConfigError("REDIS_URL", err.Error())
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.NewLockError("connect", fmt.Errorf("failed to connect to Redis: %w", err))
	}
	return client, nil
}

// NewRunLock creates a lock handle; nothing is acquired yet.
func NewRunLock(client *redis.Client, key string, ttl time.Duration) *RunLock {
	return &RunLock{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
	}
}

// Acquire takes the lock or returns ErrLockHeld.
func (l *RunLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return apperrors.NewLockError("acquire", err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Release drops the lock if this handle still owns it. It reports whether a
// key was deleted.
func (l *RunLock) Release(ctx context.Context) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return false, apperrors.NewLockError("release", err)
	}
	return n == 1, nil
}

// Extend resets the lease to the full TTL. It returns ErrLockHeld if the
// lease already expired and another instance took it.
func (l *RunLock) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return apperrors.NewLockError("extend", err)
	}
	if n != 1 {
		return ErrLockHeld
	}
	return nil
}
