// Package lock provides the Redis-backed approval lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"fuel-ledger/internal/core"
)

// RedisLocker serialises approvals across processes. Obtain does not wait:
// a held key fails fast with core.ErrLockNotObtained.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (core.Lock, error) {
	lk, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%s: %w", key, core.ErrLockNotObtained)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return redisLock{lk}, nil
}

type redisLock struct {
	lk *redislock.Lock
}

// Release ignores ErrLockNotHeld: the TTL expired and the key is already free.
func (r redisLock) Release(ctx context.Context) error {
	if err := r.lk.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return err
	}
	return nil
}

var _ core.Locker = (*RedisLocker)(nil)
