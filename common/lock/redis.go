package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "glbconvert:lock:"

// RedisLocker is a cross-process lock for deployments with several replicas
// sharing one outputs directory. A held lock is refreshed every ttl/2 until
// released, so long conversions do not lose it.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	log     *logger.Logger
}

// NewRedisLocker creates a Redis-backed locker
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		backoff: 200 * time.Millisecond,
		log:     log,
	}
}

// Lock retries until the lock is obtained or ctx is done
func (r *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	var (
		l   *redislock.Lock
		err error
	)
	for {
		l, err = r.client.Obtain(ctx, keyPrefix+key, r.ttl, nil)
		if err == nil {
			break
		}
		if !errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("obtain lock %s: %w", key, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.backoff):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(l, key, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if err := l.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.log.Warn("failed to release lock", "key", key, "error", err)
			}
		})
	}, nil
}

func (r *RedisLocker) keepAlive(l *redislock.Lock, key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := l.Refresh(context.Background(), r.ttl, nil); err != nil {
				r.log.Warn("failed to refresh lock", "key", key, "error", err)
				return
			}
		}
	}
}
