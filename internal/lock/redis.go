package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	// Expiry bounds how long a crashed holder can block others.
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 100 * time.Millisecond,
	}
}

// RedisLocker is a Locker shared by every API instance pointing at the
// same Redis, built on redsync.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts RedisOptions
}

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewRedisLocker(client redis.UniversalClient, opts RedisOptions) *RedisLocker {
	def := DefaultRedisOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Tries <= 0 {
		opts.Tries = def.Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if key == "" {
		return ErrEmptyKey
	}

	mutex := l.rs.NewMutex(
		key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, err)
	}
	slog.Debug("lock acquired", "key", key)

	defer func() {
		// Release even when the caller's context is already done.
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			slog.Error("failed to release lock", "key", key, "unlock_ok", ok, "error", err)
		}
	}()

	return fn(ctx)
}
