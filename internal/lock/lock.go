// Package lock serializes ledger operations that read goals and write them
// back. Keys are scoped per owner and per account so unrelated families
// never wait on each other.
package lock

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrNotAcquired = errors.New("lock not acquired")
	ErrEmptyKey    = errors.New("lock key is empty")
)

// Locker runs fn while holding an exclusive lock on key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

func OwnerKey(ownerID uuid.UUID) string {
	return "lock:owner:" + ownerID.String()
}

func AccountKey(accountID uuid.UUID) string {
	return "lock:account:" + accountID.String()
}

// WithLocks acquires every key in sorted order, runs fn, then releases them
// in reverse. Duplicate and empty keys are dropped.
func WithLocks(ctx context.Context, l Locker, keys []string, fn func(context.Context) error) error {
	seen := make(map[string]struct{}, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)
	return nest(ctx, l, ordered, fn)
}

func nest(ctx context.Context, l Locker, keys []string, fn func(context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	return l.WithLock(ctx, keys[0], func(ctx context.Context) error {
		return nest(ctx, l, keys[1:], fn)
	})
}
