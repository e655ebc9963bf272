package lock

import (
	"context"
	"fmt"
	"sync"
)

// LocalLocker is an in-process Locker for single-instance deployments and
// tests. Waiters give up when their context ends.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if key == "" {
		return ErrEmptyKey
	}

	s := l.ref(key)
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
	}
	defer func() {
		<-s.ch
		l.unref(key, s)
	}()

	return fn(ctx)
}

func (l *LocalLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// held reports how many keys currently have holders or waiters.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
