// Package lock provides the guard that keeps sync cycles from overlapping.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock not acquired")

// Guard runs fn while holding an exclusive lock, or returns ErrNotAcquired
// immediately when the lock is taken. It never waits.
type Guard interface {
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// LocalGuard excludes concurrent holders within one process.
type LocalGuard struct {
	mu sync.Mutex
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

func (g *LocalGuard) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.mu.TryLock() {
		return ErrNotAcquired
	}
	defer g.mu.Unlock()
	return fn(ctx)
}
