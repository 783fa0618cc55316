// Package lock provides short-lived named locks used to keep a single
// reconciliation pass per organization running at a time.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker acquires a named lock without waiting. ok is false when another
// holder owns the key; unlock is nil in that case.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// LocalLocker is a process-local Locker
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalLocker creates a new LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time)}
}

// TryLock acquires key until unlock is called or ttl elapses
func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, false, nil
	}
	expires := now.Add(ttl)
	l.held[key] = expires

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == expires {
				delete(l.held, key)
			}
		})
	}, true, nil
}
