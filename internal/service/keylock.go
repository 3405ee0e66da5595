package service

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedLocks serializes work per key. Entries are dropped once no caller
// holds or waits on them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// Acquire blocks until the key is free or ctx is done.
func (k *keyedLocks) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{sem: semaphore.NewWeighted(1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		k.drop(key, l)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			k.drop(key, l)
		})
	}, nil
}

func (k *keyedLocks) drop(key string, l *keyedLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func lockKey(kind string, parts ...string) string {
	return kind + "\x00" + strings.Join(parts, "\x00")
}
