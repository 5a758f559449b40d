package circle

import (
	"context"
	"sync"
)

// Locker serializes circle assignment per scope key. The returned func
// releases the lock and must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// KeyedLocker is an in-process Locker. Entries live only while someone
// holds or waits for the key.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyedLock{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(key, entry)
		})
	}, nil
}

func (l *KeyedLocker) release(key string, entry *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports how many keys are currently tracked.
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// LayeredLocker takes local before remote for the same key, so at most one
// goroutine per process waits on the remote lock for any key. Unlock
// releases in reverse order.
type LayeredLocker struct {
	local  Locker
	remote Locker
}

func NewLayeredLocker(local, remote Locker) *LayeredLocker {
	return &LayeredLocker{local: local, remote: remote}
}

func (l *LayeredLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	unlockRemote, err := l.remote.Lock(ctx, key)
	if err != nil {
		unlockLocal()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockRemote()
			unlockLocal()
		})
	}, nil
}
