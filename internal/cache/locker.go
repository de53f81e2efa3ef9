package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrLockLost means the lease expired or was released before the work it guards finished
var ErrLockLost = errors.New("region lock lost")

// Locker provides mutual exclusion per key
type Locker interface {
	Lock(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock
type Lease interface {
	// Held returns ErrLockLost if another holder may have acquired the key
	Held(ctx context.Context) error
	// Release is idempotent
	Release()
}

// LocalLocker is a keyed mutex for a single process
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Lease, error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	return &localLease{locker: l, key: key, kl: kl}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

type localLease struct {
	locker   *LocalLocker
	key      string
	kl       *keyLock
	mu       sync.Mutex
	released bool
}

func (ll *localLease) Held(ctx context.Context) error {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.released {
		return ErrLockLost
	}
	return nil
}

func (ll *localLease) Release() {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.released {
		return
	}
	ll.released = true
	<-ll.kl.sem
	ll.locker.release(ll.key, ll.kl)
}
