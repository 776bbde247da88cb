package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const releaseTimeout = 2 * time.Second

// Locker provides token-owned mutual exclusion per key on top of a Store.
// A lock is a key created with SetIfAbsent whose value is a random owner
// token; it self-expires after its TTL if never released.
type Locker struct {
	store    Store
	newToken func() string
}

// NewLocker returns a Locker backed by store.
func NewLocker(store Store) *Locker {
	return &Locker{
		store:    store,
		newToken: func() string { return uuid.NewString() },
	}
}

// TryAcquire attempts to take the lock at key without waiting. It returns a
// Lease and true when this caller now holds the lock.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	token := []byte(l.newToken())

	acquired, err := l.store.SetIfAbsent(ctx, key, token, ttl)
	if err != nil || !acquired {
		return nil, false, err
	}

	return &Lease{
		store: l.store,
		key:   key,
		token: token,
	}, true, nil
}

// Lease is a held lock. Release is idempotent and safe to defer.
type Lease struct {
	store Store
	key   string
	token []byte
	once  sync.Once
	err   error
}

// Key returns the lock key.
func (l *Lease) Key() string {
	return l.key
}

// Release deletes the lock only if it still carries this lease's token, so a
// late release after self-expiry never removes another holder's lock.
// Release still runs when ctx is already cancelled.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}

	l.once.Do(func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		_, l.err = l.store.CompareAndDelete(releaseCtx, l.key, l.token)
	})
	return l.err
}
