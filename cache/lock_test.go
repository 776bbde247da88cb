package cache

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-guarded-cache/pkg/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, Store, func(string) string) {
	t.Helper()
	client, mr := testsupport.NewRedis(t)
	store := NewRedisStore(client, "", nil)
	get := func(key string) string {
		v, err := mr.Get(key)
		if err != nil {
			return ""
		}
		return v
	}
	return NewLocker(store), store, get
}

func TestLocker_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	locker, _, get := newTestLocker(t)

	lease, ok, err := locker.TryAcquire(ctx, "lock:shop:1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "lock:shop:1", lease.Key())
	assert.NotEmpty(t, get("lock:shop:1"), "lock value carries the owner token")

	_, ok, err = locker.TryAcquire(ctx, "lock:shop:1", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second caller must not acquire a held lock")

	require.NoError(t, lease.Release(ctx))
	assert.Empty(t, get("lock:shop:1"))

	again, ok, err := locker.TryAcquire(ctx, "lock:shop:1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, again.Release(ctx))
}

func TestLocker_DistinctKeysDoNotContend(t *testing.T) {
	ctx := context.Background()
	locker, _, _ := newTestLocker(t)

	a, ok, err := locker.TryAcquire(ctx, "lock:shop:1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	defer a.Release(ctx)

	b, ok, err := locker.TryAcquire(ctx, "lock:shop:2", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	defer b.Release(ctx)
}

func TestLocker_SelfExpiry(t *testing.T) {
	ctx := context.Background()
	client, mr := testsupport.NewRedis(t)
	locker := NewLocker(NewRedisStore(client, "", nil))

	_, ok, err := locker.TryAcquire(ctx, "lock:shop:1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, mr.TTL("lock:shop:1"))

	mr.FastForward(11 * time.Second)

	_, ok, err = locker.TryAcquire(ctx, "lock:shop:1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "an abandoned lock expires on its own")
}

func TestLease_ReleaseAfterExpiryKeepsNewOwner(t *testing.T) {
	ctx := context.Background()
	client, mr := testsupport.NewRedis(t)
	locker := NewLocker(NewRedisStore(client, "", nil))

	stale, ok, err := locker.TryAcquire(ctx, "lock:shop:1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	owner, ok, err := locker.TryAcquire(ctx, "lock:shop:1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("lock:shop:1"), "stale release must not delete the new owner's lock")

	require.NoError(t, owner.Release(ctx))
	assert.False(t, mr.Exists("lock:shop:1"))
}

func TestLease_ReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	locker, _, _ := newTestLocker(t)

	lease, ok, err := locker.TryAcquire(ctx, "lock:shop:1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	var nilLease *Lease
	assert.NoError(t, nilLease.Release(ctx))
}

func TestLease_ReleaseWithCancelledContext(t *testing.T) {
	locker, _, get := newTestLocker(t)

	lease, ok, err := locker.TryAcquire(context.Background(), "lock:shop:1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, lease.Release(ctx))
	assert.Empty(t, get("lock:shop:1"))
}

func TestLocker_BackendFailure(t *testing.T) {
	client, mr := testsupport.NewRedis(t)
	locker := NewLocker(NewRedisStore(client, "", nil))
	mr.SetError("server unavailable")

	_, ok, err := locker.TryAcquire(context.Background(), "lock:shop:1", time.Second)
	assert.False(t, ok)
	assert.True(t, IsBackingStoreError(err))
}
