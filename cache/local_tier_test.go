package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuerier struct {
	mu          sync.Mutex
	records     map[int64]shop
	err         error
	queries     map[int64]int
	invalidated []int64
}

func newStubQuerier() *stubQuerier {
	return &stubQuerier{records: map[int64]shop{}, queries: map[int64]int{}}
}

func (s *stubQuerier) Query(ctx context.Context, id int64) (shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[id]++
	if s.err != nil {
		return shop{}, s.err
	}
	rec, ok := s.records[id]
	if !ok {
		return shop{}, ErrNotFound
	}
	return rec, nil
}

func (s *stubQuerier) Invalidate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, id)
	return nil
}

func (s *stubQuerier) count(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[id]
}

func newTestLocalTier(t *testing.T, next Querier[int64, shop]) *LocalTier[int64, shop] {
	t.Helper()
	cfg := DefaultLocalTierConfig()
	cfg.TTL = time.Minute
	tier, err := NewLocalTier[int64, shop](cfg, next)
	require.NoError(t, err)
	return tier
}

func TestLocalTier_CachesHits(t *testing.T) {
	next := newStubQuerier()
	next.records[1] = shop{ID: 1, Name: "Tea House"}
	tier := newTestLocalTier(t, next)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec, err := tier.Query(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Tea House", rec.Name)
	}
	assert.Equal(t, 1, next.count(1))
}

func TestLocalTier_RemembersNotFound(t *testing.T) {
	next := newStubQuerier()
	tier := newTestLocalTier(t, next)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := tier.Query(ctx, 42)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, next.count(42))
}

func TestLocalTier_DoesNotCacheErrors(t *testing.T) {
	next := newStubQuerier()
	next.records[1] = shop{ID: 1}
	boom := errors.New("backing store down")
	next.err = boom
	tier := newTestLocalTier(t, next)
	ctx := context.Background()

	_, err := tier.Query(ctx, 1)
	assert.ErrorIs(t, err, boom)

	next.mu.Lock()
	next.err = nil
	next.mu.Unlock()

	rec, err := tier.Query(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.ID)
	assert.Equal(t, 2, next.count(1))
}

func TestLocalTier_InvalidatePropagates(t *testing.T) {
	next := newStubQuerier()
	next.records[1] = shop{ID: 1, Name: "Tea House"}
	tier := newTestLocalTier(t, next)
	ctx := context.Background()

	_, err := tier.Query(ctx, 1)
	require.NoError(t, err)

	next.mu.Lock()
	next.records[1] = shop{ID: 1, Name: "Tea House II"}
	next.mu.Unlock()

	require.NoError(t, tier.Invalidate(ctx, 1))
	assert.Equal(t, []int64{1}, next.invalidated)

	rec, err := tier.Query(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Tea House II", rec.Name)
}

func TestLocalTier_InFrontOfService(t *testing.T) {
	f := newServiceFixture(t, testConfig(func(c *Config) { c.Strategy = StrategyPassThrough }))
	f.loader.Put(1, shop{ID: 1, Name: "Tea House"})
	tier := newTestLocalTier(t, f.svc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := tier.Query(ctx, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.loader.Calls(1))

	require.NoError(t, tier.Invalidate(ctx, 1))
	assert.False(t, f.mr.Exists("cache:shop:1"))
}

func TestNewLocalTier_InvalidConfig(t *testing.T) {
	cfg := DefaultLocalTierConfig()
	cfg.Capacity = 0
	_, err := NewLocalTier[int64, shop](cfg, newStubQuerier())
	assert.Error(t, err)
}
