package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestLimiter_MemoryStore_AllowsUpToMaxThenDenies(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := New(NewMemoryStore(WithClock(clock.Now)), 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := limiter.Check(ctx, "rate_limit:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := limiter.Check(ctx, "rate_limit:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 60, res.ResetSeconds())
}

func TestLimiter_MemoryStore_ResetsAfterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := New(NewMemoryStore(WithClock(clock.Now)), 1, 10*time.Second)
	ctx := context.Background()

	res, _ := limiter.Check(ctx, "k")
	require.True(t, res.Allowed)
	res, _ = limiter.Check(ctx, "k")
	require.False(t, res.Allowed)

	clock.Advance(4 * time.Second)
	res, _ = limiter.Check(ctx, "k")
	assert.False(t, res.Allowed)
	assert.Equal(t, 6, res.ResetSeconds())

	clock.Advance(6 * time.Second)
	res, err := limiter.Check(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "window should have reset")
	assert.Equal(t, 0, res.Remaining)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter := New(NewMemoryStore(), 1, time.Minute)
	ctx := context.Background()

	a, _ := limiter.Check(ctx, "a")
	b, _ := limiter.Check(ctx, "b")
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
}

func TestLimiter_WindowRoundsUpToSeconds(t *testing.T) {
	limiter := New(NewMemoryStore(), 1, 1500*time.Millisecond)
	assert.Equal(t, 2*time.Second, limiter.Window())

	limiter = New(NewMemoryStore(), 1, 0)
	assert.Equal(t, time.Second, limiter.Window())
}

func TestMemoryStore_SweepsExpiredKeys(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	store := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < sweepThreshold; i++ {
		_, _, err := store.Increment(ctx, fmt.Sprintf("key-%d", i), time.Second)
		require.NoError(t, err)
	}
	require.Equal(t, sweepThreshold, store.Len())

	clock.Advance(2 * time.Second)
	_, _, err := store.Increment(ctx, "fresh", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

// =============================================================================
// Redis Store Tests
// =============================================================================

func TestLimiter_RedisStore_DeniesAndResets(t *testing.T) {
	store, mr := newRedisStore(t)
	limiter := New(store, 2, 30*time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Check(ctx, "rate_limit:unknown")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Check(ctx, "rate_limit:unknown")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 30, res.ResetSeconds())

	mr.FastForward(31 * time.Second)

	res, err = limiter.Check(ctx, "rate_limit:unknown")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "counter should reset once the key expires")
	assert.Equal(t, 1, res.Remaining)
}

func TestRedisStore_SetsExpiryOnFirstIncrement(t *testing.T) {
	store, mr := newRedisStore(t)

	count, ttl, err := store.Increment(context.Background(), "k", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 5*time.Second, ttl)
	assert.Equal(t, 5*time.Second, mr.TTL("k"))
}

func TestRedisStore_RestoresMissingExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set("k", "4"))

	count, ttl, err := store.Increment(context.Background(), "k", 7*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, 7*time.Second, ttl)
	assert.Equal(t, 7*time.Second, mr.TTL("k"))
}

func TestRedisStore_WindowIsNotExtended(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	_, _, err := store.Increment(ctx, "k", 10*time.Second)
	require.NoError(t, err)

	mr.FastForward(4 * time.Second)

	count, ttl, err := store.Increment(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 6*time.Second, ttl)
	assert.Equal(t, 6*time.Second, mr.TTL("k"))
}

func TestLimiter_StoreErrorIsReturnedWithPermissiveResult(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.SetError("ERR backend unavailable")
	limiter := New(store, 5, time.Minute)

	res, err := limiter.Check(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
}

type failingStore struct{ err error }

func (f failingStore) Increment(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, f.err
}

func TestLimiter_WrapsStoreError(t *testing.T) {
	sentinel := errors.New("boom")
	_, err := New(failingStore{err: sentinel}, 1, time.Second).Check(context.Background(), "k")
	assert.ErrorIs(t, err, sentinel)
}
