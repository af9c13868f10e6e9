package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"einvoice-dispatch/config"
	redisStore "einvoice-dispatch/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounterStore is an in-memory ports.CounterStore. TTLs are ignored; the
// breaker's transitions are driven by its injected clock, not key expiry.
type fakeCounterStore struct {
	mu     sync.Mutex
	values map[string]int64
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{values: make(map[string]int64)}
}

func (f *fakeCounterStore) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key]++
	return f.values[key], nil
}

func (f *fakeCounterStore) Get(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeCounterStore) Set(_ context.Context, key string, value int64, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeCounterStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func newTestBreaker(store *fakeCounterStore) *RedisBreaker {
	return NewRedisBreaker(store, config.BreakerConfig{
		FailureThreshold: 5,
		OpenWindow:       300 * time.Second,
		HalfOpenTrials:   3,
	}, zerolog.Nop())
}

func TestBreaker_OpensAfterThresholdFailures(t *testing.T) {
	store := newFakeCounterStore()
	b := newTestBreaker(store)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
		allowed, err := b.Allow(ctx, ChannelSendDocument)
		require.NoError(t, err)
		assert.True(t, allowed, "breaker must stay closed below the threshold")
	}

	require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))

	allowed, err := b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	assert.False(t, allowed, "5th consecutive failure opens the breaker")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	store := newFakeCounterStore()
	b := newTestBreaker(store)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	}
	require.NoError(t, b.RecordSuccess(ctx, ChannelSendDocument))

	// The count restarts; 4 more failures do not reach the threshold.
	for i := 0; i < 4; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	}

	allowed, err := b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestBreaker_HalfOpenAfterWindow(t *testing.T) {
	store := newFakeCounterStore()
	b := newTestBreaker(store)
	ctx := context.Background()

	base := time.Now()
	b.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	}

	allowed, err := b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	assert.False(t, allowed, "open before the window elapses")

	b.now = func() time.Time { return base.Add(301 * time.Second) }

	allowed, err = b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	assert.True(t, allowed, "first probe after the window is permitted")
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	store := newFakeCounterStore()
	b := newTestBreaker(store)
	ctx := context.Background()

	base := time.Now()
	b.now = func() time.Time { return base }
	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	}
	b.now = func() time.Time { return base.Add(301 * time.Second) }

	allowed, err := b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, b.RecordSuccess(ctx, ChannelSendDocument))

	// Closed again: a single failure does not trip it.
	require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	allowed, err = b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestBreaker_HalfOpenFailedProbesReopen(t *testing.T) {
	store := newFakeCounterStore()
	b := newTestBreaker(store)
	ctx := context.Background()

	base := time.Now()
	b.now = func() time.Time { return base }
	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	}

	probeTime := base.Add(301 * time.Second)
	b.now = func() time.Time { return probeTime }

	allowed, err := b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	require.True(t, allowed)

	// Three failed probes re-open the breaker.
	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	}

	allowed, err = b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	assert.False(t, allowed, "exhausted probes re-open the breaker")
}

func TestBreaker_HalfOpenSurvivesRedisExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := NewRedisBreaker(redisStore.NewCounterStore(client), config.BreakerConfig{
		FailureThreshold: 5,
		OpenWindow:       300 * time.Second,
		HalfOpenTrials:   3,
	}, zerolog.Nop())
	ctx := context.Background()

	base := time.Now()
	b.now = func() time.Time { return base }
	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	}
	allowed, err := b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	require.False(t, allowed)

	// Real expiry: opened_at must still be readable once the window has
	// elapsed, otherwise Allow never sees the open state it should be
	// transitioning out of.
	mr.FastForward(301 * time.Second)
	b.now = func() time.Time { return base.Add(301 * time.Second) }

	allowed, err = b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	require.True(t, allowed, "first probe after the window is permitted")

	// Half-open for real, not silently reset to closed: three failed probes
	// re-open the breaker instead of starting a fresh five-failure count.
	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	}
	allowed, err = b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	assert.False(t, allowed, "failed probes re-open the breaker")
}

func TestBreaker_StragglerFailureDoesNotExtendOpenWindow(t *testing.T) {
	store := newFakeCounterStore()
	b := newTestBreaker(store)
	ctx := context.Background()

	base := time.Now()
	b.now = func() time.Time { return base }
	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	}

	// An in-flight call finishing after the trip must not refresh opened_at.
	b.now = func() time.Time { return base.Add(100 * time.Second) }
	require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))

	b.now = func() time.Time { return base.Add(301 * time.Second) }
	allowed, err := b.Allow(ctx, ChannelSendDocument)
	require.NoError(t, err)
	assert.True(t, allowed, "cooldown is measured from the original trip")
}

func TestBreaker_ChannelsAreIndependent(t *testing.T) {
	store := newFakeCounterStore()
	b := newTestBreaker(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordFailure(ctx, ChannelSendDocument))
	}

	allowed, err := b.Allow(ctx, ChannelSendDespatch)
	require.NoError(t, err)
	assert.True(t, allowed, "one channel opening must not gate another")
}
