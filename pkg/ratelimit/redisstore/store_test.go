package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finance-garden/admission/pkg/ratelimit"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client), server
}

func TestStoreRecordAndCount(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 3; i++ {
		require.NoError(t, store.Record(ctx, "k", 100+i, time.Minute))
	}

	count, err := store.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestStoreSameSecondAdmissionsAllCount(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Three admissions with an identical timestamp must yield three members.
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(ctx, "k", 100, time.Minute))
	}

	count, err := store.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestStoreRemoveBeforeIsExclusive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "k", 100, time.Minute))
	require.NoError(t, store.Record(ctx, "k", 160, time.Minute))

	// Cutoff equal to a stored timestamp keeps it.
	require.NoError(t, store.RemoveBefore(ctx, "k", 100))
	count, err := store.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, store.RemoveBefore(ctx, "k", 101))
	count, err = store.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStoreKeysAreIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "a", 100, time.Minute))
	require.NoError(t, store.Record(ctx, "b", 100, time.Minute))
	require.NoError(t, store.RemoveBefore(ctx, "a", 200))

	count, err := store.Count(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStoreKeyExpires(t *testing.T) {
	store, server := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "k", 100, time.Minute))
	server.FastForward(61 * time.Second)

	count, err := store.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "abandoned key should expire with its TTL")
}

func TestStoreErrorsWhenServerDown(t *testing.T) {
	store, server := newTestStore(t)
	server.Close()

	_, err := store.Count(context.Background(), "k")
	assert.Error(t, err)
}

func TestSlidingWindowOverRedis(t *testing.T) {
	store, _ := newTestStore(t)

	now := time.Unix(1_700_000_000, 0)
	sw := ratelimit.NewSlidingWindow(store, ratelimit.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	window := 60 * time.Second

	assert.True(t, sw.Allow(ctx, "k", 2, window))
	now = now.Add(time.Second)
	assert.True(t, sw.Allow(ctx, "k", 2, window))
	now = now.Add(time.Second)
	assert.False(t, sw.Allow(ctx, "k", 2, window))
	now = now.Add(59 * time.Second)
	assert.True(t, sw.Allow(ctx, "k", 2, window), "oldest entry should fall out of the window")
}
