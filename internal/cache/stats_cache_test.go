package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/library-engine/internal/domain"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, server
}

func TestStatsCache_RoundTrip(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewStatsCache(client, 5*time.Minute)
	ctx := context.Background()
	today := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	miss, generation, err := cache.Get(ctx, 1, today)
	require.NoError(t, err)
	assert.Nil(t, miss)
	assert.Zero(t, generation)

	stats := &domain.LoanStats{ActiveLoans: 2, ReturnedBooks: 3, OverdueBooks: 1, TotalLoans: 6}
	require.NoError(t, cache.Set(ctx, 1, today, generation, stats))

	got, _, err := cache.Get(ctx, 1, today)
	require.NoError(t, err)
	assert.Equal(t, stats, got)

	assert.True(t, server.Exists("loan_stats:1"))
	ttl := server.TTL("loan_stats:1")
	assert.True(t, ttl > 0 && ttl <= 5*time.Minute)
}

func TestStatsCache_EntriesAreScopedToTheDay(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewStatsCache(client, time.Minute)
	ctx := context.Background()
	today := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Set(ctx, 1, today, 0, &domain.LoanStats{ActiveLoans: 1}))

	stats, _, err := cache.Get(ctx, 1, today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestStatsCache_Invalidate(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewStatsCache(client, time.Minute)
	ctx := context.Background()
	today := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, cache.Set(ctx, 1, today, 0, &domain.LoanStats{ActiveLoans: 1}))
	require.NoError(t, cache.Set(ctx, 2, today, 0, &domain.LoanStats{ActiveLoans: 4}))
	require.NoError(t, cache.Invalidate(ctx, 1))

	assert.False(t, server.Exists("loan_stats:1"))
	stats, _, err := cache.Get(ctx, 2, today)
	require.NoError(t, err)
	assert.NotNil(t, stats)

	_, generation, err := cache.Get(ctx, 1, today)
	require.NoError(t, err)
	assert.Equal(t, int64(1), generation)
}

func TestStatsCache_SetAfterInvalidateIsDropped(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewStatsCache(client, time.Minute)
	ctx := context.Background()
	today := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	// A reader misses, an issue commits and invalidates, then the reader
	// writes the counts it read before the issue.
	_, generation, err := cache.Get(ctx, 1, today)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, 1))
	require.NoError(t, cache.Set(ctx, 1, today, generation, &domain.LoanStats{}))

	assert.False(t, server.Exists("loan_stats:1"))
	stats, current, err := cache.Get(ctx, 1, today)
	require.NoError(t, err)
	assert.Nil(t, stats)

	fresh := &domain.LoanStats{ActiveLoans: 1, TotalLoans: 1}
	require.NoError(t, cache.Set(ctx, 1, today, current, fresh))
	stats, _, err = cache.Get(ctx, 1, today)
	require.NoError(t, err)
	assert.Equal(t, fresh, stats)
}

func TestStatsCache_CorruptEntry(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewStatsCache(client, time.Minute)
	server.HSet("loan_stats:1", "2024-01-05", "not json")

	stats, _, err := cache.Get(context.Background(), 1, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
	assert.Nil(t, stats)
}

func TestStatsCache_ServerDown(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewStatsCache(client, time.Minute)
	server.Close()

	_, _, err := cache.Get(context.Background(), 1, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
	assert.Error(t, cache.Set(context.Background(), 1, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), 0, &domain.LoanStats{}))
}
