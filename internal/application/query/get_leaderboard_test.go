package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/levelup/internal/domain/leveling"
)

func TestGetLeaderboard_StoreOrderAndTies(t *testing.T) {
	store := newFakeRankStore(map[leveling.Snowflake]int{30: 500, 20: 900, 10: 900})
	h := NewGetLeaderboardHandler(store, nil, LeaderboardLimits{}, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, leveling.Snowflake(10), res.Entries[0].UserID)
	assert.Equal(t, 3, res.Entries.RankOf(30))
	assert.False(t, res.FromCache)
}

func TestGetLeaderboard_EmptyStoreYieldsPlaceholder(t *testing.T) {
	h := NewGetLeaderboardHandler(newFakeRankStore(nil), nil, LeaderboardLimits{}, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{Limit: 5})
	require.NoError(t, err)
	assert.True(t, res.Entries.IsPlaceholder())
	assert.Equal(t, leveling.NotRanked, res.Entries.RankOf(1))
}

func TestGetLeaderboard_ClampsLimit(t *testing.T) {
	xp := map[leveling.Snowflake]int{}
	for i := 1; i <= 30; i++ {
		xp[leveling.Snowflake(i)] = i * 10
	}
	h := NewGetLeaderboardHandler(newFakeRankStore(xp), nil, LeaderboardLimits{Default: 5, Max: 20}, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 5)

	res, err = h.Handle(context.Background(), GetLeaderboardQuery{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 20)
}

func TestGetLeaderboard_ColdCacheIsWarmed(t *testing.T) {
	store := newFakeRankStore(map[leveling.Snowflake]int{1: 100, 2: 200, 3: 300})
	cache := &fakeCache{}
	h := NewGetLeaderboardHandler(store, cache, LeaderboardLimits{}, nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, GetLeaderboardQuery{Limit: 2})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Entries, 2)
	assert.Equal(t, 1, cache.rebuilt)
	assert.Len(t, cache.entries, 3)

	res, err = h.Handle(ctx, GetLeaderboardQuery{Limit: 2})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, leveling.Snowflake(3), res.Entries[0].UserID)
	assert.Equal(t, 2, store.reads)
}

func TestGetLeaderboard_WarmingKeepsAwardsCommittedMeanwhile(t *testing.T) {
	store := newFakeRankStore(map[leveling.Snowflake]int{1: 100, 2: 200})
	// An award for user 1 commits after the snapshot read, while the board
	// is still cold and its cache update is dropped.
	store.afterLeaderboard = func(n int) {
		if n == 1 {
			store.put(1, 500)
		}
	}
	cache := &fakeCache{}
	h := NewGetLeaderboardHandler(store, cache, LeaderboardLimits{}, nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, leveling.Snowflake(1), res.Entries[0].UserID)
	assert.Equal(t, 1, cache.merged)

	res, err = h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	require.True(t, res.FromCache)
	assert.Equal(t, leveling.Snowflake(1), res.Entries[0].UserID)
	assert.Equal(t, 500, res.Entries[0].XP)
}

func TestGetLeaderboard_CacheErrorFallsBack(t *testing.T) {
	store := newFakeRankStore(map[leveling.Snowflake]int{1: 100})
	h := NewGetLeaderboardHandler(store, &fakeCache{err: errors.New("redis down")}, LeaderboardLimits{}, nil)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Entries.RankOf(1))
}
