package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/levelup/internal/domain/leveling"
)

func TestGetUserRank_FromStore(t *testing.T) {
	store := newFakeRankStore(map[leveling.Snowflake]int{30: 500, 20: 900, 10: 900})
	h := NewGetUserRankHandler(store, nil, nil)

	dto, err := h.Handle(context.Background(), GetUserRankQuery{UserID: 30})
	require.NoError(t, err)
	assert.True(t, dto.Found)
	assert.Equal(t, 3, dto.Rank)
	assert.Equal(t, 500, dto.XP)
	assert.Equal(t, leveling.LevelAtXp(500), dto.Level)
	assert.Equal(t, leveling.XpUntilNextLevel(500), dto.XPToNext)
}

func TestGetUserRank_UnknownUser(t *testing.T) {
	h := NewGetUserRankHandler(newFakeRankStore(nil), nil, nil)

	dto, err := h.Handle(context.Background(), GetUserRankQuery{UserID: 5})
	require.NoError(t, err)
	assert.False(t, dto.Found)
	assert.Equal(t, 0, dto.Rank)
	assert.Equal(t, 0, dto.XP)
	assert.Equal(t, 100, dto.XPToNext)
}

func TestGetUserRank_FromWarmCache(t *testing.T) {
	store := newFakeRankStore(map[leveling.Snowflake]int{1: 100, 2: 200})
	cache := &fakeCache{warm: true, entries: []leveling.LeaderboardEntry{{UserID: 2, XP: 200}, {UserID: 1, XP: 100}}}
	h := NewGetUserRankHandler(store, cache, nil)

	dto, err := h.Handle(context.Background(), GetUserRankQuery{UserID: 1})
	require.NoError(t, err)
	assert.True(t, dto.FromCache)
	assert.Equal(t, 2, dto.Rank)
	assert.Equal(t, 0, store.reads)
}

func TestGetUserRank_Validate(t *testing.T) {
	h := NewGetUserRankHandler(newFakeRankStore(nil), nil, nil)
	_, err := h.Handle(context.Background(), GetUserRankQuery{})
	assert.Error(t, err)
}
