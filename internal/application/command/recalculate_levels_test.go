package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

func TestRecalculateLevels_FixesLevelsOnly(t *testing.T) {
	store := newMemStore()
	store.put(leveling.UserLevelRecord{UserID: 1, CurrentXP: 250, CurrentLevel: 0})
	store.put(leveling.UserLevelRecord{UserID: 2, CurrentXP: 50, CurrentLevel: 0})
	store.put(leveling.UserLevelRecord{UserID: 3, CurrentXP: 1000, CurrentLevel: 9})
	repo := &memSettingsRepo{}
	pub := &recordingPublisher{}
	h := NewRecalculateLevelsHandler(store, repo, pub, RecalculateLevelsConfig{GuildID: 1, BatchSize: 2})

	res, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 2, res.Updated)
	assert.Zero(t, res.Skipped)
	assert.NotEmpty(t, res.RunID)

	for id, xp := range map[leveling.Snowflake]int{1: 250, 2: 50, 3: 1000} {
		rec := store.get(id)
		assert.Equal(t, xp, rec.CurrentXP)
		assert.True(t, rec.LevelConsistent(), "user %d", id)
	}
	assert.False(t, repo.marked.IsZero())
	require.Len(t, pub.ofType(shared.EventLevelsRecalculated), 1)
	assert.Zero(t, store.xpWrites)
}

func TestRecalculateLevels_ConcurrentAwardWins(t *testing.T) {
	store := newMemStore()
	store.put(leveling.UserLevelRecord{UserID: 1, CurrentXP: 250, CurrentLevel: 0})
	h := NewRecalculateLevelsHandler(store, &memSettingsRepo{}, nil, RecalculateLevelsConfig{})

	// XP moved after the scan read the row: the conditional write must lose.
	stale := store.get(1)
	store.put(leveling.UserLevelRecord{UserID: 1, CurrentXP: 400, CurrentLevel: leveling.LevelAtXp(400)})

	ok, err := h.lockedSetLevel(context.Background(), stale)
	require.NoError(t, err)
	assert.False(t, ok)
	rec := store.get(1)
	assert.Equal(t, 400, rec.CurrentXP)
	assert.Equal(t, leveling.LevelAtXp(400), rec.CurrentLevel)
}

func TestRecalculateLevel_SingleUser(t *testing.T) {
	store := newMemStore()
	store.put(leveling.UserLevelRecord{UserID: 1, CurrentXP: 250, CurrentLevel: 7})
	h := NewRecalculateLevelsHandler(store, &memSettingsRepo{}, nil, RecalculateLevelsConfig{})
	ctx := context.Background()

	changed, err := h.RecalculateLevel(ctx, 1)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, leveling.LevelAtXp(250), store.get(1).CurrentLevel)

	changed, err = h.RecalculateLevel(ctx, 1)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = h.RecalculateLevel(ctx, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRecalculateLevels_EmptyStore(t *testing.T) {
	h := NewRecalculateLevelsHandler(newMemStore(), &memSettingsRepo{}, nil, RecalculateLevelsConfig{})
	res, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}
