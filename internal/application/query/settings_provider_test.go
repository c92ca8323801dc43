package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

func TestSettingsProvider_FallbacksWithoutRow(t *testing.T) {
	p := NewSettingsProvider(&fakeSettingsRepo{}, 42, time.Minute, nil)
	ctx := context.Background()

	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Configured)

	enabled, err := p.IsActivityEnabled(ctx, leveling.ActivityText)
	require.NoError(t, err)
	assert.False(t, enabled)

	m, err := p.MultiplierFor(ctx, leveling.ActivityVoice)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m)

	tmpl, err := p.LevelUpMessageTemplate(ctx)
	require.NoError(t, err)
	assert.Equal(t, leveling.DefaultLevelUpMessage, tmpl)

	tmpl, err = p.LevelUpRewardMessageTemplate(ctx)
	require.NoError(t, err)
	assert.Equal(t, leveling.DefaultLevelUpRewardMessage, tmpl)

	ch, err := p.NotificationChannel(ctx)
	require.NoError(t, err)
	assert.True(t, ch.IsZero())

	rewards, err := p.RewardTable(ctx)
	require.NoError(t, err)
	assert.Empty(t, rewards)

	overrides, err := p.MultiplierOverrides(ctx)
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestSettingsProvider_CachesUntilTTL(t *testing.T) {
	repo := &fakeSettingsRepo{
		settings: &leveling.LevelingSettings{GuildID: 42, TextActive: true, TextMultiplier: 2, VoiceMultiplier: 1},
		rewards:  []leveling.LevelReward{{Level: 10, RoleID: 2}, {Level: 5, RoleID: 1}},
	}
	p := NewSettingsProvider(repo, 42, time.Minute, nil)
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Configured)
	assert.Equal(t, 5, snap.Rewards[0].Level)

	_, err = p.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.loads.Load())

	now = now.Add(time.Minute)
	_, err = p.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), repo.loads.Load())

	p.Invalidate()
	_, err = p.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), repo.loads.Load())
}

func TestSettingsProvider_ConcurrentMissesLoadOnce(t *testing.T) {
	repo := &fakeSettingsRepo{delay: 20 * time.Millisecond}
	p := NewSettingsProvider(repo, 42, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Snapshot(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), repo.loads.Load())
}

func TestSettingsProvider_InvalidateDuringLoad(t *testing.T) {
	repo := &fakeSettingsRepo{
		settings: &leveling.LevelingSettings{GuildID: 42, TextMultiplier: 1, VoiceMultiplier: 1},
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	p := NewSettingsProvider(repo, 42, time.Minute, nil)
	ctx := context.Background()

	stale := make(chan leveling.SettingsSnapshot, 1)
	go func() {
		snap, err := p.Snapshot(ctx)
		assert.NoError(t, err)
		stale <- snap
	}()
	<-repo.entered

	// An admin write lands while the first load still holds the old row.
	repo.settings = &leveling.LevelingSettings{GuildID: 42, TextActive: true, TextMultiplier: 3, VoiceMultiplier: 1}
	p.Invalidate()

	// A caller after the invalidation does not share the old load.
	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, snap.MultiplierFor(leveling.ActivityText))

	close(repo.release)
	old := <-stale
	assert.Equal(t, 1.0, old.MultiplierFor(leveling.ActivityText))

	// The late result of the old load was not cached.
	snap, err = p.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, snap.MultiplierFor(leveling.ActivityText))
	assert.EqualValues(t, 2, repo.loads.Load())
}

func TestSettingsProvider_StorageFailure(t *testing.T) {
	repo := &fakeSettingsRepo{}
	repo.fail.Store(true)
	p := NewSettingsProvider(repo, 42, time.Minute, nil)
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	_, err := p.Snapshot(context.Background())
	assert.ErrorIs(t, err, shared.ErrStorageUnavailable)

	repo.fail.Store(false)
	_, err = p.Snapshot(context.Background())
	require.NoError(t, err)

	repo.fail.Store(true)
	now = now.Add(2 * time.Minute)
	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err, "stale snapshot served")
	assert.False(t, snap.Configured)
}
