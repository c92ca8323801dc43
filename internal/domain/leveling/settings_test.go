package leveling

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings(42)
	snap := NewSettingsSnapshot(s, false, nil, nil, time.Now())

	assert.False(t, snap.IsActivityEnabled(ActivityText))
	assert.False(t, snap.IsActivityEnabled(ActivityVoice))
	assert.Equal(t, 1.0, snap.MultiplierFor(ActivityText))
	assert.Equal(t, 1.0, snap.MultiplierFor(ActivityVoice))
	assert.Equal(t, "Congratulations {user}! You just advanced to level {level}!", snap.Settings.LevelUpMessage)
	assert.Equal(t, "Congratulations {username}! You just advanced to level {level} and received {rolename}!", snap.Settings.LevelUpRewardMessage)
	assert.Equal(t, Snowflake(0), snap.Settings.LevelUpChannelID)
	assert.Empty(t, snap.Rewards)
	assert.Empty(t, snap.Overrides)
	assert.False(t, snap.Configured)
}

func TestSettingsSnapshot_EmptyTemplatesFallBack(t *testing.T) {
	s := LevelingSettings{TextActive: true, TextMultiplier: 2}
	snap := NewSettingsSnapshot(s, true, nil, nil, time.Now())

	assert.Equal(t, DefaultLevelUpMessage, snap.Settings.LevelUpMessage)
	assert.Equal(t, DefaultLevelUpRewardMessage, snap.Settings.LevelUpRewardMessage)
	assert.True(t, snap.IsActivityEnabled(ActivityText))
	assert.Equal(t, 2.0, snap.MultiplierFor(ActivityText))
}

func TestSettingsSnapshot_RewardsSortedAndUnique(t *testing.T) {
	rewards := []LevelReward{
		{Level: 10, RoleID: 1010},
		{Level: 3, RoleID: 1003},
		{Level: 5, RoleID: 1005},
		{Level: 5, RoleID: 9999},
	}
	snap := NewSettingsSnapshot(DefaultSettings(1), true, rewards, nil, time.Now())

	require.Len(t, snap.Rewards, 3)
	assert.Equal(t, []int{3, 5, 10}, []int{snap.Rewards[0].Level, snap.Rewards[1].Level, snap.Rewards[2].Level})
	assert.Equal(t, Snowflake(1005), snap.Rewards[1].RoleID)

	r, ok := snap.RewardAt(5)
	assert.True(t, ok)
	assert.Equal(t, Snowflake(1005), r.RoleID)

	_, ok = snap.RewardAt(4)
	assert.False(t, ok)
	_, ok = snap.RewardAt(11)
	assert.False(t, ok)
}

func TestSettingsSnapshot_RewardsUpTo(t *testing.T) {
	rewards := []LevelReward{{Level: 3, RoleID: 3}, {Level: 5, RoleID: 5}, {Level: 10, RoleID: 10}}
	snap := NewSettingsSnapshot(DefaultSettings(1), true, rewards, nil, time.Now())

	assert.Equal(t, []LevelReward{{Level: 3, RoleID: 3}, {Level: 5, RoleID: 5}}, snap.RewardsUpTo(7))
	assert.Empty(t, snap.RewardsUpTo(2))
	assert.Len(t, snap.RewardsUpTo(10), 3)
	assert.Len(t, snap.RewardsUpTo(100), 3)
}

func TestEffectiveMultiplier(t *testing.T) {
	overrides := []MultiplierOverride{
		{RoleID: 1, Multiplier: 1.5},
		{RoleID: 2, Multiplier: 2.0},
		{RoleID: 3, Multiplier: 0.5},
	}

	m := EffectiveMultiplier(1.0, overrides, []Snowflake{1, 2})
	assert.Equal(t, 30, XPToGive(m, 10))

	reversed := []MultiplierOverride{overrides[1], overrides[0]}
	assert.Equal(t, m, EffectiveMultiplier(1.0, reversed, []Snowflake{2, 1}))

	assert.Equal(t, 1.0, EffectiveMultiplier(1.0, overrides, nil))
	assert.Equal(t, 2.0, EffectiveMultiplier(2.0, nil, []Snowflake{1}))
	assert.Equal(t, 1.5, EffectiveMultiplier(2.0, overrides, []Snowflake{1, 3}))
}

func TestXPToGive(t *testing.T) {
	assert.Equal(t, 22, XPToGive(1.5, 15))
	assert.Equal(t, 0, XPToGive(0, 20))
	assert.Equal(t, 0, XPToGive(-1, 20))
	assert.Equal(t, 17, XPToGive(1, 17))
}

func TestCoolingDown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := UserLevelRecord{UserID: 1, LastTextRewardAt: now.Add(-59 * time.Second)}

	assert.True(t, r.CoolingDown(ActivityText, now, DefaultCooldown))
	assert.False(t, r.CoolingDown(ActivityVoice, now, DefaultCooldown))

	r.LastTextRewardAt = now.Add(-60 * time.Second)
	assert.False(t, r.CoolingDown(ActivityText, now, DefaultCooldown))
}

func TestBaseXP(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		text := BaseXP(ActivityText, rng)
		assert.GreaterOrEqual(t, text, 15)
		assert.LessOrEqual(t, text, 24)

		voice := BaseXP(ActivityVoice, rng)
		assert.GreaterOrEqual(t, voice, 3)
		assert.LessOrEqual(t, voice, 4)
	}
	assert.Equal(t, 0, BaseXP("reaction", rng))
}

func TestFormatTemplate(t *testing.T) {
	vars := TemplateVars{UserMention: "<@7>", Username: "neo", Level: 5, RoleName: "Regular"}

	assert.Equal(t,
		"Congratulations <@7>! You just advanced to level 5!",
		FormatTemplate(DefaultLevelUpMessage, vars))
	assert.Equal(t,
		"Congratulations neo! You just advanced to level 5 and received Regular!",
		FormatTemplate(DefaultLevelUpRewardMessage, vars))
	assert.Equal(t, "{unknown} <@7> {level", FormatTemplate("{unknown} {user} {level", vars))
}

func TestParseSnowflake(t *testing.T) {
	id, err := ParseSnowflake("1133333333333333333")
	require.NoError(t, err)
	assert.Equal(t, "1133333333333333333", id.String())

	_, err = ParseSnowflake("abc")
	assert.Error(t, err)
}
