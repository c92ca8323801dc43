package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/levelup")
	t.Setenv("DISCORD_GUILD_ID", "1234567890123")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, uint64(1234567890123), cfg.Discord.GuildID)
	assert.Equal(t, 60*time.Second, cfg.Leveling.Cooldown)
	assert.Equal(t, 60*time.Second, cfg.Leveling.VoiceTick)
	assert.Equal(t, 5*time.Second, cfg.Leveling.StorageTimeout)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
	assert.True(t, cfg.Features.Enabled(FeatureVoiceXP))
}

func TestLoadFromEnv_SQLiteNeedsNoURL(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/levels.db")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.True(t, cfg.IsProduction())
}

func TestLoadFromEnv_CollectsAllErrors(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")
	t.Setenv("LEVELING_VOICE_TICK", "0s")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_DRIVER")
	assert.Contains(t, err.Error(), "LEVELING_VOICE_TICK")
}

func TestLoadFromEnv_BadGuildID(t *testing.T) {
	t.Setenv("DISCORD_GUILD_ID", "not-a-snowflake")
	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestValidateBot(t *testing.T) {
	cfg := &Config{}
	err := cfg.ValidateBot()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_TOKEN")
	assert.Contains(t, err.Error(), "DISCORD_GUILD_ID")

	cfg.Discord = DiscordConfig{Token: "x", GuildID: 1}
	assert.NoError(t, cfg.ValidateBot())
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_PROGRESSION_NOTIFICATIONS", "false")
	t.Setenv("FEATURE_LEADERBOARD_CACHE", "0")

	ff := LoadFeatureFlags()
	assert.False(t, ff.Enabled(FeatureLevelUpNotifications))
	assert.False(t, ff.Enabled(FeatureLeaderboardCache))
	assert.True(t, ff.Enabled(FeatureRestoreRoles))
	assert.False(t, ff.Enabled("unknown.flag"))

	ff.SetUserOverride(42, FeatureLevelUpNotifications, true)
	assert.True(t, ff.EnabledFor(FeatureLevelUpNotifications, 42))
	assert.False(t, ff.EnabledFor(FeatureLevelUpNotifications, 43))
	ff.ClearUserOverrides(42)
	assert.False(t, ff.EnabledFor(FeatureLevelUpNotifications, 42))

	require.NoError(t, ff.SetRolloutPercent(FeatureVoiceXP, 50))
	first := ff.EnabledFor(FeatureVoiceXP, 99)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.EnabledFor(FeatureVoiceXP, 99))
	}

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureVoiceXP, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.EnableFeature("nope"), ErrFeatureNotFound)
}
